package lifecycle

import "testing"

func TestDrainingFlag(t *testing.T) {
	defer SetDraining(false)

	if IsDraining() {
		t.Error("draining should start false")
	}
	SetDraining(true)
	if !IsDraining() {
		t.Error("IsDraining should report true after SetDraining(true)")
	}
	SetDraining(false)
	if IsDraining() {
		t.Error("IsDraining should report false after SetDraining(false)")
	}
}
