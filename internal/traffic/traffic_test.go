package traffic

import (
	"testing"
	"time"
)

func TestTrackerCountsWithinWindow(t *testing.T) {
	var tr Tracker
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()

	if got := tr.RequestCount(time.Minute); got != 4 {
		t.Errorf("RequestCount = %d, want 4", got)
	}
	if got := tr.DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount = %d, want 1", got)
	}
}

func TestTrackerErrorRateExcludesDenials(t *testing.T) {
	var tr Tracker
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordError()
	tr.RecordDenied()

	errs, total := tr.ErrorRate(time.Minute)
	if errs != 2 {
		t.Errorf("errors = %d, want 2", errs)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3 (denials excluded)", total)
	}
}

func TestTrackerWindowExcludesOldEntries(t *testing.T) {
	var tr Tracker
	tr.RecordSuccess()
	time.Sleep(20 * time.Millisecond)
	tr.RecordError()

	if got := tr.RequestCount(10 * time.Millisecond); got != 1 {
		t.Errorf("RequestCount in narrow window = %d, want 1", got)
	}
}

func TestTrackerReset(t *testing.T) {
	var tr Tracker
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
	tr.Reset()

	if got := tr.RequestCount(time.Minute); got != 0 {
		t.Errorf("RequestCount after Reset = %d, want 0", got)
	}
	errs, total := tr.ErrorRate(time.Minute)
	if errs != 0 || total != 0 {
		t.Errorf("ErrorRate after Reset = (%d, %d), want (0, 0)", errs, total)
	}
}

func TestPackageLevelFunctionsUseSharedTracker(t *testing.T) {
	Reset()
	defer Reset()

	RecordSuccess()
	RecordError()
	RecordDenied()

	if got := RequestCount(time.Minute); got != 3 {
		t.Errorf("RequestCount = %d, want 3", got)
	}
	if got := DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount = %d, want 1", got)
	}
	errs, total := ErrorRate(time.Minute)
	if errs != 1 || total != 2 {
		t.Errorf("ErrorRate = (%d, %d), want (1, 2)", errs, total)
	}
}
