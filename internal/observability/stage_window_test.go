package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe("connect_to_open", 500)
	w.Observe("connect_to_open", 700)
	w.Observe("connect_to_open", 900)
	w.ObserveIndicator("check_in")
	w.ObserveIndicator("check_in")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 3 || s.LastMS != 900 || s.P50MS != 700 {
		t.Fatalf("stage stats = %+v", s)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 1500 {
		t.Fatalf("TargetP95MS = %.2f, want 1500", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v", snap.Indicators)
	}
}

func TestStageWindowWrapsAtCapacity(t *testing.T) {
	w := newStageWindow(2)
	for _, v := range []float64{10, 20, 30} {
		w.Observe("tool_call", v)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 2 || s.AvgMS != 25 {
		t.Fatalf("stats = %+v, want 2 samples avg 25", s)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionStarted()
	m.ObserveToolCall("listEmails", "success", time.Millisecond)
	m.CheckIn()
	if snap := m.StageSnapshot(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot = %+v", snap)
	}
}

func TestMetricsInstancesDoNotCollide(t *testing.T) {
	a := NewMetrics("test")
	b := NewMetrics("test")
	a.ObserveToolCall("listEmails", "success", 3*time.Millisecond)
	b.ObserveStage("connect_to_open", 40*time.Millisecond)
	if got := len(a.StageSnapshot().Stages); got != 1 {
		t.Fatalf("a stages = %d, want 1", got)
	}
	if got := b.StageSnapshot().Stages[0].Stage; got != "connect_to_open" {
		t.Fatalf("b stage = %q", got)
	}
}
