package policy

import (
	"testing"
	"time"

	"github.com/quantix-kvm/swapd/internal/domain"
)

func TestPeriodRing_AppendAndOrder(t *testing.T) {
	ring := newPeriodRing(3)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if ring.Len() != 0 {
		t.Fatalf("Expected empty ring, got len %d", ring.Len())
	}
	if _, ok := ring.First(); ok {
		t.Error("First should report empty ring")
	}
	if _, ok := ring.Last(); ok {
		t.Error("Last should report empty ring")
	}

	for i := 0; i < 3; i++ {
		ring.Append(domain.SwapPeriod{Start: base.Add(time.Duration(i) * time.Hour)})
	}

	if ring.Len() != 3 {
		t.Fatalf("Expected len 3, got %d", ring.Len())
	}

	first, _ := ring.First()
	if !first.Start.Equal(base) {
		t.Errorf("Expected first start %v, got %v", base, first.Start)
	}

	last, _ := ring.Last()
	if !last.Start.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("Expected last start %v, got %v", base.Add(2*time.Hour), last.Start)
	}
}

func TestPeriodRing_EvictsOldestWhenFull(t *testing.T) {
	ring := newPeriodRing(3)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ring.Append(domain.SwapPeriod{Start: base.Add(time.Duration(i) * time.Hour)})
	}

	if ring.Len() != 3 {
		t.Fatalf("Expected len capped at 3, got %d", ring.Len())
	}

	// Oldest two entries were overwritten.
	first, _ := ring.First()
	if !first.Start.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("Expected first start %v after eviction, got %v", base.Add(2*time.Hour), first.Start)
	}

	var starts []time.Time
	ring.Each(func(p domain.SwapPeriod) {
		starts = append(starts, p.Start)
	})
	for i := 1; i < len(starts); i++ {
		if starts[i].Before(starts[i-1]) {
			t.Errorf("Iteration out of order: %v before %v", starts[i], starts[i-1])
		}
	}
}

func TestPeriodRing_LastRefMutatesInPlace(t *testing.T) {
	ring := newPeriodRing(2)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if ring.lastRef() != nil {
		t.Fatal("lastRef on empty ring should be nil")
	}

	ring.Append(domain.SwapPeriod{Start: base})
	last := ring.lastRef()
	last.Duration = 30 * time.Minute
	last.Closed = true

	got, _ := ring.Last()
	if !got.Closed || got.Duration != 30*time.Minute {
		t.Errorf("Expected closed 30m period, got %+v", got)
	}
}

func TestPeriodRing_Snapshot(t *testing.T) {
	ring := newPeriodRing(4)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		ring.Append(domain.SwapPeriod{Start: base.Add(time.Duration(i) * time.Hour)})
	}

	snap := ring.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("Expected snapshot of 4 periods, got %d", len(snap))
	}
	if !snap[0].Start.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("Expected snapshot to begin at %v, got %v", base.Add(2*time.Hour), snap[0].Start)
	}

	// Snapshot is a copy, not a view.
	snap[0].Closed = true
	first, _ := ring.First()
	if first.Closed {
		t.Error("Mutating snapshot should not affect the ring")
	}
}
