package stats

import (
	"testing"

	"github.com/ritzau/agentic-mesh/pkg/model"
)

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Fatalf("Expected 3 elements, got %d", r.Len())
	}

	got := r.Recent(10)
	want := []int{5, 4, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Recent()[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if got := r.Recent(2); len(got) != 2 || got[0] != 5 || got[1] != 4 {
		t.Errorf("Expected [5 4], got %v", got)
	}
}

func TestRing_PartiallyFilled(t *testing.T) {
	r := NewRing[string](4)
	r.Push("a")
	r.Push("b")

	got := r.Recent(-1)
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("Expected [b a], got %v", got)
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := NewRing[int](0)
	r.Push(1)
	r.Push(2)
	if r.Cap() != 1 || r.Len() != 1 || r.Recent(1)[0] != 2 {
		t.Errorf("Expected single slot holding 2, got cap=%d len=%d", r.Cap(), r.Len())
	}
}

func TestAggregator_Counters(t *testing.T) {
	a := NewAggregator(2)
	a.Generated(3)
	a.Delivered()
	a.Dropped()
	a.Dropped()
	a.Collision()
	a.Generated(-1)

	s := a.Stats("Flood", 1)
	if s.Transmitted != 1 || s.Dropped != 2 || s.Generated != 3 || s.Collisions != 1 {
		t.Errorf("Unexpected counters: %+v", s)
	}
	if s.Policy != "Flood" || s.InFlight != 1 {
		t.Errorf("Unexpected labels: %+v", s)
	}
}

func TestAggregator_LogWindow(t *testing.T) {
	a := NewAggregator(2)
	for i := 0; i < 3; i++ {
		a.Record(model.LogEntry{Tick: uint64(i), Action: model.ActionForward})
	}

	recent := a.Recent(5)
	if len(recent) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(recent))
	}
	if recent[0].Tick != 2 || recent[1].Tick != 1 {
		t.Errorf("Expected ticks [2 1], got [%d %d]", recent[0].Tick, recent[1].Tick)
	}
}
