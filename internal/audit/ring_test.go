package audit

import (
	"context"
	"fmt"
	"testing"
)

func emitN(s *RingSink, n, offset int) {
	for i := 0; i < n; i++ {
		s.Emit(context.Background(), Entry{ID: fmt.Sprintf("e%d", offset+i), Action: "test"})
	}
}

func TestRingSinkEvictsOldestFirst(t *testing.T) {
	s := NewRingSink(3)
	emitN(s, 5, 0)

	entries := s.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"e2", "e3", "e4"} {
		if entries[i].ID != want {
			t.Fatalf("entry %d: expected %s, got %s", i, want, entries[i].ID)
		}
	}
}

func TestRingSinkDrainRemovesOldest(t *testing.T) {
	s := NewRingSink(10)
	emitN(s, 4, 0)

	drained := s.Drain(2)
	if len(drained) != 2 || drained[0].ID != "e0" || drained[1].ID != "e1" {
		t.Fatalf("unexpected drain result: %+v", drained)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 remaining, got %d", s.Len())
	}

	if got := s.Drain(100); len(got) != 2 {
		t.Fatalf("expected drain of remaining 2, got %d", len(got))
	}
	if got := s.Drain(1); got != nil {
		t.Fatalf("expected nil drain on empty ring, got %+v", got)
	}
}

func TestRingSinkRequeuePreservesOrder(t *testing.T) {
	s := NewRingSink(5)
	emitN(s, 3, 10)

	s.Requeue([]Entry{{ID: "a"}, {ID: "b"}})

	entries := s.Entries()
	want := []string{"a", "b", "e10", "e11", "e12"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i := range want {
		if entries[i].ID != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], entries[i].ID)
		}
	}
}

func TestFanoutSinkEmitsToAllChildren(t *testing.T) {
	a := NewRingSink(5)
	b := NewRingSink(5)
	fan := NewFanoutSink(a, nil, b)

	fan.Emit(context.Background(), Entry{ID: "x"})

	if a.Len() != 1 || b.Len() != 1 {
		t.Fatalf("expected both children to receive entry, got %d and %d", a.Len(), b.Len())
	}
}
