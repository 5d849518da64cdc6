package wsclient

import "testing"

func TestReplayRingTracksLastSeq(t *testing.T) {
	r := NewReplayRing()
	if _, ok := r.LastSeq(); ok {
		t.Fatal("expected no last seq before any push")
	}
	r.Push([]byte("a"))
	r.Push([]byte("b"))
	seq, ok := r.LastSeq()
	if !ok || seq != 1 {
		t.Fatalf("expected last seq 1, got %d ok=%v", seq, ok)
	}
}

func TestReplaySinceReturnsEventsAfterSeq(t *testing.T) {
	r := NewReplayRing()
	r.Push([]byte("a"))
	r.Push([]byte("b"))
	r.Push([]byte("c"))

	events, gap := r.Since(0)
	if gap {
		t.Fatal("expected no gap")
	}
	if len(events) != 2 || string(events[0].Data) != "b" || string(events[1].Data) != "c" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestReplayRingEvictsOldestAndReportsGap(t *testing.T) {
	r := NewReplayRingWithCapacity(2)
	r.Push([]byte("a")) // seq 0, evicted
	r.Push([]byte("b")) // seq 1
	r.Push([]byte("c")) // seq 2

	events, gap := r.Since(0)
	if !gap {
		t.Fatal("expected gap once seq 0 has been evicted")
	}
	if len(events) != 2 || string(events[0].Data) != "b" || string(events[1].Data) != "c" {
		t.Fatalf("unexpected events after gap: %+v", events)
	}
}

func TestReplaySinceOnEmptyRing(t *testing.T) {
	r := NewReplayRing()
	events, gap := r.Since(0)
	if events != nil || gap {
		t.Fatalf("expected no events and no gap on empty ring, got %v gap=%v", events, gap)
	}
}
