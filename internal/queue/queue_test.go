package queue

import (
	"errors"
	"testing"

	"github.com/AgentWorkforce/relay-broker/internal/domain"
)

type msg struct {
	id string
	p  domain.Priority
}

func (m msg) QueuePriority() domain.Priority { return m.p }

func TestLowerPriorityNumberDequeuesFirst(t *testing.T) {
	q := New[msg](10)
	q.Push(msg{"p3", domain.P3})
	q.Push(msg{"p2", domain.P2})

	first, _ := q.Pop()
	second, _ := q.Pop()
	if first.id != "p2" || second.id != "p3" {
		t.Fatalf("expected p2 then p3, got %s then %s", first.id, second.id)
	}
}

func TestQueueRefusesPushAboveMax(t *testing.T) {
	q := New[msg](1)
	if err := q.Push(msg{"a", domain.P3}); err != nil {
		t.Fatal(err)
	}
	if err := q.Push(msg{"b", domain.P3}); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestOverflowDropsLowPriorityFirst(t *testing.T) {
	q := New[msg](2)
	q.Push(msg{"p1", domain.P1})
	q.Push(msg{"p4", domain.P4})

	dropped, err := q.PushWithOverflowPolicy(msg{"incoming", domain.P2})
	if err != nil {
		t.Fatal(err)
	}
	if dropped == nil || dropped.id != "p4" {
		t.Fatalf("expected p4 to be dropped, got %v", dropped)
	}
	first, _ := q.Pop()
	second, _ := q.Pop()
	if first.id != "p1" || second.id != "incoming" {
		t.Fatalf("expected p1 then incoming, got %s then %s", first.id, second.id)
	}
}

func TestP1IsRetainedUnderOverflow(t *testing.T) {
	q := New[msg](1)
	q.Push(msg{"p1", domain.P1})
	if _, err := q.PushWithOverflowPolicy(msg{"p2", domain.P2}); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestFIFOWithinSamePriority(t *testing.T) {
	q := New[msg](10)
	q.Push(msg{"a", domain.P3})
	q.Push(msg{"b", domain.P3})
	first, _ := q.Pop()
	second, _ := q.Pop()
	if first.id != "a" || second.id != "b" {
		t.Fatalf("expected a then b, got %s then %s", first.id, second.id)
	}
}

func TestOverflowCannotDropP0OrP1(t *testing.T) {
	q := New[msg](2)
	q.Push(msg{"p0", domain.P0})
	q.Push(msg{"p1", domain.P1})
	if _, err := q.PushWithOverflowPolicy(msg{"p2", domain.P2}); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestPopEmptyReturnsFalse(t *testing.T) {
	q := New[msg](10)
	if _, ok := q.Pop(); ok {
		t.Fatal("expected Pop on empty queue to report false")
	}
}

func TestLenTracksCorrectly(t *testing.T) {
	q := New[msg](10)
	q.Push(msg{"a", domain.P3})
	q.Push(msg{"b", domain.P2})
	q.Push(msg{"c", domain.P4})
	if q.Len() != 3 {
		t.Fatalf("expected len 3, got %d", q.Len())
	}
	q.Pop()
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}
}

// Priority monotonicity + P0/P1 retention (spec.md §8 properties 2–3).
func TestPriorityMonotonicityAndRetention(t *testing.T) {
	q := New[msg](3)
	q.Push(msg{"p0", domain.P0})
	q.Push(msg{"p1", domain.P1})
	q.Push(msg{"p3", domain.P3})

	for i := 0; i < 5; i++ {
		dropped, err := q.PushWithOverflowPolicy(msg{"x", domain.P4})
		if err == nil && dropped != nil && (dropped.p == domain.P0 || dropped.p == domain.P1) {
			t.Fatalf("P0/P1 item was dropped: %v", dropped)
		}
	}

	var last domain.Priority = -1
	for {
		item, ok := q.Pop()
		if !ok {
			break
		}
		if item.p < last {
			t.Fatalf("pop sequence decreased in priority: %v after %v", item.p, last)
		}
		last = item.p
	}
}
