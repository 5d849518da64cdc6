// Package queue implements the bounded priority queue with a
// priority-preserving overflow policy (spec.md §4.4).
package queue

import (
	"errors"

	"github.com/AgentWorkforce/relay-broker/internal/domain"
)

// ErrFull is returned by Push when the queue is at capacity.
var ErrFull = errors.New("queue is full")

// Prioritized is implemented by anything the queue can order.
type Prioritized interface {
	QueuePriority() domain.Priority
}

// overflowCandidates lists the bucket indices eligible for eviction
// under push_with_overflow_policy, in eviction order. P0 and P1 are
// never evicted.
var overflowCandidates = []domain.Priority{domain.P4, domain.P3, domain.P2}

// BoundedPriorityQueue is five FIFO buckets keyed by priority (P0
// highest), bounded to a total of max items.
type BoundedPriorityQueue[T Prioritized] struct {
	max     int
	length  int
	buckets [domain.NumPriorities][]T
}

// New creates an empty queue bounded to max total items.
func New[T Prioritized](max int) *BoundedPriorityQueue[T] {
	return &BoundedPriorityQueue[T]{max: max}
}

// Len returns the total number of items across all buckets.
func (q *BoundedPriorityQueue[T]) Len() int { return q.length }

// IsEmpty reports whether the queue holds no items.
func (q *BoundedPriorityQueue[T]) IsEmpty() bool { return q.length == 0 }

// Push appends item to its priority bucket, failing with ErrFull when
// the queue is already at capacity.
func (q *BoundedPriorityQueue[T]) Push(item T) error {
	if q.length >= q.max {
		return ErrFull
	}
	q.enqueue(item)
	return nil
}

// PushWithOverflowPolicy tries Push first; on failure it evicts one
// item from, in order, bucket P4, P3, P2 — never P0 or P1 — and
// succeeds iff an eviction found a candidate. The evicted item is
// returned to the caller.
func (q *BoundedPriorityQueue[T]) PushWithOverflowPolicy(item T) (*T, error) {
	if q.length < q.max {
		q.enqueue(item)
		return nil, nil
	}

	if dropped, ok := q.dropOverflowCandidate(); ok {
		q.enqueue(item)
		return &dropped, nil
	}

	return nil, ErrFull
}

// Pop returns the front of the lowest non-empty bucket (P0 first),
// FIFO within a bucket.
func (q *BoundedPriorityQueue[T]) Pop() (T, bool) {
	for idx := 0; idx < domain.NumPriorities; idx++ {
		bucket := q.buckets[idx]
		if len(bucket) > 0 {
			item := bucket[0]
			q.buckets[idx] = bucket[1:]
			q.length--
			return item, true
		}
	}
	var zero T
	return zero, false
}

func (q *BoundedPriorityQueue[T]) enqueue(item T) {
	idx := item.QueuePriority()
	q.buckets[idx] = append(q.buckets[idx], item)
	q.length++
}

func (q *BoundedPriorityQueue[T]) dropOverflowCandidate() (T, bool) {
	for _, p := range overflowCandidates {
		bucket := q.buckets[p]
		if len(bucket) > 0 {
			item := bucket[0]
			q.buckets[p] = bucket[1:]
			q.length--
			return item, true
		}
	}
	var zero T
	return zero, false
}
