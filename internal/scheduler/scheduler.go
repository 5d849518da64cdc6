// Package scheduler implements the per-(sender,target) coalescing
// scheduler with a human-cooldown gate (spec.md §4.3).
package scheduler

import (
	"time"

	"github.com/AgentWorkforce/relay-broker/internal/domain"
)

// MaxCoalescedBodySize is the 32 KiB cap on a coalesced body. Once
// exceeded, the current group is flushed and the new message starts a
// fresh coalesce window.
const MaxCoalescedBodySize = 32 * 1024

type bucketKey struct {
	from   string
	target string
}

type coalesceState struct {
	request  *domain.InjectRequest
	firstSeen time.Time
	lastSeen  time.Time
	deadline  time.Time
}

// Scheduler coalesces successive requests to the same (from, target)
// within a sliding window, and gates non-urgent injection while a
// human is actively typing.
type Scheduler struct {
	humanCooldown  time.Duration
	coalesceWindow time.Duration
	maxHold        time.Duration

	lastHumanKeypress time.Time
	haveKeypress      bool

	pending map[bucketKey]*coalesceState
}

// New creates a Scheduler with the given human cooldown and coalesce
// window, both in milliseconds. max_hold is fixed at 2000ms per spec.
func New(humanCooldownMs, coalesceWindowMs uint64) *Scheduler {
	return &Scheduler{
		humanCooldown:  time.Duration(humanCooldownMs) * time.Millisecond,
		coalesceWindow: time.Duration(coalesceWindowMs) * time.Millisecond,
		maxHold:        2000 * time.Millisecond,
		pending:        make(map[bucketKey]*coalesceState),
	}
}

// RecordHumanInput marks the time of the most recent human keypress.
func (s *Scheduler) RecordHumanInput(now time.Time) {
	s.lastHumanKeypress = now
	s.haveKeypress = true
}

// CanInject reports whether priority may be injected at now. P0/P1
// always admit; P2..P4 admit only once the human cooldown has elapsed
// (or no keypress has ever been recorded).
func (s *Scheduler) CanInject(priority domain.Priority, now time.Time) bool {
	if priority == domain.P0 || priority == domain.P1 {
		return true
	}
	if !s.haveKeypress {
		return true
	}
	return now.Sub(s.lastHumanKeypress) >= s.humanCooldown
}

// Push admits req into its (from, target) bucket. If the bucket can
// absorb it (within coalesce_window, within max_hold, within the body
// size cap) the bodies are joined with "\n" and nil is returned.
// Otherwise the existing bucket's request is flushed (returned) and a
// new bucket is started with req.
func (s *Scheduler) Push(req *domain.InjectRequest, now time.Time) *domain.InjectRequest {
	key := bucketKey{from: req.From, target: req.Target}

	if state, ok := s.pending[key]; ok {
		withinWindow := now.Sub(state.lastSeen) <= s.coalesceWindow
		withinHold := now.Sub(state.firstSeen) <= s.maxHold
		withinSize := len(state.request.Body)+1+len(req.Body) <= MaxCoalescedBodySize

		if withinWindow && withinHold && withinSize {
			state.request.Body = state.request.Body + "\n" + req.Body
			state.lastSeen = now
			state.deadline = minTime(state.firstSeen.Add(s.maxHold), now.Add(s.coalesceWindow))
			return nil
		}

		flushed := state.request
		delete(s.pending, key)
		req.Attempts = 0
		s.pending[key] = &coalesceState{
			request:   req,
			firstSeen: now,
			lastSeen:  now,
			deadline:  now.Add(s.coalesceWindow),
		}
		return flushed
	}

	s.pending[key] = &coalesceState{
		request:   req,
		firstSeen: now,
		lastSeen:  now,
		deadline:  now.Add(s.coalesceWindow),
	}
	return nil
}

// DrainReady removes and returns every bucket whose deadline has
// passed.
func (s *Scheduler) DrainReady(now time.Time) []*domain.InjectRequest {
	var ready []*domain.InjectRequest
	for key, state := range s.pending {
		if !now.Before(state.deadline) {
			ready = append(ready, state.request)
			delete(s.pending, key)
		}
	}
	return ready
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
