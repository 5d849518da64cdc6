// Package activity implements the post-echo activity monitor
// (spec.md §4.6): after an injected message's echo is verified, it
// watches subsequent PTY output for enough non-echo bytes to count as
// the agent actually processing the message, or times the wait out.
package activity

import (
	"strings"
	"time"

	"github.com/AgentWorkforce/relay-broker/internal/ansi"
)

// Window is the default duration to wait for agent activity after an
// echo is verified.
const Window = 10 * time.Second

// minActivityBytes is the minimum count of non-echo, non-whitespace,
// non-prompt bytes required to count as activity.
const minActivityBytes = 20

// Pending tracks a single delivery awaiting activity confirmation.
type Pending struct {
	DeliveryID    string
	EventID       string
	RequestID     string
	EchoText      string
	VerifiedAt    time.Time
	ActivityBytes int
}

// Outcome distinguishes the three states an activity check can
// resolve to.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeConfirmed
	OutcomeTimedOut
)

// Result reports the outcome of checking a pending delivery for
// activity.
type Result struct {
	Outcome         Outcome
	DeliveryID      string
	EventID         string
	RequestID       string
	ResponseTimeMs  uint64
}

// Monitor tracks a set of deliveries awaiting post-echo activity.
type Monitor struct {
	pending []*Pending
	window  time.Duration
}

// New creates a Monitor using the default 10s activity window.
func New() *Monitor {
	return &Monitor{window: Window}
}

// NewWithWindow creates a Monitor with a custom activity window.
// Intended for tests.
func NewWithWindow(window time.Duration) *Monitor {
	return &Monitor{window: window}
}

// Track begins monitoring a delivery for activity after its echo was
// verified.
func (m *Monitor) Track(deliveryID, eventID, requestID, echoText string) {
	m.pending = append(m.pending, &Pending{
		DeliveryID: deliveryID,
		EventID:    eventID,
		RequestID:  requestID,
		EchoText:   echoText,
		VerifiedAt: time.Now(),
	})
}

// FeedOutput accounts raw PTY output against every pending delivery,
// returning any that have now accumulated enough non-echo bytes to be
// confirmed.
func (m *Monitor) FeedOutput(rawOutput string) []Result {
	clean := ansi.Strip(rawOutput)

	var results []Result
	kept := m.pending[:0]
	for _, pa := range m.pending {
		pa.ActivityBytes += countNonEchoBytes(clean, pa.EchoText)

		if pa.ActivityBytes >= minActivityBytes {
			results = append(results, Result{
				Outcome:        OutcomeConfirmed,
				DeliveryID:     pa.DeliveryID,
				EventID:        pa.EventID,
				RequestID:      pa.RequestID,
				ResponseTimeMs: uint64(time.Since(pa.VerifiedAt).Milliseconds()),
			})
		} else {
			kept = append(kept, pa)
		}
	}
	m.pending = kept

	return results
}

// CheckTimeouts removes and reports every pending delivery whose
// activity window has elapsed. Call periodically.
func (m *Monitor) CheckTimeouts() []Result {
	var results []Result
	kept := m.pending[:0]
	for _, pa := range m.pending {
		if time.Since(pa.VerifiedAt) >= m.window {
			results = append(results, Result{
				Outcome:    OutcomeTimedOut,
				DeliveryID: pa.DeliveryID,
				EventID:    pa.EventID,
				RequestID:  pa.RequestID,
			})
		} else {
			kept = append(kept, pa)
		}
	}
	m.pending = kept
	return results
}

// PendingCount reports how many deliveries are currently being
// monitored.
func (m *Monitor) PendingCount() int { return len(m.pending) }

// countNonEchoBytes removes the first occurrence of echoText from
// cleanOutput and counts the remaining non-whitespace, non-prompt
// characters.
func countNonEchoBytes(cleanOutput, echoText string) int {
	remaining := cleanOutput
	if pos := strings.Index(cleanOutput, echoText); pos >= 0 {
		remaining = cleanOutput[:pos] + cleanOutput[pos+len(echoText):]
	}

	count := 0
	for _, r := range remaining {
		if !isSpaceOrPromptChar(r) {
			count++
		}
	}
	return count
}

func isSpaceOrPromptChar(r rune) bool {
	switch r {
	case '>', '$', '%':
		return true
	}
	return isSpace(r)
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
