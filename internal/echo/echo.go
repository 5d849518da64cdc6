// Package echo verifies PTY injection delivery by scanning subsequent
// PTY output for the literal injected template (spec.md §4.5). Each
// injection gets up to MaxRounds injection rounds in total, the first
// one included, before it is declared a delivery failure.
package echo

import (
	"fmt"
	"strings"

	"github.com/AgentWorkforce/relay-broker/internal/ansi"
	"github.com/AgentWorkforce/relay-broker/internal/scheduler"
)

// MaxRounds is the number of injection rounds attempted before an echo
// timeout is reported as delivery_failed.
const MaxRounds = 3

// maxScanWindow bounds the rolling buffer FeedOutput scans across
// calls. A template can be as long as the largest coalesced body
// (scheduler.MaxCoalescedBodySize) plus its "Relay message from ... :"
// prefix, and PTY reads can split it across multiple worker_stream
// chunks, so the window must hold at least one full template.
const maxScanWindow = scheduler.MaxCoalescedBodySize + 1024

// FormatTemplate renders the echo-stable injection template. The
// broker scans PTY output for this literal string to confirm the
// worker received the injected text.
func FormatTemplate(from, eventID, body string) string {
	return fmt.Sprintf("Relay message from %s [%s]: %s", from, eventID, body)
}

// Pending tracks one injection awaiting echo confirmation.
type Pending struct {
	DeliveryID string
	EventID    string
	RequestID  string
	Template   string
	Round      int
}

// Verifier scans PTY output chunks for pending injection templates.
type Verifier struct {
	pending []*Pending
	// scan accumulates cleaned output across FeedOutput calls so a
	// template split across two worker_stream chunks still matches,
	// trimmed to maxScanWindow from the front as it grows.
	scan string
}

// New creates an empty Verifier.
func New() *Verifier {
	return &Verifier{}
}

// Track begins watching for template in subsequent output, starting
// at round 1.
func (v *Verifier) Track(deliveryID, eventID, requestID, template string) {
	v.pending = append(v.pending, &Pending{
		DeliveryID: deliveryID,
		EventID:    eventID,
		RequestID:  requestID,
		Template:   template,
		Round:      1,
	})
}

// Verified reports a delivery whose echo was observed.
type Verified struct {
	DeliveryID string
	EventID    string
	RequestID  string
	Template   string
}

// FeedOutput scans rawOutput (after stripping ANSI sequences) for
// every pending template, accumulating across calls so a template
// split between two chunks still matches. Matched deliveries are
// removed from tracking and returned.
func (v *Verifier) FeedOutput(rawOutput string) []Verified {
	v.scan += ansi.Strip(rawOutput)
	if len(v.scan) > maxScanWindow {
		v.scan = v.scan[len(v.scan)-maxScanWindow:]
	}
	clean := v.scan

	var verified []Verified
	kept := v.pending[:0]
	for _, p := range v.pending {
		if containsTemplate(clean, p.Template) {
			verified = append(verified, Verified{
				DeliveryID: p.DeliveryID,
				EventID:    p.EventID,
				RequestID:  p.RequestID,
				Template:   p.Template,
			})
		} else {
			kept = append(kept, p)
		}
	}
	v.pending = kept

	return verified
}

// RetryOrFail advances a delivery that has not yet echoed to its next
// round. It returns ok=false once MaxRounds has been exhausted,
// meaning the caller should report delivery_failed{reason:"echo
// timeout"} and stop tracking it.
func (v *Verifier) RetryOrFail(deliveryID string) (round int, ok bool) {
	for i, p := range v.pending {
		if p.DeliveryID != deliveryID {
			continue
		}
		if p.Round >= MaxRounds {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return p.Round, false
		}
		p.Round++
		return p.Round, true
	}
	return 0, false
}

// PendingCount reports how many deliveries are currently awaiting echo
// confirmation.
func (v *Verifier) PendingCount() int { return len(v.pending) }

func containsTemplate(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
