package workerproc

import (
	"time"

	"github.com/AgentWorkforce/relay-broker/internal/domain"
	"github.com/AgentWorkforce/relay-broker/internal/echo"
)

// autoSuggestionBlockTimeout bounds how long a head delivery waits
// behind a visible auto-suggestion overlay before injecting anyway
// (SPEC_FULL.md §C.5).
const autoSuggestionBlockTimeout = 400 * time.Millisecond

// autoEnterInterval re-sends a bare carriage return for an agent that
// appears stuck after an injection (SPEC_FULL.md §C.5).
const autoEnterInterval = 2 * time.Second

// dismissPause is the delay after writing ESC to dismiss an overlay,
// before the queue is re-evaluated.
const dismissPause = 100 * time.Millisecond

// carriageReturnPause is the delay between writing the injected text
// and following it with \r (spec.md §4.5 step 3).
const carriageReturnPause = 50 * time.Millisecond

// pendingInjection is a delivery waiting to be typed into the PTY.
type pendingInjection struct {
	Delivery  domain.InjectRequest
	RequestID string
	QueuedAt  time.Time
}

// injectionQueue is the worker-side pending list keyed by delivery_id,
// mirroring pty_worker.rs's VecDeque<PendingWorkerInjection> plus its
// duplicate-skip HashSet.
type injectionQueue struct {
	items []pendingInjection
	seen  map[string]struct{}

	autoSuggestionVisible bool
	lastInjectionTime     time.Time
}

func newInjectionQueue() *injectionQueue {
	return &injectionQueue{seen: make(map[string]struct{})}
}

// Enqueue adds delivery unless its ID is already pending. Returns
// false if it was a duplicate.
func (q *injectionQueue) Enqueue(delivery domain.InjectRequest, requestID string) bool {
	if _, dup := q.seen[delivery.ID]; dup {
		return false
	}
	q.seen[delivery.ID] = struct{}{}
	q.items = append(q.items, pendingInjection{Delivery: delivery, RequestID: requestID, QueuedAt: time.Now()})
	return true
}

// SetAutoSuggestionVisible records whether an auto-suggestion overlay
// is currently on screen, as observed by the caller from streamed
// output.
func (q *injectionQueue) SetAutoSuggestionVisible(visible bool) {
	q.autoSuggestionVisible = visible
}

// drainResult is what a Tick produced, if anything.
type drainResult struct {
	Delivery  domain.InjectRequest
	RequestID string
	Template  string
	DismissedOverlay bool
}

// Tick evaluates the head of the queue per spec.md §4.5 steps 1-3:
// skip if blocked behind a fresh overlay, dismiss a stale one, then
// format and pop the head for injection. The caller is responsible
// for actually writing Template+"\r" to the driver (with the
// carriageReturnPause in between) and for emitting delivery_ack.
func (q *injectionQueue) Tick() (drainResult, bool) {
	if len(q.items) == 0 {
		return drainResult{}, false
	}

	head := q.items[0]
	if q.autoSuggestionVisible && time.Since(head.QueuedAt) < autoSuggestionBlockTimeout {
		return drainResult{}, false
	}

	dismissed := q.autoSuggestionVisible
	q.autoSuggestionVisible = false

	q.items = q.items[1:]
	delete(q.seen, head.Delivery.ID)

	template := echo.FormatTemplate(head.Delivery.From, head.Delivery.EventID, head.Delivery.Body)
	q.lastInjectionTime = time.Now()

	return drainResult{
		Delivery:         head.Delivery,
		RequestID:        head.RequestID,
		Template:         template,
		DismissedOverlay: dismissed,
	}, true
}

// Requeue pushes delivery back onto the front of the queue, used when
// a PTY write fails (spec.md §5 "Timeouts": "re-queued at the front").
func (q *injectionQueue) Requeue(delivery domain.InjectRequest, requestID string) {
	q.items = append([]pendingInjection{{Delivery: delivery, RequestID: requestID, QueuedAt: time.Now()}}, q.items...)
	q.seen[delivery.ID] = struct{}{}
}

// ShouldAutoEnter reports whether enough time has passed since the
// last injection that a bare \r should be re-sent for a possibly
// stuck agent.
func (q *injectionQueue) ShouldAutoEnter() bool {
	return !q.lastInjectionTime.IsZero() && time.Since(q.lastInjectionTime) >= autoEnterInterval
}

// Len reports the number of pending, not-yet-injected deliveries.
func (q *injectionQueue) Len() int { return len(q.items) }
