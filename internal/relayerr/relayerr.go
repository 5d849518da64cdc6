// Package relayerr classifies errors into the broker's error-kind
// taxonomy (spec.md §7) so callers can apply a uniform retry/surface
// policy instead of matching on concrete error types.
package relayerr

import "errors"

// Kind is one of the nine error categories spec.md §7 defines a
// policy for.
type Kind int

const (
	// KindTransientIO covers socket hiccups, HTTP 5xx, and PTY write
	// EAGAIN. Policy: retry with backoff, no propagation.
	KindTransientIO Kind = iota
	// KindAuthRejection covers HTTP 401/403 or token refresh failure.
	// Policy: trigger token refresh, then fall back to fresh-workspace
	// registration, then fatal configuration error.
	KindAuthRejection
	// KindRateLimit covers HTTP 429. Policy: respect backoff, retain a
	// still-valid cached token.
	KindRateLimit
	// KindConflict covers HTTP 409 on agent registration. Policy:
	// rotate the token for the existing agent name and continue.
	KindConflict
	// KindNotFound covers HTTP 404 on agent identity lookups. Policy:
	// re-register.
	KindNotFound
	// KindProtocolViolation covers a malformed JSON frame on WS or
	// worker IPC. Policy: drop with debug log, never abort the task.
	KindProtocolViolation
	// KindDeliveryFailure covers an echo never observed after the
	// injector's ceiling, or an activity window that expired with no
	// output. Policy: emit delivery_failed, do not retry automatically.
	KindDeliveryFailure
	// KindQueueOverflow covers Push returning Full with no evictable
	// candidate. Policy: drop the incoming item, emit a drop event,
	// retain P0/P1.
	KindQueueOverflow
	// KindWorkerCrash covers an unexpected worker process exit. Policy:
	// consult the supervisor, restart with cooldown unless limits are
	// exceeded.
	KindWorkerCrash
)

func (k Kind) String() string {
	switch k {
	case KindTransientIO:
		return "transient_io"
	case KindAuthRejection:
		return "auth_rejection"
	case KindRateLimit:
		return "rate_limit"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindDeliveryFailure:
		return "delivery_failure"
	case KindQueueOverflow:
		return "queue_overflow"
	case KindWorkerCrash:
		return "worker_crash"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with its classified Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. Returns nil if err is nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// ClassifyHTTPStatus maps an HTTP status code to a Kind per spec.md
// §7's per-status policy table, for use by internal/relayhttp.
func ClassifyHTTPStatus(status int) (Kind, bool) {
	switch status {
	case 401, 403:
		return KindAuthRejection, true
	case 404:
		return KindNotFound, true
	case 409:
		return KindConflict, true
	case 429:
		return KindRateLimit, true
	default:
		if status >= 500 {
			return KindTransientIO, true
		}
		return 0, false
	}
}

// As reports whether err (or anything it wraps) is a relayerr.Error
// of the given kind.
func As(err error, kind Kind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}
