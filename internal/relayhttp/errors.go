package relayhttp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AgentWorkforce/relay-broker/internal/relayerr"
)

// StatusError is a request that failed at the transport/status level,
// either before a body could be parsed as the response envelope or
// because the envelope itself reported ok==false. Status and Code
// together let a caller apply spec.md §7's per-status retry policy
// without re-deriving it from the underlying relayerr.Kind.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("relayhttp: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("relayhttp: %d: %s", e.Status, e.Message)
}

// newStatusError builds a StatusError from a non-2xx response whose
// body may or may not be a valid envelope, classifying it via
// relayerr so callers can branch on Kind with errors.As.
func newStatusError(status int, raw []byte) error {
	se := &StatusError{Status: status, Message: string(raw)}

	var env envelope
	if json.Unmarshal(raw, &env) == nil && env.Error != nil {
		se.Code = env.Error.Code
		se.Message = env.Error.Message
	}

	return wrapStatus(status, se)
}

func newAPIError(status int, code, message string) error {
	return wrapStatus(status, &StatusError{Status: status, Code: code, Message: message})
}

func wrapStatus(status int, se *StatusError) error {
	if kind, ok := relayerr.ClassifyHTTPStatus(status); ok {
		return relayerr.New(kind, se)
	}
	return se
}

// statusOf extracts the HTTP status carried by err, or 0 if err did
// not originate from a StatusError (e.g. a dial failure).
func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
