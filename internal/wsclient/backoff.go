package wsclient

import (
	"math/rand"
	"time"
)

// maxBackoffMs caps the reconnect delay, in milliseconds.
const maxBackoffMs = 30_000

// ReconnectDelay returns the delay before reconnect attempt n
// (1-indexed): min(30000, 1000*2^(n-1)) ms plus uniform jitter in
// [0, 250] ms (spec.md §4.1 "Backoff").
func ReconnectDelay(attempt uint32) time.Duration {
	if attempt == 0 {
		attempt = 1
	}
	shift := attempt - 1
	var baseMs uint64 = 1000
	if shift < 63 {
		baseMs = 1000 << shift
	} else {
		baseMs = maxBackoffMs
	}
	if baseMs > maxBackoffMs {
		baseMs = maxBackoffMs
	}

	jitter := rand.Intn(251)
	return time.Duration(baseMs)*time.Millisecond + time.Duration(jitter)*time.Millisecond
}
