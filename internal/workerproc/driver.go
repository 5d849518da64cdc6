// Package workerproc owns the worker side of an agent: the PTY (or
// container exec session) a wrapped CLI runs in, prompt injection
// into it, and the parent-side process that supervises a worker over
// the line-delimited JSON protocol (internal/protocol).
package workerproc

import (
	"context"
	"errors"
)

// streamBufferCapacity bounds the channel a driver uses to forward
// raw process output, matching the per-worker child process's bounded
// channel (capacity 256).
const streamBufferCapacity = 256

// ErrDriverClosed is returned by Write/Resize once Shutdown has run.
var ErrDriverClosed = errors.New("workerproc: driver closed")

// Driver abstracts the process a worker wraps: either a host PTY
// (PTYDriver) or an exec session attached to a running container
// (DockerDriver), selected by --sandbox.
type Driver interface {
	// Output returns the channel of raw bytes read from the process.
	// The channel is closed when the process exits.
	Output() <-chan []byte

	// Write sends bytes to the process's input (PTY or exec stdin).
	Write(p []byte) error

	// Resize adjusts the terminal dimensions, if supported.
	Resize(rows, cols uint16) error

	// Shutdown ends the session with the wrapped process. PTYDriver
	// waits up to 5s (or until ctx is done) for the process to exit and
	// then kills it; DockerDriver closes the exec session's connection
	// and does not force a still-running exec process to stop.
	Shutdown(ctx context.Context) error
}
