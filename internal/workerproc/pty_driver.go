package workerproc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

// PTYDriver spawns the wrapped CLI directly in a host pseudo-terminal.
// It mirrors original_source's PtySession: a blocking reader goroutine
// forwards bytes over a bounded channel, writes take a mutex so resize
// and shutdown never race a concurrent write.
type PTYDriver struct {
	cmd *exec.Cmd
	pty *os.File

	mu     sync.Mutex
	closed bool

	out chan []byte
}

// SpawnPTY starts command with args in a PTY of the given size, with
// env appended to the current process environment.
func SpawnPTY(command string, args []string, rows, cols uint16, env []string) (*PTYDriver, error) {
	cmd := exec.Command(command, args...)
	cmd.Env = append(os.Environ(), env...)

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("spawn pty for %s: %w", command, err)
	}

	d := &PTYDriver{
		cmd: cmd,
		pty: f,
		out: make(chan []byte, streamBufferCapacity),
	}
	go d.readLoop()
	return d, nil
}

func (d *PTYDriver) readLoop() {
	defer close(d.out)
	buf := make([]byte, 4096)
	for {
		n, err := d.pty.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			d.out <- chunk
		}
		if err != nil {
			return
		}
	}
}

func (d *PTYDriver) Output() <-chan []byte { return d.out }

func (d *PTYDriver) Write(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDriverClosed
	}
	_, err := d.pty.Write(p)
	return err
}

func (d *PTYDriver) Resize(rows, cols uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDriverClosed
	}
	return pty.Setsize(d.pty, &pty.Winsize{Rows: rows, Cols: cols})
}

func (d *PTYDriver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.cmd.Process != nil {
		done := make(chan struct{})
		go func() {
			d.cmd.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			d.cmd.Process.Kill()
			<-done
		case <-ctx.Done():
			d.cmd.Process.Kill()
			<-done
		}
	}
	return d.pty.Close()
}
