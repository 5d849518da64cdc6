package workerproc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// DockerDriver attaches a worker to an exec session inside an
// already-running container, for operators who want agents isolated
// from the host (--sandbox=docker). It mirrors the teacher's
// container.Manager.CreateExecSession/ResizeExecSession, narrowed to
// attaching rather than also owning container lifecycle.
type DockerDriver struct {
	cli         *client.Client
	containerID string
	execID      string
	conn        io.ReadWriteCloser
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool

	out chan []byte
}

// NewDockerDriver creates an exec session for command/args inside
// containerID and starts forwarding its output.
func NewDockerDriver(ctx context.Context, cli *client.Client, containerID, command string, args []string, rows, cols uint16, env []string, logger *slog.Logger) (*DockerDriver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cmd := append([]string{command}, args...)
	execConfig := container.ExecOptions{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          true,
		Cmd:          cmd,
		Env:          env,
		ConsoleSize:  &[2]uint{uint(rows), uint(cols)},
	}

	resp, err := cli.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return nil, fmt.Errorf("create exec session in container %s: %w", containerID, err)
	}

	attachResp, err := cli.ContainerExecAttach(ctx, resp.ID, container.ExecStartOptions{Tty: true})
	if err != nil {
		return nil, fmt.Errorf("attach to exec session %s: %w", resp.ID, err)
	}

	d := &DockerDriver{
		cli:         cli,
		containerID: containerID,
		execID:      resp.ID,
		conn:        attachResp.Conn,
		logger:      logger,
		out:         make(chan []byte, streamBufferCapacity),
	}
	go d.readLoop()

	logger.Info("docker exec session attached", "exec_id", resp.ID, "container_id", containerID)
	return d, nil
}

func (d *DockerDriver) readLoop() {
	defer close(d.out)
	buf := make([]byte, 4096)
	for {
		n, err := d.conn.Read(buf)
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

func (d *DockerDriver) Output() <-chan []byte { return d.out }

func (d *DockerDriver) Write(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDriverClosed
	}
	_, err := d.conn.Write(p)
	return err
}

func (d *DockerDriver) Resize(rows, cols uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDriverClosed
	}
	ctx := context.Background()
	if err := d.cli.ContainerExecResize(ctx, d.execID, container.ResizeOptions{Height: uint(rows), Width: uint(cols)}); err != nil {
		return fmt.Errorf("resize exec session %s to %dx%d: %w", d.execID, cols, rows, err)
	}
	return nil
}

func (d *DockerDriver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if err := d.conn.Close(); err != nil {
		d.logger.Debug("exec session close error", "exec_id", d.execID, "error", err)
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, d.execID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("inspect exec session %s: %w", d.execID, err)
	}
	if inspect.Running {
		d.logger.Debug("exec session still running after close", "exec_id", d.execID)
	}
	return nil
}
