package workerproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/AgentWorkforce/relay-broker/internal/activity"
	"github.com/AgentWorkforce/relay-broker/internal/domain"
	"github.com/AgentWorkforce/relay-broker/internal/echo"
	"github.com/AgentWorkforce/relay-broker/internal/events"
	"github.com/AgentWorkforce/relay-broker/internal/protocol"
	"github.com/AgentWorkforce/relay-broker/internal/throttle"
)

// echoRoundTimeout bounds how long the parent waits for a delivery's
// echo before re-injecting or giving up. spec.md fixes the round
// ceiling at 3 (echo.MaxRounds) but leaves the per-round timeout
// unspecified; this matches pty_worker.rs's 2s auto-enter interval,
// the reference's own heuristic for "this agent looks stuck".
const echoRoundTimeout = 2 * time.Second

// tickInterval is the suggested period between Sweep calls for the
// echo-timeout/activity-timeout sweep. Nothing in this package
// schedules with it; internal/pipeline calls Sweep from its own Tick.
const tickInterval = 250 * time.Millisecond

// Parent is the per-worker parent task (spec.md §5): it serializes
// deliver_relay frames to a worker subprocess's stdin, reads its
// stdout, and runs echo verification, activity monitoring, and
// adaptive throttling against the worker_stream chunks it relays up.
type Parent struct {
	Name string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *frameWriter
	logger *slog.Logger
	events *events.Emitter

	verifier *echo.Verifier
	monitor  *activity.Monitor
	throttle *throttle.Adaptive
	scroll   *ScrollBuffer

	mu           sync.Mutex
	ready        bool
	roundStarted map[string]time.Time
	pendingByID  map[string]domain.InjectRequest

	// exited is closed (after one send) when the worker process's
	// stdout closes; read it via Exited().
	exited chan ExitInfo
}

// ExitInfo reports how a worker process terminated.
type ExitInfo struct {
	Code   *int
	Signal string
	Err    error
}

// SpawnParent re-execs selfExe in wrap mode to own spec's PTY, wiring
// its stdin/stdout as the protocol channel.
func SpawnParent(ctx context.Context, selfExe string, spec domain.AgentSpec, emitter *events.Emitter, logger *slog.Logger) (*Parent, error) {
	if logger == nil {
		logger = slog.Default()
	}

	args := []string{"wrap", "--name", spec.Name}
	if spec.Rows > 0 {
		args = append(args, "--rows", strconv.Itoa(int(spec.Rows)))
	}
	if spec.Cols > 0 {
		args = append(args, "--cols", strconv.Itoa(int(spec.Cols)))
	}
	args = append(args, "--command", spec.Command, "--")
	args = append(args, spec.Args...)
	cmd := exec.CommandContext(ctx, selfExe, args...)
	cmd.Env = append(os.Environ(), "CLAUDE_CODE_ENABLE_PROMPT_SUGGESTION=false")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process for %s: %w", spec.Name, err)
	}

	p := &Parent{
		Name:         spec.Name,
		cmd:          cmd,
		stdin:        stdin,
		out:          newFrameWriter(stdin),
		logger:       logger,
		events:       emitter,
		verifier:     echo.New(),
		monitor:      activity.New(),
		throttle:     throttle.New(),
		scroll:       NewScrollBuffer(defaultScrollBufferSize),
		roundStarted: make(map[string]time.Time),
		pendingByID:  make(map[string]domain.InjectRequest),
		exited:       make(chan ExitInfo, 1),
	}

	p.out.Send(protocol.TypeInitWorker, "", protocol.InitWorkerPayload{
		Agent: protocol.AgentSpecPayload{
			Name: spec.Name, Runtime: string(spec.Runtime), Command: spec.Command,
			Args: spec.Args, Channels: spec.Channels, Rows: spec.Rows, Cols: spec.Cols,
			InitialTask: spec.InitialTask, ShadowOf: spec.ShadowOf, ShadowMode: spec.ShadowMode,
			Team: spec.Team,
		},
	})

	go p.readLoop(stdout)

	return p, nil
}

// Deliver sends a delivery to the worker for injection and begins
// tracking it for echo verification once the worker acks it.
func (p *Parent) Deliver(req domain.InjectRequest, requestID string) {
	p.mu.Lock()
	p.pendingByID[req.ID] = req
	p.mu.Unlock()

	priority := int(req.Priority)
	p.out.Send(protocol.TypeDeliverRelay, requestID, protocol.DeliverRelayPayload{
		DeliveryID: req.ID, EventID: req.EventID, From: req.From, Target: req.Target,
		Body: req.Body, ThreadID: req.ThreadID, Priority: &priority,
	})
}

// ThrottleInterval reports the adaptive throttle's current injection
// interval for this worker.
func (p *Parent) ThrottleInterval() time.Duration { return p.throttle.Interval() }

func (p *Parent) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		frame, err := protocol.Decode(scanner.Bytes())
		if err != nil {
			p.logger.Debug("ignoring malformed worker frame", "worker", p.Name, "error", err)
			continue
		}
		p.handleFrame(frame)
	}
	p.exited <- ExitInfo{Err: scanner.Err()}
	close(p.exited)
}

// Exited delivers one ExitInfo once the worker process's stdout
// closes, then closes. Only Err (the stdout read error, if any) is
// set; Code and Signal are not filled in.
func (p *Parent) Exited() <-chan ExitInfo { return p.exited }

func (p *Parent) handleFrame(frame protocol.Envelope) {
	switch frame.Type {
	case protocol.TypeWorkerReady:
		p.mu.Lock()
		p.ready = true
		p.mu.Unlock()

	case protocol.TypeDeliveryAck:
		var payload protocol.DeliveryAckPayload
		json.Unmarshal(frame.Payload, &payload)
		p.beginEchoTracking(payload.DeliveryID, payload.EventID, frame.RequestID)

	case protocol.TypeWorkerStream:
		var payload protocol.WorkerStreamPayload
		json.Unmarshal(frame.Payload, &payload)
		p.events.Emit(events.KindWorkerStream, payload)
		p.feedStream(payload.Chunk)

	case protocol.TypeWorkerError:
		var payload protocol.WorkerErrorPayload
		json.Unmarshal(frame.Payload, &payload)
		p.logger.Warn("worker reported error", "worker", p.Name, "code", payload.Code, "message", payload.Message)

	case protocol.TypeWorkerExited:
		p.logger.Info("worker exited", "worker", p.Name)

	case protocol.TypePong:
	}
}

func (p *Parent) beginEchoTracking(deliveryID, eventID, requestID string) {
	p.mu.Lock()
	req, ok := p.pendingByID[deliveryID]
	if ok {
		p.roundStarted[deliveryID] = time.Now()
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	template := echo.FormatTemplate(req.From, req.EventID, req.Body)
	p.verifier.Track(deliveryID, eventID, requestID, template)
}

// Scrollback returns the worker's retained raw output, most recent
// bytes last, for the control API's agent-detail view.
func (p *Parent) Scrollback() string { return p.scroll.String() }

// IsReady reports whether the worker has sent worker_ready.
func (p *Parent) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *Parent) feedStream(chunk string) {
	p.scroll.Write([]byte(chunk))

	for _, v := range p.verifier.FeedOutput(chunk) {
		p.mu.Lock()
		delete(p.roundStarted, v.DeliveryID)
		p.mu.Unlock()

		p.throttle.RecordEchoSuccess(0)
		p.events.Emit(events.KindDeliveryVerified, events.DeliveryVerified{
			Name: p.Name, DeliveryID: v.DeliveryID, EventID: v.EventID,
		})
		p.monitor.Track(v.DeliveryID, v.EventID, v.RequestID, v.Template)
	}

	for _, r := range p.monitor.FeedOutput(chunk) {
		switch r.Outcome {
		case activity.OutcomeConfirmed:
			p.throttle.RecordActivityConfirmed(r.ResponseTimeMs)
		case activity.OutcomeTimedOut:
			p.throttle.RecordActivityTimeout()
		}
	}
}

// Sweep checks pending echo rounds for timeouts and activity windows
// for expiry, re-injecting or reporting failure as needed. Call this
// periodically (e.g. every tickInterval) from the owning pipeline.
func (p *Parent) Sweep() {
	p.mu.Lock()
	var expired []string
	now := time.Now()
	for id, started := range p.roundStarted {
		if now.Sub(started) >= echoRoundTimeout {
			expired = append(expired, id)
		}
	}
	p.mu.Unlock()

	for _, id := range expired {
		round, ok := p.verifier.RetryOrFail(id)
		p.mu.Lock()
		req, known := p.pendingByID[id]
		p.mu.Unlock()
		if !known {
			continue
		}
		if ok {
			p.logger.Debug("echo timeout, re-injecting", "worker", p.Name, "delivery_id", id, "round", round)
			p.events.Emit(events.KindDeliveryRetry, events.DeliveryRetry{
				Name: p.Name, DeliveryID: id, EventID: req.EventID, Attempts: round,
			})
			p.Deliver(req, "")
		} else {
			p.mu.Lock()
			delete(p.roundStarted, id)
			delete(p.pendingByID, id)
			p.mu.Unlock()
			p.throttle.RecordEchoFailure()
			p.events.Emit(events.KindDeliveryFailed, events.DeliveryFailed{
				Name: p.Name, DeliveryID: id, EventID: req.EventID, Reason: "echo timeout",
			})
		}
	}

	for _, r := range p.monitor.CheckTimeouts() {
		if r.Outcome == activity.OutcomeTimedOut {
			p.throttle.RecordActivityTimeout()
		}
	}
}

// Shutdown asks the worker to exit gracefully, escalating to SIGTERM
// then SIGKILL if it does not exit within grace.
func (p *Parent) Shutdown(ctx context.Context, reason string, grace time.Duration) error {
	graceMs := int(grace.Milliseconds())
	p.out.Send(protocol.TypeShutdownWorker, "", protocol.ShutdownWorkerPayload{Reason: reason, GraceMs: &graceMs})
	p.stdin.Close()

	done := make(chan struct{})
	go func() {
		p.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		if p.cmd.Process != nil {
			p.cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-done:
			case <-time.After(grace):
				p.cmd.Process.Kill()
				<-done
			}
		}
		return nil
	}
}
