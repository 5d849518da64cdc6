package workerproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/AgentWorkforce/relay-broker/internal/domain"
	"github.com/AgentWorkforce/relay-broker/internal/protocol"
)

// WrapConfig configures a worker-side run (spec.md's "wrap mode": a
// child process of the broker that owns a PTY and communicates via
// line-delimited JSON on stdio).
type WrapConfig struct {
	AgentName string
	Driver    Driver
	Stdin     io.Reader
	Stdout    io.Writer
	Logger    *slog.Logger
}

// Wrap runs the worker-side protocol loop until ctx is cancelled, the
// driver's output closes, or a shutdown_worker frame arrives. It
// mirrors original_source's run_pty_worker: one goroutine decodes
// incoming frames, another drains the injection queue on a timer, and
// driver output is streamed back as worker_stream frames.
func Wrap(ctx context.Context, cfg WrapConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := newFrameWriter(cfg.Stdout)
	queue := newInjectionQueue()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan protocol.Envelope, 64)
	go decodeLoop(cfg.Stdin, frames, logger)

	drainTicker := time.NewTicker(carriageReturnPause)
	defer drainTicker.Stop()
	autoEnterTicker := time.NewTicker(autoEnterInterval)
	defer autoEnterTicker.Stop()

	driverOut := cfg.Driver.Output()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if shutdown := handleFrame(frame, cfg.AgentName, queue, out, logger); shutdown {
				cfg.Driver.Shutdown(ctx)
				out.Send(protocol.TypeWorkerExited, "", protocol.WorkerExitedPayload{})
				return nil
			}

		case chunk, ok := <-driverOut:
			if !ok {
				out.Send(protocol.TypeWorkerExited, "", protocol.WorkerExitedPayload{})
				return nil
			}
			out.Send(protocol.TypeWorkerStream, "", protocol.WorkerStreamPayload{
				Stream: "stdout",
				Chunk:  string(chunk),
			})

		case <-drainTicker.C:
			result, ok := queue.Tick()
			if !ok {
				continue
			}
			if result.DismissedOverlay {
				cfg.Driver.Write([]byte{0x1b})
				time.Sleep(dismissPause)
			}
			if err := cfg.Driver.Write([]byte(result.Template)); err != nil {
				logger.Warn("pty injection write failed, re-queuing", "delivery_id", result.Delivery.ID, "error", err)
				queue.Requeue(result.Delivery, result.RequestID)
				continue
			}
			time.Sleep(carriageReturnPause)
			cfg.Driver.Write([]byte("\r"))

			out.Send(protocol.TypeDeliveryAck, result.RequestID, protocol.DeliveryAckPayload{
				DeliveryID: result.Delivery.ID,
				EventID:    result.Delivery.EventID,
			})

		case <-autoEnterTicker.C:
			if queue.ShouldAutoEnter() {
				cfg.Driver.Write([]byte("\r"))
			}
		}
	}
}

func handleFrame(frame protocol.Envelope, agentName string, queue *injectionQueue, out *frameWriter, logger *slog.Logger) (shutdown bool) {
	switch frame.Type {
	case protocol.TypeInitWorker:
		var payload protocol.InitWorkerPayload
		json.Unmarshal(frame.Payload, &payload)
		name := agentName
		if name == "" {
			name = payload.Agent.Name
		}
		if name == "" {
			name = "pty-worker"
		}
		out.Send(protocol.TypeWorkerReady, frame.RequestID, protocol.WorkerReadyPayload{Name: name, Runtime: "pty"})

	case protocol.TypeDeliverRelay:
		var payload protocol.DeliverRelayPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			out.Send(protocol.TypeWorkerError, frame.RequestID, protocol.WorkerErrorPayload{
				Code: "invalid_delivery", Message: err.Error(), Retryable: false,
			})
			return false
		}
		priority := domain.P3
		if payload.Priority != nil {
			priority = domain.Priority(*payload.Priority)
		}
		delivery := domain.InjectRequest{
			ID:       payload.DeliveryID,
			From:     payload.From,
			Target:   payload.Target,
			Body:     payload.Body,
			ThreadID: payload.ThreadID,
			EventID:  payload.EventID,
			Priority: priority,
		}
		if !queue.Enqueue(delivery, frame.RequestID) {
			logger.Debug("skipping duplicate pending delivery", "delivery_id", delivery.ID)
		}

	case protocol.TypeShutdownWorker:
		return true

	case protocol.TypePing:
		var payload protocol.PingPayload
		json.Unmarshal(frame.Payload, &payload)
		out.Send(protocol.TypePong, frame.RequestID, protocol.PongPayload{TsMs: payload.TsMs})

	default:
		out.Send(protocol.TypeWorkerError, frame.RequestID, protocol.WorkerErrorPayload{
			Code:    "unknown_type",
			Message: fmt.Sprintf("unsupported message type %q", frame.Type),
		})
	}
	return false
}

func decodeLoop(r io.Reader, out chan<- protocol.Envelope, logger *slog.Logger) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame, err := protocol.Decode(line)
		if err != nil {
			logger.Debug("ignoring malformed frame", "error", err)
			continue
		}
		out <- frame
	}
}

// frameWriter serializes protocol frames to an underlying writer.
type frameWriter struct {
	w io.Writer
}

func newFrameWriter(w io.Writer) *frameWriter { return &frameWriter{w: w} }

func (f *frameWriter) Send(typ string, requestID string, payload any) {
	data, err := protocol.Encode(typ, requestID, payload)
	if err != nil {
		return
	}
	f.w.Write(data)
}
