// Package pipeline wires the broker's core subsystems — dedup,
// routing, the coalescing scheduler, the bounded priority queue, and
// the per-worker parent processes — into the single inbound delivery
// pipeline and supervision loop spec.md §2 calls "the hardest, most
// interesting part" of this system. It also implements
// internal/controlapi.Registry directly, so the control API needs no
// knowledge of how agents are supervised.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AgentWorkforce/relay-broker/internal/audit"
	"github.com/AgentWorkforce/relay-broker/internal/controlapi"
	"github.com/AgentWorkforce/relay-broker/internal/dedup"
	"github.com/AgentWorkforce/relay-broker/internal/domain"
	"github.com/AgentWorkforce/relay-broker/internal/events"
	"github.com/AgentWorkforce/relay-broker/internal/queue"
	"github.com/AgentWorkforce/relay-broker/internal/routing"
	"github.com/AgentWorkforce/relay-broker/internal/scheduler"
	"github.com/AgentWorkforce/relay-broker/internal/supervisor"
	"github.com/AgentWorkforce/relay-broker/internal/workerproc"
)

// defaultDedupTTL and defaultDedupMax bound the inbound event_id cache:
// 300s TTL and at most 1000 tracked ids.
const (
	defaultDedupTTL = 5 * time.Minute
	defaultDedupMax = 1000
)

// defaultQueueMax is only used as a fallback; cmd/broker always passes
// the configured --queue-max.
const defaultQueueMax = 200

// TickInterval is how often Tick should be called to drain the
// scheduler and dispatch admissible deliveries (spec.md §5).
const TickInterval = 50 * time.Millisecond

// WorkerHandle is the parent-side view of a supervised worker process
// that the pipeline needs: deliver and sweep it, read back its
// readiness/throttle/scrollback state, shut it down, and learn when it
// exits. *workerproc.Parent satisfies this; tests substitute a fake.
type WorkerHandle interface {
	Deliver(req domain.InjectRequest, requestID string)
	Sweep()
	Scrollback() string
	IsReady() bool
	ThrottleInterval() time.Duration
	Shutdown(ctx context.Context, reason string, grace time.Duration) error
	Exited() <-chan workerproc.ExitInfo
}

// Spawner re-execs the broker binary as a worker and returns its
// parent-side handle. Production code passes workerproc.SpawnParent
// (adapted to this signature by cmd/broker); tests substitute a fake.
type Spawner func(ctx context.Context, spec domain.AgentSpec) (WorkerHandle, error)

// Options configures a new Pipeline.
type Options struct {
	HumanCooldownMs  uint64
	CoalesceWindowMs uint64
	QueueMax         int
	DedupTTL         time.Duration
	DedupMax         int

	Events *events.Emitter
	Audit  *audit.Store
	Logger *slog.Logger
	Spawn  Spawner
}

type worker struct {
	spec           domain.AgentSpec
	parent         WorkerHandle
	pendingRestart bool
	lastActivity   time.Time
}

// Pipeline is the broker's live inbound delivery pipeline plus its
// set of locally supervised agents.
type Pipeline struct {
	events *events.Emitter
	audit  *audit.Store
	logger *slog.Logger
	spawn  Spawner

	dedup      *dedup.Cache
	scheduler  *scheduler.Scheduler
	outbound   *queue.BoundedPriorityQueue[*domain.InjectRequest]
	supervisor *supervisor.Supervisor

	mu      sync.Mutex
	workers map[string]*worker
}

// New constructs a Pipeline from opts, filling in spec-mandated
// defaults for any zero-valued sizing fields.
func New(opts Options) *Pipeline {
	if opts.QueueMax <= 0 {
		opts.QueueMax = defaultQueueMax
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = defaultDedupTTL
	}
	if opts.DedupMax <= 0 {
		opts.DedupMax = defaultDedupMax
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = events.New(opts.Logger, false, nil)
	}

	return &Pipeline{
		events:     opts.Events,
		audit:      opts.Audit,
		logger:     opts.Logger,
		spawn:      opts.Spawn,
		dedup:      dedup.New(opts.DedupTTL, opts.DedupMax),
		scheduler:  scheduler.New(opts.HumanCooldownMs, opts.CoalesceWindowMs),
		outbound:   queue.New[*domain.InjectRequest](opts.QueueMax),
		supervisor: supervisor.New(),
		workers:    make(map[string]*worker),
	}
}

// AddAgent spawns a new supervised worker and begins routing
// deliveries to it.
func (p *Pipeline) AddAgent(ctx context.Context, spec domain.AgentSpec) error {
	if spec.Policy == (domain.RestartPolicy{}) {
		spec.Policy = domain.DefaultRestartPolicy()
	}

	parent, err := p.spawn(ctx, spec)
	if err != nil {
		return fmt.Errorf("spawn agent %s: %w", spec.Name, err)
	}

	p.mu.Lock()
	p.workers[spec.Name] = &worker{spec: spec, parent: parent, lastActivity: time.Now()}
	p.mu.Unlock()

	p.registerSupervised(spec)
	go p.watchExit(spec.Name, parent)

	p.events.Emit(events.KindAgentSpawned, events.AgentSpawned{
		Name: spec.Name, Runtime: string(spec.Runtime), Parent: spec.ShadowOf, Command: spec.Command,
	})

	return nil
}

// RemoveAgent gracefully shuts down and stops supervising a worker.
func (p *Pipeline) RemoveAgent(ctx context.Context, name, reason string, grace time.Duration) error {
	p.mu.Lock()
	w, ok := p.workers[name]
	if ok {
		delete(p.workers, name)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent %s is not supervised", name)
	}

	p.unregisterSupervised(name)
	p.events.Emit(events.KindAgentReleased, events.AgentReleased{Name: name})
	return w.parent.Shutdown(ctx, reason, grace)
}

func (p *Pipeline) localWorkers() []routing.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]routing.Worker, 0, len(p.workers))
	for name, w := range p.workers {
		out = append(out, routing.Worker{Name: name, Channels: w.spec.Channels})
	}
	return out
}

func (p *Pipeline) selfIdentities() (names map[string]struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	names = make(map[string]struct{}, len(p.workers))
	for name := range p.workers {
		names[name] = struct{}{}
	}
	return names
}

func newRequestID() string { return uuid.NewString() }
