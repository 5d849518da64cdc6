package pipeline

import (
	"context"

	"github.com/AgentWorkforce/relay-broker/internal/audit"
	"github.com/AgentWorkforce/relay-broker/internal/domain"
	"github.com/AgentWorkforce/relay-broker/internal/events"
	"github.com/AgentWorkforce/relay-broker/internal/supervisor"
	"github.com/AgentWorkforce/relay-broker/internal/workerproc"
)

// supervisor.Supervisor keeps no internal lock of its own (it was built
// to be driven from a single goroutine); every call from this package
// goes through p.mu alongside the worker map it's always updated in
// lockstep with, since watchExit goroutines, the Run loop, and the
// control API's registry reads all reach it concurrently.

func (p *Pipeline) registerSupervised(spec domain.AgentSpec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.supervisor.Register(spec.Name, spec, spec.ShadowOf, spec.InitialTask, spec.Policy)
}

func (p *Pipeline) unregisterSupervised(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.supervisor.Unregister(name)
}

func (p *Pipeline) pendingRestarts() []supervisor.PendingRestart {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.supervisor.PendingRestarts()
}

// watchExit blocks on parent.Exited() and reports the outcome once
// the worker process's stdout closes.
func (p *Pipeline) watchExit(name string, parent WorkerHandle) {
	info, ok := <-parent.Exited()
	if !ok {
		return
	}
	p.onWorkerExited(name, info)
}

func (p *Pipeline) onWorkerExited(name string, info workerproc.ExitInfo) {
	p.events.Emit(events.KindAgentExited, events.AgentExited{Name: name, Code: info.Code, Signal: info.Signal})

	p.mu.Lock()
	decision, known := p.supervisor.OnExit(name)
	if !known {
		p.mu.Unlock()
		return
	}

	if decision.Dead {
		delete(p.workers, name)
		p.supervisor.Unregister(name)
		p.mu.Unlock()

		p.events.Emit(events.KindAgentPermanentlyDead, events.AgentPermanentlyDead{Name: name, Reason: decision.DeadReason})
		p.recordAudit(context.Background(), audit.KindRestartExhausted, name, decision.DeadReason)
		return
	}

	if w, ok := p.workers[name]; ok {
		w.pendingRestart = true
	}
	restartCount := p.supervisor.RestartCount(name) + 1
	p.mu.Unlock()

	p.events.Emit(events.KindAgentRestarting, events.AgentRestarting{
		Name: name, ExitCode: info.Code, Signal: info.Signal,
		RestartCount: restartCount,
		DelayMs:      decision.Delay.Milliseconds(),
	})
}

// processPendingRestarts respawns every agent whose restart cooldown
// has elapsed.
func (p *Pipeline) processPendingRestarts(ctx context.Context) {
	for _, pending := range p.pendingRestarts() {
		parent, err := p.spawn(ctx, pending.Spec)
		if err != nil {
			p.logger.Warn("restart attempt failed", "agent", pending.Spec.Name, "error", err)
			continue
		}

		p.mu.Lock()
		if w, ok := p.workers[pending.Spec.Name]; ok {
			w.parent = parent
			w.pendingRestart = false
		}
		p.supervisor.OnRestarted(pending.Spec.Name)
		p.mu.Unlock()

		go p.watchExit(pending.Spec.Name, parent)

		p.events.Emit(events.KindAgentRestarted, events.AgentRestarted{Name: pending.Spec.Name, RestartCount: pending.RestartCount})
		p.recordAudit(ctx, audit.KindRestart, pending.Spec.Name, "restart cooldown elapsed")
	}
}

func (p *Pipeline) recordAudit(ctx context.Context, kind, agent, detail string) {
	if p.audit == nil {
		return
	}
	if err := p.audit.Record(ctx, kind, agent, detail); err != nil {
		p.logger.Warn("failed to record audit entry", "kind", kind, "agent", agent, "error", err)
	}
}
