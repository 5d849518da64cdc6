package pipeline

import "github.com/AgentWorkforce/relay-broker/internal/controlapi"

// Agents implements controlapi.Registry.
func (p *Pipeline) Agents() []controlapi.AgentStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]controlapi.AgentStatus, 0, len(p.workers))
	for name, w := range p.workers {
		out = append(out, p.statusLocked(name, w))
	}
	return out
}

// Agent implements controlapi.Registry.
func (p *Pipeline) Agent(name string) (controlapi.AgentDetail, bool) {
	p.mu.Lock()
	w, ok := p.workers[name]
	if !ok {
		p.mu.Unlock()
		return controlapi.AgentDetail{}, false
	}
	status := p.statusLocked(name, w)
	scrollback := w.parent.Scrollback()
	p.mu.Unlock()

	return controlapi.AgentDetail{AgentStatus: status, Scrollback: scrollback}, true
}

// Healthy implements controlapi.Registry: the pipeline is healthy as
// long as it supervises at least one worker. Workers awaiting a
// restart still count; their restart state is not inspected.
func (p *Pipeline) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers) > 0
}

// statusLocked builds an AgentStatus; callers must hold p.mu.
func (p *Pipeline) statusLocked(name string, w *worker) controlapi.AgentStatus {
	return controlapi.AgentStatus{
		Name:           name,
		Runtime:        string(w.spec.Runtime),
		Channels:       w.spec.Channels,
		Ready:          w.parent.IsReady(),
		RestartCount:   p.supervisor.RestartCount(name),
		PendingRestart: w.pendingRestart,
		ThrottleMs:     w.parent.ThrottleInterval().Milliseconds(),
		LastActivityAt: w.lastActivity,
	}
}
