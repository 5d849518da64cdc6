// Package supervisor tracks restart state for supervised worker
// agents and decides whether a crashed agent should be restarted or
// declared permanently dead (spec.md §6, "Process supervisor").
package supervisor

import (
	"fmt"
	"time"

	"github.com/AgentWorkforce/relay-broker/internal/domain"
)

// PendingRestart describes an agent whose cooldown has elapsed and is
// ready to be respawned.
type PendingRestart struct {
	Spec         domain.AgentSpec
	Parent       string
	InitialTask  string
	RestartCount int
}

// Supervisor manages restart state for all supervised agents, keyed by
// agent name.
type Supervisor struct {
	states map[string]*domain.RestartState
}

// New creates an empty Supervisor.
func New() *Supervisor {
	return &Supervisor{states: make(map[string]*domain.RestartState)}
}

// Register begins supervising an agent. Called at spawn time.
func (s *Supervisor) Register(name string, spec domain.AgentSpec, parent, initialTask string, policy domain.RestartPolicy) {
	s.states[name] = &domain.RestartState{
		Spec:        spec,
		Policy:      policy,
		InitialTask: initialTask,
		Parent:      parent,
	}
}

// Unregister stops supervising an agent (intentional release — no
// restart will be offered).
func (s *Supervisor) Unregister(name string) {
	delete(s.states, name)
}

// OnExit is called when a supervised agent's process exits. It
// returns the restart decision, or ok=false if the agent is not
// supervised (released or never registered).
func (s *Supervisor) OnExit(name string) (domain.RestartDecision, bool) {
	state, found := s.states[name]
	if !found {
		return domain.RestartDecision{}, false
	}

	if !state.Policy.Enabled {
		return domain.RestartDecision{Dead: true, DeadReason: "restart policy disabled"}, true
	}

	state.ConsecutiveFailures++
	state.LastExit = time.Now()
	state.HasExited = true

	if state.TotalRestarts >= state.Policy.MaxRestarts {
		return domain.RestartDecision{
			Dead:       true,
			DeadReason: fmt.Sprintf("exceeded max restarts (%d)", state.Policy.MaxRestarts),
		}, true
	}

	if state.ConsecutiveFailures > state.Policy.MaxConsecutiveFails {
		return domain.RestartDecision{
			Dead:       true,
			DeadReason: fmt.Sprintf("exceeded max consecutive failures (%d)", state.Policy.MaxConsecutiveFails),
		}, true
	}

	return domain.RestartDecision{ShouldRestart: true, Delay: state.Policy.Cooldown}, true
}

// OnRestarted is called after a successful restart to reset the
// consecutive-failure count and bump the total restart count.
func (s *Supervisor) OnRestarted(name string) {
	if state, ok := s.states[name]; ok {
		state.TotalRestarts++
		state.ConsecutiveFailures = 0
	}
}

// PendingRestarts returns every agent that has exited, is not yet
// beyond its restart/failure limits, and whose cooldown has elapsed.
func (s *Supervisor) PendingRestarts() []PendingRestart {
	now := time.Now()
	var out []PendingRestart
	for _, state := range s.states {
		if !state.HasExited || !state.Policy.Enabled {
			continue
		}
		if now.Sub(state.LastExit) < state.Policy.Cooldown {
			continue
		}
		if state.TotalRestarts >= state.Policy.MaxRestarts {
			continue
		}
		if state.ConsecutiveFailures > state.Policy.MaxConsecutiveFails {
			continue
		}
		out = append(out, PendingRestart{
			Spec:         state.Spec,
			Parent:       state.Parent,
			InitialTask:  state.InitialTask,
			RestartCount: state.TotalRestarts + 1,
		})
	}
	return out
}

// RestartCount reports the total number of restarts performed for an
// agent, or 0 if it is unknown.
func (s *Supervisor) RestartCount(name string) int {
	if state, ok := s.states[name]; ok {
		return state.TotalRestarts
	}
	return 0
}

// IsSupervised reports whether an agent is currently registered.
func (s *Supervisor) IsSupervised(name string) bool {
	_, ok := s.states[name]
	return ok
}
