package domain

import "time"

// RestartPolicy governs how a supervised agent is restarted after it
// exits unexpectedly.
type RestartPolicy struct {
	Enabled             bool
	MaxRestarts         int
	Cooldown            time.Duration
	MaxConsecutiveFails int
}

// DefaultRestartPolicy matches the reference implementation's defaults.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		Enabled:             true,
		MaxRestarts:         5,
		Cooldown:            2000 * time.Millisecond,
		MaxConsecutiveFails: 3,
	}
}

// AgentRuntime names the kind of process a worker wraps.
type AgentRuntime string

const (
	RuntimeClaudeCode AgentRuntime = "claude-code"
	RuntimeCodex       AgentRuntime = "codex"
	RuntimeGeneric     AgentRuntime = "generic"
)

// AgentSpec describes everything needed to spawn (or respawn) a worker.
//
// ShadowOf/ShadowMode and Team are supplemented from the original
// Rust source (see SPEC_FULL.md §C.1): a shadow agent observes the
// same deliveries as the agent it shadows without being a primary
// routing target, and Team groups agents for dashboard display only.
type AgentSpec struct {
	Name         string
	Runtime      AgentRuntime
	Command      string
	Args         []string
	Channels     []string
	Rows, Cols   uint16
	InitialTask  string
	ShadowOf     string
	ShadowMode   bool
	Team         string
	Policy       RestartPolicy
}

// RestartState tracks a supervised agent's restart history.
type RestartState struct {
	Spec                AgentSpec
	Policy              RestartPolicy
	TotalRestarts        int
	ConsecutiveFailures  int
	LastExit             time.Time
	HasExited            bool
	InitialTask          string
	Parent               string
}

// RestartDecision is the result of Supervisor.OnExit.
type RestartDecision struct {
	ShouldRestart bool
	Delay         time.Duration
	Dead          bool
	DeadReason    string
}
