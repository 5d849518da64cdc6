// Package events defines the broker's structured event taxonomy and
// emits it either as human-readable log lines (via slog) or as
// newline-delimited JSON on stderr for machine consumers (spec.md §7,
// supplemented by the full BrokerEvent taxonomy in SPEC_FULL.md §C.2).
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Kind names a broker event type, mirroring the original
// implementation's BrokerEvent tag.
type Kind string

const (
	KindAgentSpawned           Kind = "agent_spawned"
	KindAgentReleased          Kind = "agent_released"
	KindAgentExit              Kind = "agent_exit"
	KindAgentExited            Kind = "agent_exited"
	KindRelayInbound           Kind = "relay_inbound"
	KindWorkerStream           Kind = "worker_stream"
	KindDeliveryRetry          Kind = "delivery_retry"
	KindDeliveryDropped        Kind = "delivery_dropped"
	KindDeliveryVerified       Kind = "delivery_verified"
	KindDeliveryFailed         Kind = "delivery_failed"
	KindDeliveryQueued         Kind = "delivery_queued"
	KindDeliveryInjected       Kind = "delivery_injected"
	KindDeliveryActive         Kind = "delivery_active"
	KindDeliveryAck            Kind = "delivery_ack"
	KindAclDenied              Kind = "acl_denied"
	KindRelaycastPublished     Kind = "relaycast_published"
	KindRelaycastPublishFailed Kind = "relaycast_publish_failed"
	KindAgentIdle              Kind = "agent_idle"
	KindAgentRestarting        Kind = "agent_restarting"
	KindAgentRestarted         Kind = "agent_restarted"
	KindAgentPermanentlyDead   Kind = "agent_permanently_dead"
)

// Emitter emits broker events, optionally also as JSON lines on w when
// jsonOutput is enabled (--json-output).
type Emitter struct {
	logger     *slog.Logger
	jsonOutput bool
	w          io.Writer
}

// New creates an Emitter that always logs through logger and
// additionally writes newline-delimited JSON to w when jsonOutput is
// true.
func New(logger *slog.Logger, jsonOutput bool, w io.Writer) *Emitter {
	return &Emitter{logger: logger, jsonOutput: jsonOutput, w: w}
}

// Emit logs kind at info level with attrs, and — when JSON output is
// enabled — additionally writes a {ts, type, payload} line to the
// emitter's writer.
func (e *Emitter) Emit(kind Kind, payload any) {
	e.logger.Info(string(kind), "payload", payload)

	if !e.jsonOutput {
		return
	}

	line := struct {
		Ts      string `json:"ts"`
		Type    Kind   `json:"type"`
		Payload any    `json:"payload"`
	}{
		Ts:      time.Now().UTC().Format(time.RFC3339),
		Type:    kind,
		Payload: payload,
	}

	encoded, err := json.Marshal(line)
	if err != nil {
		e.logger.Warn("failed to marshal event for json output", "kind", kind, "error", err)
		return
	}
	fmt.Fprintln(e.w, string(encoded))
}

// AgentSpawned is the payload of KindAgentSpawned.
type AgentSpawned struct {
	Name    string `json:"name"`
	Runtime string `json:"runtime"`
	Parent  string `json:"parent,omitempty"`
	Command string `json:"command,omitempty"`
	PID     int    `json:"pid,omitempty"`
	Source  string `json:"source,omitempty"`
}

// AgentReleased is the payload of KindAgentReleased.
type AgentReleased struct {
	Name string `json:"name"`
}

// AgentExited is the payload of KindAgentExited.
type AgentExited struct {
	Name   string `json:"name"`
	Code   *int   `json:"code,omitempty"`
	Signal string `json:"signal,omitempty"`
}

// RelayInbound is the payload of KindRelayInbound.
type RelayInbound struct {
	EventID  string `json:"event_id"`
	From     string `json:"from"`
	Target   string `json:"target"`
	Body     string `json:"body"`
	ThreadID string `json:"thread_id,omitempty"`
}

// DeliveryRetry is the payload of KindDeliveryRetry.
type DeliveryRetry struct {
	Name       string `json:"name"`
	DeliveryID string `json:"delivery_id"`
	EventID    string `json:"event_id"`
	Attempts   int    `json:"attempts"`
}

// DeliveryQueued is the payload of KindDeliveryQueued.
type DeliveryQueued struct {
	DeliveryID string `json:"delivery_id"`
	EventID    string `json:"event_id"`
	Target     string `json:"target"`
}

// DeliveryInjected is the payload of KindDeliveryInjected.
type DeliveryInjected struct {
	DeliveryID string `json:"delivery_id"`
	EventID    string `json:"event_id"`
	Name       string `json:"name"`
}

// DeliveryDropped is the payload of KindDeliveryDropped.
type DeliveryDropped struct {
	Name   string `json:"name"`
	Count  int    `json:"count"`
	Reason string `json:"reason"`
}

// DeliveryVerified is the payload of KindDeliveryVerified.
type DeliveryVerified struct {
	Name       string `json:"name"`
	DeliveryID string `json:"delivery_id"`
	EventID    string `json:"event_id"`
}

// DeliveryFailed is the payload of KindDeliveryFailed.
type DeliveryFailed struct {
	Name       string `json:"name"`
	DeliveryID string `json:"delivery_id"`
	EventID    string `json:"event_id"`
	Reason     string `json:"reason"`
}

// AclDenied is the payload of KindAclDenied.
type AclDenied struct {
	Name       string   `json:"name"`
	Sender     string   `json:"sender"`
	OwnerChain []string `json:"owner_chain"`
}

// RelaycastPublished is the payload of KindRelaycastPublished.
type RelaycastPublished struct {
	EventID    string `json:"event_id"`
	To         string `json:"to"`
	TargetType string `json:"target_type"`
}

// RelaycastPublishFailed is the payload of KindRelaycastPublishFailed.
type RelaycastPublishFailed struct {
	EventID string `json:"event_id"`
	To      string `json:"to"`
	Reason  string `json:"reason"`
}

// AgentIdle is the payload of KindAgentIdle.
type AgentIdle struct {
	Name     string `json:"name"`
	IdleSecs uint64 `json:"idle_secs"`
}

// AgentRestarting is the payload of KindAgentRestarting.
type AgentRestarting struct {
	Name         string `json:"name"`
	ExitCode     *int   `json:"code,omitempty"`
	Signal       string `json:"signal,omitempty"`
	RestartCount int    `json:"restart_count"`
	DelayMs      int64  `json:"delay_ms"`
}

// AgentRestarted is the payload of KindAgentRestarted.
type AgentRestarted struct {
	Name         string `json:"name"`
	RestartCount int    `json:"restart_count"`
}

// AgentPermanentlyDead is the payload of KindAgentPermanentlyDead.
type AgentPermanentlyDead struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}
