// Package normalize maps a decoded WS wire frame (spec.md §6) onto the
// broker's canonical domain.InboundEvent, assigning the priority and
// target semantics §3/§4.2 fix for each recognized frame kind.
// Grounded on original_source/relay-broker/tests/inbound_pipeline.rs's
// map_ws_event/to_inject_request call shape; message_bridge.rs itself
// was not retained in the reference pack.
package normalize

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/AgentWorkforce/relay-broker/internal/domain"
)

// FromWire maps a decoded JSON wire frame to an InboundEvent. ok is
// false for unrecognized kinds or frames missing required fields;
// callers must drop those with a debug log, never treat them as fatal.
func FromWire(frame map[string]any) (domain.InboundEvent, bool) {
	kind, _ := frame["type"].(string)

	switch kind {
	case "message.created":
		return fromChannelMessage(frame)
	case "dm.received":
		return fromDirectMessage(frame, domain.KindDM, domain.P2)
	case "dm.group.received":
		return fromDirectMessage(frame, domain.KindGroupDM, domain.P2)
	case "thread.reply":
		return fromThreadReply(frame)
	case "command.invoked":
		return fromCommandInvoked(frame)
	case "presence.online", "presence.offline", "presence.updated":
		return fromPresence(frame)
	default:
		return domain.InboundEvent{}, false
	}
}

func fromChannelMessage(frame map[string]any) (domain.InboundEvent, bool) {
	channel, _ := frame["channel"].(string)
	msg, _ := frame["message"].(map[string]any)
	if channel == "" || msg == nil {
		return domain.InboundEvent{}, false
	}
	id, _ := msg["id"].(string)
	from, _ := msg["agent_name"].(string)
	text, _ := msg["text"].(string)
	if id == "" || from == "" {
		return domain.InboundEvent{}, false
	}
	agentID, _ := msg["agent_id"].(string)

	return domain.InboundEvent{
		EventID:       id,
		Kind:          domain.KindChannelMessage,
		From:          from,
		SenderAgentID: agentID,
		SenderKind:    senderKindOf(agentID),
		Target:        "#" + channel,
		Text:          text,
		Priority:      domain.P3,
	}, true
}

func fromDirectMessage(frame map[string]any, kind domain.EventKind, priority domain.Priority) (domain.InboundEvent, bool) {
	conversationID, _ := frame["conversation_id"].(string)
	msg, _ := frame["message"].(map[string]any)
	if conversationID == "" || msg == nil {
		return domain.InboundEvent{}, false
	}
	id, _ := msg["id"].(string)
	from, _ := msg["agent_name"].(string)
	text, _ := msg["text"].(string)
	if id == "" || from == "" {
		return domain.InboundEvent{}, false
	}
	agentID, _ := msg["agent_id"].(string)

	return domain.InboundEvent{
		EventID:       id,
		Kind:          kind,
		From:          from,
		SenderAgentID: agentID,
		SenderKind:    senderKindOf(agentID),
		Target:        conversationID,
		Text:          text,
		Priority:      priority,
	}, true
}

func fromThreadReply(frame map[string]any) (domain.InboundEvent, bool) {
	threadID, _ := frame["thread_id"].(string)
	msg, _ := frame["message"].(map[string]any)
	if threadID == "" || msg == nil {
		return domain.InboundEvent{}, false
	}
	id, _ := msg["id"].(string)
	from, _ := msg["agent_name"].(string)
	text, _ := msg["text"].(string)
	if id == "" || from == "" {
		return domain.InboundEvent{}, false
	}
	agentID, _ := msg["agent_id"].(string)

	target, _ := frame["target"].(string)
	if target == "" {
		target = domain.ThreadTarget
	}

	return domain.InboundEvent{
		EventID:       id,
		Kind:          domain.KindThreadReply,
		From:          from,
		SenderAgentID: agentID,
		SenderKind:    senderKindOf(agentID),
		Target:        target,
		Text:          text,
		ThreadID:      threadID,
		Priority:      domain.P3,
	}, true
}

// fromCommandInvoked maps a slash-command invocation onto the single
// existing direct-delivery kind (DM): it has exactly the same
// single-intended-recipient semantics as a DM, the recipient is the
// required handler_agent_id rather than a conversation id, and it is
// assigned the top urgent priority since a human explicitly targeted
// one agent to act (SPEC_FULL.md §D).
func fromCommandInvoked(frame map[string]any) (domain.InboundEvent, bool) {
	command, _ := frame["command"].(string)
	invokedBy, _ := frame["invoked_by"].(string)
	handlerAgentID, _ := frame["handler_agent_id"].(string)
	if command == "" || invokedBy == "" || handlerAgentID == "" {
		return domain.InboundEvent{}, false
	}

	// command.invoked never carries an id/event_id on the wire
	// (spec.md §6), and event_id is the sole dedup key with a 300s TTL
	// (spec.md §3/§5). A pure field concatenation here would give two
	// distinct invocations of the same command by the same human
	// against the same agent within that window an identical
	// synthesized id — e.g. a retried "/restart bob" after the first
	// attempt visibly failed — and the second, legitimate invocation
	// would be silently swallowed as a duplicate. A random discriminator
	// keeps each invocation its own dedup key.
	id, _ := frame["id"].(string)
	if id == "" {
		id = handlerAgentID + ":" + command + ":" + invokedBy + ":" + uuid.NewString()
	}

	return domain.InboundEvent{
		EventID:       id,
		Kind:          domain.KindDM,
		From:          invokedBy,
		SenderAgentID: "",
		SenderKind:    domain.SenderHuman,
		Target:        handlerAgentID,
		Text:          formatCommandText(command, frame["parameters"]),
		Priority:      domain.P0,
	}, true
}

func formatCommandText(command string, parameters any) string {
	if parameters == nil {
		return "/" + command
	}
	return fmt.Sprintf("/%s %v", command, parameters)
}

func fromPresence(frame map[string]any) (domain.InboundEvent, bool) {
	id, _ := frame["id"].(string)
	who, _ := frame["agent_name"].(string)
	if id == "" || who == "" {
		return domain.InboundEvent{}, false
	}

	return domain.InboundEvent{
		EventID:    id,
		Kind:       domain.KindPresence,
		From:       who,
		SenderKind: domain.SenderUnknown,
		Priority:   domain.P4,
	}, true
}

func senderKindOf(agentID string) domain.SenderKind {
	if agentID != "" {
		return domain.SenderAgent
	}
	return domain.SenderUnknown
}
