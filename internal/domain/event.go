// Package domain contains the core wire and pipeline types shared by
// every stage of the relay broker: inbound events, injection requests,
// delivery plans, activity tracking, and supervised-agent state.
package domain

// Priority is the relay priority of an inbound event or injection
// request. Lower numbers are more urgent; P0 is the highest priority.
type Priority int

const (
	P0 Priority = iota
	P1
	P2
	P3
	P4
)

// NumPriorities is the number of distinct priority buckets.
const NumPriorities = int(P4) + 1

// EventKind discriminates the shape of an inbound frame from the
// coordination service.
type EventKind string

const (
	KindChannelMessage EventKind = "channel_message"
	KindDM             EventKind = "dm"
	KindGroupDM        EventKind = "group_dm"
	KindThreadReply    EventKind = "thread_reply"
	KindPresence       EventKind = "presence"
)

// SenderKind classifies who originated an inbound event.
type SenderKind string

const (
	SenderAgent   SenderKind = "agent"
	SenderHuman   SenderKind = "human"
	SenderUnknown SenderKind = "unknown"
)

// ThreadTarget is the sentinel target value for thread-reply broadcasts.
const ThreadTarget = "thread"

// InboundEvent is the canonical, normalized form of a wire frame from
// the coordination service. event_id is the sole deduplication key:
// two events sharing an id are the same delivery regardless of payload.
type InboundEvent struct {
	EventID        string
	Kind           EventKind
	From           string
	SenderAgentID  string
	SenderKind     SenderKind
	Target         string
	Text           string
	ThreadID       string
	Priority       Priority
}

// QueuePriority satisfies queue.Prioritized.
func (e InboundEvent) QueuePriority() Priority { return e.Priority }
