package pipeline

import (
	"time"

	"github.com/AgentWorkforce/relay-broker/internal/domain"
	"github.com/AgentWorkforce/relay-broker/internal/events"
	"github.com/AgentWorkforce/relay-broker/internal/normalize"
	"github.com/AgentWorkforce/relay-broker/internal/routing"
	"github.com/AgentWorkforce/relay-broker/internal/wsclient"
)

// HandleInbound normalizes, deduplicates, and routes one decoded WS
// frame, pushing an InjectRequest into the coalescing scheduler for
// every local worker the routing plan names. Synthetic session
// frames (broker.connection, broker.channel_join) are logged and
// otherwise ignored; they carry no deliverable payload.
func (p *Pipeline) HandleInbound(frame wsclient.Inbound, now time.Time) {
	if frame.Synthetic {
		p.logger.Debug("session lifecycle frame", "frame", frame.Value)
		return
	}

	event, ok := normalize.FromWire(frame.Value)
	if !ok {
		p.logger.Debug("dropping unrecognized or malformed inbound frame", "frame", frame.Value)
		return
	}

	plan := routing.ResolveDeliveryTargets(event, p.localWorkers())

	if routing.IsSelfEcho(event, p.selfIdentities(), nil, len(plan.Targets) > 0) {
		p.logger.Debug("dropping self-echo event", "event_id", event.EventID, "from", event.From)
		return
	}

	if !p.dedup.InsertIfNew(event.EventID, now) {
		p.logger.Debug("dropping duplicate event", "event_id", event.EventID)
		return
	}

	if len(plan.Targets) == 0 {
		if plan.NeedsDMResolution {
			// Resolving DM/group-DM participants not already present as
			// local workers requires querying the remote coordination
			// service, which §1 places out of this project's scope as
			// an external collaborator; such events are dropped rather
			// than guessed at.
			p.logger.Debug("dropping DM event needing remote participant resolution", "event_id", event.EventID)
		}
		return
	}

	p.events.Emit(events.KindRelayInbound, events.RelayInbound{
		EventID: event.EventID, From: event.From, Target: plan.DisplayTarget, Body: event.Text, ThreadID: event.ThreadID,
	})

	for _, target := range plan.Targets {
		req := &domain.InjectRequest{
			ID:       newRequestID(),
			From:     event.From,
			Target:   target,
			Body:     event.Text,
			Priority: event.Priority,
			ThreadID: event.ThreadID,
			EventID:  event.EventID,
		}
		if flushed := p.scheduler.Push(req, now); flushed != nil {
			p.enqueue(flushed, now)
		}
	}
}
