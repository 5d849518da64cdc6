// Package routing resolves an inbound event into a DeliveryPlan naming
// which local workers should receive it, and filters self-echo.
package routing

import (
	"strings"

	"github.com/AgentWorkforce/relay-broker/internal/domain"
)

// Worker is the routing view of a locally supervised agent: its name
// and the channels it currently subscribes to.
type Worker struct {
	Name     string
	Channels []string
}

func normalizeChannel(c string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c), "#"))
}

func eqFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

// IsSelfEcho reports whether an event should be dropped because it was
// emitted under one of our own agent identities. A frame whose From
// matches a local name, or whose SenderAgentID matches a local id, is
// dropped unless it resolves to a local target — in that case it is
// dashboard-originated and must be delivered.
func IsSelfEcho(event domain.InboundEvent, selfNames, selfAgentIDs map[string]struct{}, hasLocalTarget bool) bool {
	fromSelf := false
	for name := range selfNames {
		if eqFold(name, event.From) {
			fromSelf = true
			break
		}
	}
	if !fromSelf && event.SenderAgentID != "" {
		if _, ok := selfAgentIDs[event.SenderAgentID]; ok {
			fromSelf = true
		}
	}
	if !fromSelf {
		return false
	}

	// Messages emitted under our own identity but targeting local
	// workers/channels are dashboard-originated and should be delivered.
	return !hasLocalTarget
}

// ResolveDeliveryTargets produces the DeliveryPlan for an inbound event
// given the current set of locally supervised workers.
func ResolveDeliveryTargets(event domain.InboundEvent, workers []Worker) domain.DeliveryPlan {
	if strings.HasPrefix(event.Target, "#") {
		targets := WorkerNamesForChannelDelivery(workers, event.Target, event.From)
		return domain.DeliveryPlan{
			Targets:       targets,
			DisplayTarget: event.Target,
		}
	}

	// Thread replies without a channel target are broadcast to every
	// local worker except the sender.
	if event.Kind == domain.KindThreadReply && event.Target == domain.ThreadTarget {
		var targets []string
		for _, w := range workers {
			if eqFold(w.Name, event.From) {
				continue
			}
			targets = append(targets, w.Name)
		}
		return domain.DeliveryPlan{
			Targets:       targets,
			DisplayTarget: domain.ThreadTarget,
		}
	}

	direct := WorkerNamesForDirectTarget(workers, event.Target, event.From)
	needsDM := len(direct) == 0 && (event.Kind == domain.KindDM || event.Kind == domain.KindGroupDM)

	return domain.DeliveryPlan{
		Targets:           direct,
		DisplayTarget:     event.Target,
		NeedsDMResolution: needsDM,
	}
}

// WorkerNamesForChannelDelivery returns every worker (other than the
// sender) subscribed to channel.
func WorkerNamesForChannelDelivery(workers []Worker, channel, from string) []string {
	normalized := normalizeChannel(channel)
	var out []string
	for _, w := range workers {
		if eqFold(w.Name, from) {
			continue
		}
		for _, c := range w.Channels {
			if normalizeChannel(c) == normalized {
				out = append(out, w.Name)
				break
			}
		}
	}
	return out
}

// WorkerNamesForDirectTarget returns the worker (if any) whose name
// matches target, with or without a leading '@', excluding the sender.
func WorkerNamesForDirectTarget(workers []Worker, target, from string) []string {
	trimmed := strings.TrimSpace(target)
	var out []string
	for _, w := range workers {
		if eqFold(w.Name, from) {
			continue
		}
		if eqFold(trimmed, w.Name) || eqFold(trimmed, "@"+w.Name) {
			out = append(out, w.Name)
		}
	}
	return out
}

// WorkerNamesForDMParticipants returns every worker named among
// participants, excluding the sender.
func WorkerNamesForDMParticipants(workers []Worker, participants []string, from string) []string {
	var out []string
	for _, w := range workers {
		if eqFold(w.Name, from) {
			continue
		}
		for _, p := range participants {
			if eqFold(p, w.Name) {
				out = append(out, w.Name)
				break
			}
		}
	}
	return out
}

// DisplayTargetForDashboard maps a self name onto the dashboard's
// primary display name so a worker never sees itself as an external
// target.
func DisplayTargetForDashboard(target string, selfNames map[string]struct{}, primaryName string) string {
	for name := range selfNames {
		if eqFold(target, name) {
			return primaryName
		}
	}
	return target
}
