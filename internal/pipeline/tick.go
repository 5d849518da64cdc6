package pipeline

import (
	"context"
	"time"

	"github.com/AgentWorkforce/relay-broker/internal/domain"
	"github.com/AgentWorkforce/relay-broker/internal/events"
)

// RecordHumanInput records a human keypress, gating non-urgent
// injection for the scheduler's cooldown window.
func (p *Pipeline) RecordHumanInput(now time.Time) {
	p.scheduler.RecordHumanInput(now)
}

// enqueue admits req into the bounded outbound queue, emitting
// delivery_queued on success and delivery_dropped if overflow evicted
// a lower-priority request to make room.
func (p *Pipeline) enqueue(req *domain.InjectRequest, now time.Time) {
	evicted, err := p.outbound.PushWithOverflowPolicy(req)
	if err != nil {
		p.events.Emit(events.KindDeliveryDropped, events.DeliveryDropped{
			Name: req.Target, Count: 1, Reason: "queue full, no evictable bucket",
		})
		return
	}

	p.events.Emit(events.KindDeliveryQueued, events.DeliveryQueued{
		DeliveryID: req.ID, EventID: req.EventID, Target: req.Target,
	})

	if evicted != nil {
		p.events.Emit(events.KindDeliveryDropped, events.DeliveryDropped{
			Name: (*evicted).Target, Count: 1, Reason: "evicted by higher-priority overflow",
		})
	}
}

// Tick runs one iteration of the pipeline's 50ms sweep (spec.md §5):
// it drains coalesce buckets whose window has elapsed into the
// outbound queue, dispatches every admissible request to its worker,
// sweeps each worker's echo/activity timers, and promotes any
// supervised agent whose restart cooldown has elapsed.
func (p *Pipeline) Tick(ctx context.Context, now time.Time) {
	for _, req := range p.scheduler.DrainReady(now) {
		p.enqueue(req, now)
	}

	p.dispatchReady(now)
	p.sweepWorkers()
	p.processPendingRestarts(ctx)
}

// dispatchReady pops every item from the outbound queue, delivering
// admissible ones to their worker and returning the rest (those
// blocked behind the human-cooldown gate) to the queue in their
// original relative order.
func (p *Pipeline) dispatchReady(now time.Time) {
	var retained []*domain.InjectRequest

	for {
		req, ok := p.outbound.Pop()
		if !ok {
			break
		}
		if !p.scheduler.CanInject(req.Priority, now) {
			retained = append(retained, req)
			continue
		}
		p.dispatch(req)
	}

	for _, req := range retained {
		p.outbound.Push(req) // best-effort: these items were just popped out, so room exists
	}
}

func (p *Pipeline) dispatch(req *domain.InjectRequest) {
	p.mu.Lock()
	w, ok := p.workers[req.Target]
	if ok {
		w.lastActivity = time.Now()
	}
	p.mu.Unlock()
	if !ok {
		p.events.Emit(events.KindDeliveryDropped, events.DeliveryDropped{
			Name: req.Target, Count: 1, Reason: "target worker no longer supervised",
		})
		return
	}

	w.parent.Deliver(*req, newRequestID())
	p.events.Emit(events.KindDeliveryInjected, events.DeliveryInjected{
		DeliveryID: req.ID, EventID: req.EventID, Name: req.Target,
	})
}

func (p *Pipeline) sweepWorkers() {
	p.mu.Lock()
	parents := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		parents = append(parents, w)
	}
	p.mu.Unlock()

	for _, w := range parents {
		w.parent.Sweep()
	}
}
