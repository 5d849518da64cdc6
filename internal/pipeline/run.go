package pipeline

import (
	"context"
	"time"

	"github.com/AgentWorkforce/relay-broker/internal/wsclient"
)

// inboundBuffer bounds how many WS frames may queue up between the
// session's reader goroutine and the pipeline's single-threaded
// processing loop.
const inboundBuffer = 256

// Run drives the pipeline's event loop until ctx is cancelled: it
// starts session's reconnecting WS read loop, processes every inbound
// frame as it arrives, and ticks the coalescing/dispatch/supervision
// sweep every TickInterval (spec.md §5).
func (p *Pipeline) Run(ctx context.Context, session *wsclient.Session) {
	inbound := make(chan wsclient.Inbound, inboundBuffer)
	go session.Run(ctx, inbound)

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-inbound:
			if !ok {
				return
			}
			p.HandleInbound(frame, time.Now())

		case now := <-ticker.C:
			p.Tick(ctx, now)
		}
	}
}
