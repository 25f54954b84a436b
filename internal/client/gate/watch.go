package gate

import (
	"context"
	"time"

	"github.com/dmitrijs2005/casekeeper/internal/client/client"
)

// Watch pings the server every interval and opens or closes the gate from
// the result. A successful ping while closed replays the queue. It returns
// when ctx is done.
func (g *Gate) Watch(ctx context.Context, p client.Pinger, interval, timeout time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			err := p.Ping(pingCtx)
			cancel()

			if err != nil {
				if g.State() == Open {
					g.log.Warn(ctx, "server unreachable", "error", err)
					g.SetOffline(ctx)
				}
				continue
			}
			if g.State() == Closed {
				if err := g.SetOnline(ctx); err != nil && ctx.Err() == nil {
					g.log.Warn(ctx, "replay after reconnect failed", "error", err)
				}
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
