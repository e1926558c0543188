package chain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Listen subscribes to channel on the PostgreSQL server at dsn and returns
// a channel that fires after inserts, for use as Run's wake channel. Wake-ups
// are coalesced: a burst of inserts produces at least one signal. The
// listener closes when ctx is done.
func Listen(ctx context.Context, dsn, channel string, logger *slog.Logger) (<-chan struct{}, error) {
	report := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.WarnContext(ctx, "chain listener event", "event", int(ev), "error", err)
		}
	}
	listener := pq.NewListener(dsn, time.Second, time.Minute, report)
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	wake := make(chan struct{}, 1)
	go func() {
		defer listener.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				// A nil notification follows a reconnect; rows may have been
				// inserted while disconnected, so it wakes the runner too.
				if n != nil {
					logger.DebugContext(ctx, "claim inserted", "claim_row_id", n.Extra)
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case <-time.After(90 * time.Second):
				go listener.Ping()
			}
		}
	}()
	return wake, nil
}
