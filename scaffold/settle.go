package scaffold

import (
	"context"
	"time"
)

// settle sleeps for d after a scaffold's sockets are bound/connected,
// mirroring every scaffolds/*/scaffold.py's time.sleep(LAUNCH_SLEEP_TIME)
// call between socket setup and the first send/recv: this transport dials
// real TCP listeners, so a peer connecting before the bind completes would
// otherwise see connection-refused rather than a queued connect.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
