package transport

import (
	"context"
	"time"
)

// DefaultConnectRetryInterval is how often ConnectRetry re-attempts a dial
// against a peer that has not bound yet.
const DefaultConnectRetryInterval = 20 * time.Millisecond

// ConnectRetry calls connect(addr) until it succeeds or ctx is done,
// retrying every interval. A loopback TCP dial fails immediately with
// connection-refused if nothing is listening yet, unlike the eventually
// consistent connect semantics message-queue transports such as ZeroMQ
// provide; this makes a scaffold or worker's connect side tolerant of
// racing against its peer's bind, the same way a settling delay makes the
// bind side tolerant of racing against its peer's connect.
func ConnectRetry(ctx context.Context, connect func(string) error, addr string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultConnectRetryInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := connect(addr); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
