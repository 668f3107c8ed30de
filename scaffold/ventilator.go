// Package scaffold implements the four coordinator kinds that fan work out
// to, and fan completion signals in from, a stage's worker pool:
// Ventilator (the pipeline's source), Collator (one-in one-out stage with
// its own request transform), Parallel (fan-out to several downstream
// branches) and Sink (the pipeline's terminal stage). Each is grounded on
// the matching scaffolds/<kind>/scaffold.py in the original implementation.
package scaffold

import (
	"context"
	"fmt"
	"time"

	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/transport"
)

// RequestSource produces the messages a Ventilator emits, one call per
// logical unit of work (e.g. one input file), in the original's terms the
// `iterable` driving repeated `request_fn(el, **kwargs)` calls.
type RequestSource interface {
	Next(ctx context.Context) (*message.Message, bool, error)
}

// VentilatorConfig carries a Ventilator's addresses. Push is bound so the
// first worker stage's Pullers can connect; CountBind is listened on for
// the first downstream scaffold to connect and read the one-shot
// emitted-item count, matching scaffold_sender.bind in the original.
type VentilatorConfig struct {
	PushAddr      string
	CountBindAddr string
	// SettleDelay is slept after binding, before the source is drained,
	// giving the first worker stage's Pullers time to connect.
	SettleDelay time.Duration
	// OnStartup and OnClosure, if set, are invoked exactly once each: the
	// former before any socket is bound, the latter after the count is
	// reported and sockets are closed.
	OnStartup func()
	OnClosure func()
}

// RunVentilator drains src over Push and finally reports the number of
// items it emitted over the scaffold-to-scaffold Pair channel, mirroring
// scaffolds/ventilator/scaffold.py exactly: no pull socket, no control
// socket, and the count is sent once, after the source is exhausted.
func RunVentilator(ctx context.Context, cfg VentilatorConfig, src RequestSource) error {
	if cfg.OnStartup != nil {
		cfg.OnStartup()
	}
	if cfg.OnClosure != nil {
		defer cfg.OnClosure()
	}

	push := transport.NewPusher()
	if err := push.Bind(cfg.PushAddr); err != nil {
		return fmt.Errorf("ventilator: %w", err)
	}
	defer push.Close()

	count := transport.NewPair()
	if err := count.Bind(cfg.CountBindAddr); err != nil {
		return fmt.Errorf("ventilator: %w", err)
	}
	defer count.Close()

	if err := settle(ctx, cfg.SettleDelay); err != nil {
		return fmt.Errorf("ventilator: %w", err)
	}

	n := 0
	for {
		m, ok, err := src.Next(ctx)
		if err != nil {
			return fmt.Errorf("ventilator: reading source: %w", err)
		}
		if !ok {
			break
		}

		if err := message.Send(push, m); err != nil {
			return fmt.Errorf("ventilator: pushing request: %w", err)
		}
		n++
	}

	return message.Send(count, message.NewExpectedNItems(n))
}
