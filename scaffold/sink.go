package scaffold

import (
	"context"
	"fmt"
	"time"

	"github.com/whitaker-io/machine/flowcontrol"
	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/transport"
)

// SinkConfig carries a terminal stage's addresses: Pull binds for the
// final worker pool's responses, ControlPub broadcasts EndOfProcess to
// that same pool, and CountConnect dials the preceding scaffold's count
// Pair. A Sink has no push socket and no onward count, matching
// scaffolds/sink/scaffold.py.
type SinkConfig struct {
	PullAddr         string
	ControlPubAddr   string
	CountConnectAddr string
	// SettleDelay is slept after all sockets are bound/connected, before
	// the poll loop starts.
	SettleDelay time.Duration
	// OnStartup and OnClosure, if set, are invoked exactly once each,
	// bracketing the whole run.
	OnStartup func()
	OnClosure func()
}

// RunSink drains the final data-plane feed, counting EndOfTask against the
// expected total until it closes, then broadcasts EndOfProcess once.
func RunSink(ctx context.Context, cfg SinkConfig) error {
	if cfg.OnStartup != nil {
		cfg.OnStartup()
	}
	if cfg.OnClosure != nil {
		defer cfg.OnClosure()
	}

	pull := transport.NewPuller()
	if err := pull.Bind(cfg.PullAddr); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	defer pull.Close()

	control := transport.NewPublisher()
	if err := control.Bind(cfg.ControlPubAddr); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	defer control.Close()

	countIn := transport.NewPair()
	if err := transport.ConnectRetry(ctx, countIn.Connect, cfg.CountConnectAddr, 0); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	defer countIn.Close()

	if err := settle(ctx, cfg.SettleDelay); err != nil {
		return fmt.Errorf("sink: %w", err)
	}

	acct := flowcontrol.NewAccountant()

	events := transport.Multiplex(ctx, map[string]transport.Receiver{
		"data":  pull,
		"count": countIn,
	})

	for !acct.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if ev.Err != nil {
				return fmt.Errorf("sink: %w", ev.Err)
			}

			switch ev.Source {
			case "data":
				m, err := message.DecodeFrames(ev.Frames)
				if err != nil {
					return fmt.Errorf("sink: decoding response: %w", err)
				}
				if m.IsEndOfTask() {
					acct.Count()
				}
			case "count":
				m, err := message.DecodeFrames(ev.Frames)
				if err != nil {
					return fmt.Errorf("sink: decoding count: %w", err)
				}
				if m.IsExpectedNItems() {
					if n, ok := m.NItems(); ok {
						acct.SetExpected(n)
					}
				}
			}
		}
	}

	return message.Send(control, message.NewEndOfProcess())
}
