package scaffold

import (
	"context"
	"fmt"
	"time"

	"github.com/whitaker-io/machine/flowcontrol"
	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/transport"
)

// Transform converts one collected response into the request the next
// stage expects, the Go stand-in for a Collator's `request_fn` callback in
// scaffolds/collator/scaffold.py.
type Transform interface {
	Apply(ctx context.Context, in *message.Message) (*message.Message, error)
}

// TransformFunc adapts a plain function to Transform.
type TransformFunc func(ctx context.Context, in *message.Message) (*message.Message, error)

// Apply calls f.
func (f TransformFunc) Apply(ctx context.Context, in *message.Message) (*message.Message, error) {
	return f(ctx, in)
}

// CollatorConfig carries a Collator's five addresses: Pull and Push are the
// data plane, ControlPub broadcasts EndOfProcess to this stage's own
// worker pool, CountConnect dials the preceding scaffold's count Pair and
// CountBind is listened on for the next scaffold to connect and read this
// stage's own emitted count.
type CollatorConfig struct {
	PullAddr         string
	PushAddr         string
	ControlPubAddr   string
	CountConnectAddr string
	CountBindAddr    string
	// SettleDelay is slept after all sockets are bound/connected, before
	// the poll loop starts.
	SettleDelay time.Duration
	// OnStartup and OnClosure, if set, are invoked exactly once each,
	// bracketing the whole run.
	OnStartup func()
	OnClosure func()
}

// RunCollator pulls worker responses, applies transform to build the next
// stage's request, forwards it, and tracks completion via the flow-control
// protocol exactly as scaffolds/collator/scaffold.py does: eot_counter
// against an expected total arriving asynchronously on the count channel.
func RunCollator(ctx context.Context, cfg CollatorConfig, transform Transform) error {
	if cfg.OnStartup != nil {
		cfg.OnStartup()
	}
	if cfg.OnClosure != nil {
		defer cfg.OnClosure()
	}

	pull := transport.NewPuller()
	if err := pull.Bind(cfg.PullAddr); err != nil {
		return fmt.Errorf("collator: %w", err)
	}
	defer pull.Close()

	push := transport.NewPusher()
	if err := push.Bind(cfg.PushAddr); err != nil {
		return fmt.Errorf("collator: %w", err)
	}
	defer push.Close()

	control := transport.NewPublisher()
	if err := control.Bind(cfg.ControlPubAddr); err != nil {
		return fmt.Errorf("collator: %w", err)
	}
	defer control.Close()

	countIn := transport.NewPair()
	if err := transport.ConnectRetry(ctx, countIn.Connect, cfg.CountConnectAddr, 0); err != nil {
		return fmt.Errorf("collator: %w", err)
	}
	defer countIn.Close()

	countOut := transport.NewPair()
	if err := countOut.Bind(cfg.CountBindAddr); err != nil {
		return fmt.Errorf("collator: %w", err)
	}
	defer countOut.Close()

	if err := settle(ctx, cfg.SettleDelay); err != nil {
		return fmt.Errorf("collator: %w", err)
	}

	acct := flowcontrol.NewAccountant()
	emitted := 0

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
				return fmt.Errorf("collator: %w", ev.Err)
			}

			switch ev.Source {
			case "data":
				m, err := message.DecodeFrames(ev.Frames)
				if err != nil {
					return fmt.Errorf("collator: decoding response: %w", err)
				}

				if m.IsEndOfTask() {
					acct.Count()
					continue
				}

				out, err := transform.Apply(ctx, m)
				if err != nil {
					return fmt.Errorf("collator: transforming response: %w", err)
				}
				if err := message.Send(push, out); err != nil {
					return fmt.Errorf("collator: forwarding request: %w", err)
				}
				emitted++
			case "count":
				m, err := message.DecodeFrames(ev.Frames)
				if err != nil {
					return fmt.Errorf("collator: decoding count: %w", err)
				}
				if m.IsExpectedNItems() {
					if n, ok := m.NItems(); ok {
						acct.SetExpected(n)
					}
				}
			}
		}
	}

	if err := message.Send(countOut, message.NewExpectedNItems(emitted)); err != nil {
		return fmt.Errorf("collator: reporting emitted count: %w", err)
	}
	return message.Send(control, message.NewEndOfProcess())
}
