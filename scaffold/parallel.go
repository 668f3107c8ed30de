package scaffold

import (
	"context"
	"fmt"
	"time"

	"github.com/whitaker-io/machine/flowcontrol"
	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/transport"
)

// ParallelConfig fans one upstream data-plane feed out to PushAddrs
// branches and reports its own forwarded-item count to every branch's
// count Pair. Parallel owns no worker pool and never broadcasts
// EndOfProcess itself; each branch's own Collator/Sink does that once its
// own eot_counter closes, matching scaffolds/parallel/scaffold.py's total
// absence of a control socket.
type ParallelConfig struct {
	PullConnectAddr  string
	PushAddrs        []string
	CountConnectAddr string
	CountBindAddrs   []string
	// SettleDelay is slept after all sockets are bound/connected, before
	// the poll loop starts.
	SettleDelay time.Duration
	// OnStartup and OnClosure, if set, are invoked exactly once each,
	// bracketing the whole run.
	OnStartup func()
	OnClosure func()
}

// RunParallel connects upstream, binds one Pusher per branch, and
// broadcasts every incoming request to all of them; it tracks completion
// the same eot_counter-against-ExpectedNItems way every scaffold does, and
// on completion reports its own pass-through count to each branch.
func RunParallel(ctx context.Context, cfg ParallelConfig) error {
	if len(cfg.PushAddrs) != len(cfg.CountBindAddrs) {
		return fmt.Errorf("parallel: push addresses (%d) and count addresses (%d) must match", len(cfg.PushAddrs), len(cfg.CountBindAddrs))
	}

	if cfg.OnStartup != nil {
		cfg.OnStartup()
	}
	if cfg.OnClosure != nil {
		defer cfg.OnClosure()
	}

	pull := transport.NewPuller()
	if err := transport.ConnectRetry(ctx, pull.Connect, cfg.PullConnectAddr, 0); err != nil {
		return fmt.Errorf("parallel: %w", err)
	}
	defer pull.Close()

	pushers := make([]*transport.Pusher, len(cfg.PushAddrs))
	for i, addr := range cfg.PushAddrs {
		p := transport.NewPusher()
		if err := p.Bind(addr); err != nil {
			return fmt.Errorf("parallel: binding branch %d: %w", i, err)
		}
		defer p.Close()
		pushers[i] = p
	}

	countOuts := make([]*transport.Pair, len(cfg.CountBindAddrs))
	for i, addr := range cfg.CountBindAddrs {
		p := transport.NewPair()
		if err := p.Bind(addr); err != nil {
			return fmt.Errorf("parallel: binding branch count %d: %w", i, err)
		}
		defer p.Close()
		countOuts[i] = p
	}

	countIn := transport.NewPair()
	if err := transport.ConnectRetry(ctx, countIn.Connect, cfg.CountConnectAddr, 0); err != nil {
		return fmt.Errorf("parallel: %w", err)
	}
	defer countIn.Close()

	if err := settle(ctx, cfg.SettleDelay); err != nil {
		return fmt.Errorf("parallel: %w", err)
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
				return fmt.Errorf("parallel: %w", ev.Err)
			}

			switch ev.Source {
			case "data":
				m, err := message.DecodeFrames(ev.Frames)
				if err != nil {
					return fmt.Errorf("parallel: decoding request: %w", err)
				}
				if m.IsEndOfTask() {
					acct.Count()
					continue
				}
				for i, p := range pushers {
					if err := message.Send(p, m); err != nil {
						return fmt.Errorf("parallel: forwarding to branch %d: %w", i, err)
					}
				}
				emitted++
			case "count":
				m, err := message.DecodeFrames(ev.Frames)
				if err != nil {
					return fmt.Errorf("parallel: decoding count: %w", err)
				}
				if m.IsExpectedNItems() {
					if n, ok := m.NItems(); ok {
						acct.SetExpected(n)
					}
				}
			}
		}
	}

	for i, p := range countOuts {
		if err := message.Send(p, message.NewExpectedNItems(emitted)); err != nil {
			return fmt.Errorf("parallel: reporting count to branch %d: %w", i, err)
		}
	}
	return nil
}
