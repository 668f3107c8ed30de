// Package worker runs the per-stage business logic between two scaffolds,
// generalizing vertex.go's handler-wrapping run loop from an in-process
// channel edge to a message read off a transport.Receiver. The harnesses
// record metrics per handler call; they do not recover a panic raised by a
// handler.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/metrics"
	"github.com/whitaker-io/machine/transport"
)

// Handler implements one stage's stateless per-message transform for the
// Pull-Push harness (spec.md §4.6a): given an incoming request message, it
// returns zero or more outgoing response messages.
type Handler interface {
	Handle(ctx context.Context, in *message.Message) ([]*message.Message, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, in *message.Message) ([]*message.Message, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, in *message.Message) ([]*message.Message, error) {
	return f(ctx, in)
}

// Config bundles a harness's sockets, telemetry and error reporting.
type Config struct {
	Pull    transport.Receiver
	Push    transport.Sender
	Control transport.Receiver
	Name    string
	OnError func(error)

	// SettleDelay is slept once sockets are connected, before the poll
	// loop starts, giving the scaffolds on the other end time to finish
	// binding.
	SettleDelay time.Duration
	// Timeout bounds the harness's wall-clock lifetime; once it elapses
	// the harness exits cleanly regardless of pending work, independent
	// of ctx cancellation. Zero means no timeout.
	Timeout time.Duration
	// OnStartup and OnClosure, if set, are invoked exactly once each,
	// bracketing the whole run.
	OnStartup func()
	OnClosure func()
}

// settle sleeps for cfg.SettleDelay, matching base_workers.py's
// time.sleep(LAUNCH_SLEEP_TIME) between connecting sockets and the first
// recv, since a peer scaffold may still be mid-bind.
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

// timeoutChan returns a channel that fires once d elapses, or nil (which
// blocks forever in a select) if d is zero, matching base_workers.py's
// default timeout=float("inf").
func timeoutChan(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}

// RunPullPush drives the stateless per-message harness: for every incoming
// data-plane message it calls handler.Handle and forwards the results, and
// for every EndOfProcess observed on the control-plane it stops, matching
// the PULL/PUSH worker the original Python pipeline spawns per request
// (spec.md §4.6a).
func RunPullPush(ctx context.Context, cfg Config, handler Handler) error {
	if cfg.OnStartup != nil {
		cfg.OnStartup()
	}
	if cfg.OnClosure != nil {
		defer cfg.OnClosure()
	}

	if err := settle(ctx, cfg.SettleDelay); err != nil {
		return fmt.Errorf("worker %s: %w", cfg.Name, err)
	}

	rec := metrics.Recorder{StageName: cfg.Name, StageKind: "pull-push"}

	events := transport.Multiplex(ctx, map[string]transport.Receiver{
		"data":    cfg.Pull,
		"control": cfg.Control,
	})

	timeout, stop := timeoutChan(cfg.Timeout)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return nil
		case ev := <-events:
			if ev.Err != nil {
				return fmt.Errorf("worker %s: %w", cfg.Name, ev.Err)
			}

			switch ev.Source {
			case "control":
				m, err := message.DecodeFrames(ev.Frames)
				if err != nil {
					reportError(cfg, err)
					continue
				}
				if m.IsEndOfProcess() {
					return nil
				}
			case "data":
				if err := handleOne(ctx, rec, cfg, handler, ev.Frames); err != nil {
					reportError(cfg, err)
				}
			}
		}
	}
}

// handleOne processes one data-plane request: the handler's outputs are
// forwarded, then exactly one EndOfTask follows so the downstream scaffold
// can count this request as complete even if the handler emitted zero
// responses or failed (original base_workers.py always sends EndOfTask
// after the response loop, regardless of how many responses it produced).
func handleOne(ctx context.Context, rec metrics.Recorder, cfg Config, handler Handler, frames [][]byte) error {
	in, err := message.DecodeFrames(frames)
	if err != nil {
		return err
	}

	spanCtx, span := rec.Start(ctx, 1)
	out, err := handler.Handle(spanCtx, in)
	span.End(len(out), errCount(err))
	if err != nil {
		if sendErr := message.Send(cfg.Push, message.NewEndOfTask(in.Header.FilePath, in.Header.BatchID)); sendErr != nil {
			return fmt.Errorf("handling message: %w (sending EndOfTask: %v)", err, sendErr)
		}
		return fmt.Errorf("handling message: %w", err)
	}

	for _, m := range out {
		if err := message.Send(cfg.Push, m); err != nil {
			return fmt.Errorf("forwarding result: %w", err)
		}
	}

	return message.Send(cfg.Push, message.NewEndOfTask(in.Header.FilePath, in.Header.BatchID))
}

func errCount(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

func reportError(cfg Config, err error) {
	if cfg.OnError != nil {
		cfg.OnError(err)
	}
}
