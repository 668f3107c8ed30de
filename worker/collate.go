package worker

import (
	"context"
	"fmt"

	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/metrics"
	"github.com/whitaker-io/machine/transport"
)

// CollateHandler accumulates incoming messages into stage-owned state and
// folds them into a final result set once told the stage is shutting down,
// mirroring the 4.6b Collate harness (e.g. the merge stage, which cannot
// emit a joined record until every contributing fragment has arrived).
type CollateHandler interface {
	Add(ctx context.Context, in *message.Message) error
	Fold(ctx context.Context) ([]*message.Message, error)
}

// RunCollate drives the accumulate-then-fold harness: every data-plane
// message is handed to Add, and on EndOfProcess the accumulated state is
// folded exactly once and the results forwarded before the loop exits.
func RunCollate(ctx context.Context, cfg Config, handler CollateHandler) error {
	if cfg.OnStartup != nil {
		cfg.OnStartup()
	}
	if cfg.OnClosure != nil {
		defer cfg.OnClosure()
	}

	if err := settle(ctx, cfg.SettleDelay); err != nil {
		return fmt.Errorf("collate worker %s: %w", cfg.Name, err)
	}

	rec := metrics.Recorder{StageName: cfg.Name, StageKind: "collate"}

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
			return fold(ctx, rec, cfg, handler)
		case ev := <-events:
			if ev.Err != nil {
				return fmt.Errorf("collate worker %s: %w", cfg.Name, ev.Err)
			}

			switch ev.Source {
			case "control":
				m, err := message.DecodeFrames(ev.Frames)
				if err != nil {
					reportError(cfg, err)
					continue
				}
				if m.IsEndOfProcess() {
					return fold(ctx, rec, cfg, handler)
				}
			case "data":
				if err := addOne(ctx, rec, cfg, handler, ev.Frames); err != nil {
					reportError(cfg, err)
				}
			}
		}
	}
}

// addOne hands one data-plane request to handler.Add and, once accumulated
// or rejected by Add, emits EndOfTask for it immediately — a Collate
// harness has no per-message response to forward, but the downstream scaffold still expects one
// EndOfTask per request, so this worker's own eot_counter contribution
// cannot wait for the eventual fold.
func addOne(ctx context.Context, rec metrics.Recorder, cfg Config, handler CollateHandler, frames [][]byte) error {
	in, err := message.DecodeFrames(frames)
	if err != nil {
		return err
	}

	spanCtx, span := rec.Start(ctx, 1)
	err = handler.Add(spanCtx, in)
	span.End(0, errCount(err))
	if err != nil {
		if sendErr := message.Send(cfg.Push, message.NewEndOfTask(in.Header.FilePath, in.Header.BatchID)); sendErr != nil {
			return fmt.Errorf("accumulating message: %w (sending EndOfTask: %v)", err, sendErr)
		}
		return fmt.Errorf("accumulating message: %w", err)
	}

	return message.Send(cfg.Push, message.NewEndOfTask(in.Header.FilePath, in.Header.BatchID))
}

func fold(ctx context.Context, rec metrics.Recorder, cfg Config, handler CollateHandler) error {
	spanCtx, span := rec.Start(ctx, 0)
	out, err := handler.Fold(spanCtx)
	span.End(len(out), errCount(err))
	if err != nil {
		return fmt.Errorf("folding accumulated state: %w", err)
	}

	for _, m := range out {
		if err := message.Send(cfg.Push, m); err != nil {
			return fmt.Errorf("forwarding folded result: %w", err)
		}
	}
	return nil
}
