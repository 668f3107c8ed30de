package stages

import (
	"context"
	"fmt"

	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/worker"
)

// Trainer accumulates one labeled sample into a model being fit in place,
// the Go stand-in for the incremental fit step train/worker.py performs
// per request.
type Trainer interface {
	Fit(ctx context.Context, rec0, rec1 *message.Array, label string) error
}

// TrainerFunc adapts a plain function to Trainer.
type TrainerFunc func(ctx context.Context, rec0, rec1 *message.Array, label string) error

// Fit calls f.
func (f TrainerFunc) Fit(ctx context.Context, rec0, rec1 *message.Array, label string) error {
	return f(ctx, rec0, rec1, label)
}

// TrainHandler feeds one TrainRequest's waveforms and label into a Trainer
// and acknowledges with a TrainResponse.
type TrainHandler struct {
	Trainer Trainer
}

var _ worker.Handler = (*TrainHandler)(nil)

// Handle implements worker.Handler.
func (h *TrainHandler) Handle(ctx context.Context, in *message.Message) ([]*message.Message, error) {
	if in.Header.RequestType != message.TrainRequest {
		return nil, fmt.Errorf("stages: train handler received %s, want TrainRequest", in.Header.RequestType)
	}

	rec0, _ := in.Array("rec0")
	rec1, _ := in.Array("rec1")

	label, _ := in.Get("label")
	labelStr, _ := label.(string)

	if err := h.Trainer.Fit(ctx, rec0, rec1, labelStr); err != nil {
		return nil, fmt.Errorf("stages: fitting on %s: %w", in.Header.FilePath, err)
	}

	return []*message.Message{message.New(message.TrainResponse, in.Header.FilePath, in.Header.BatchID)}, nil
}
