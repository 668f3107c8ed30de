package stages

import (
	"context"
	"fmt"

	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/worker"
)

// Model scores one event's waveforms, the Go stand-in for the loaded
// classifier inference/worker.py calls per request.
type Model interface {
	Predict(ctx context.Context, rec0, rec1 *message.Array) (prediction string, err error)
}

// ModelFunc adapts a plain function to Model.
type ModelFunc func(ctx context.Context, rec0, rec1 *message.Array) (string, error)

// Predict calls f.
func (f ModelFunc) Predict(ctx context.Context, rec0, rec1 *message.Array) (string, error) {
	return f(ctx, rec0, rec1)
}

// InferenceHandler turns one InferenceRequest into one InferenceResponse
// carrying the model's prediction alongside the request's metadata, the
// field a downstream ToCSV or Train stage later reads back out.
type InferenceHandler struct {
	Model Model
}

var _ worker.Handler = (*InferenceHandler)(nil)

// Handle implements worker.Handler.
func (h *InferenceHandler) Handle(ctx context.Context, in *message.Message) ([]*message.Message, error) {
	if in.Header.RequestType != message.InferenceRequest {
		return nil, fmt.Errorf("stages: inference handler received %s, want InferenceRequest", in.Header.RequestType)
	}

	rec0, _ := in.Array("rec0")
	rec1, _ := in.Array("rec1")

	prediction, err := h.Model.Predict(ctx, rec0, rec1)
	if err != nil {
		return nil, fmt.Errorf("stages: predicting for %s: %w", in.Header.FilePath, err)
	}

	out := message.New(message.InferenceResponse, in.Header.FilePath, in.Header.BatchID)
	out.SetBody("prediction", prediction)

	for k, v := range in.Body {
		if hasPrefix(k, "body/metadata/") {
			out.Body[k] = v
		}
	}

	return []*message.Message{out}, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
