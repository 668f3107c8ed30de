// Package stages implements the five worker kinds named in the
// original pipeline (extraction, inference, merge, to-CSV, train) as
// worker.Handler/worker.CollateHandler values, grounded on the message
// shapes in workers/<stage>/messages.py. File-format decoding (the zip and
// HDF5 readers in extraction/worker.py) is left pluggable: a Handler here
// owns the message-envelope contract, not microscope-specific I/O, which a
// deployment supplies via the Extractor interface.
package stages

import (
	"context"
	"fmt"

	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/worker"
)

// Event is one decoded recording pulled out of an input file: scalar
// metadata plus the two fluorescence-channel waveforms the original keeps
// as rec0/rec1 NumPy arrays.
type Event struct {
	Metadata map[string]interface{}
	Fluodata map[string]interface{}
	Rec0     *message.Array
	Rec1     *message.Array
}

// Extractor reads every event out of one input file, the Go stand-in for
// __zip_read_event/__hdf5_read_event in extraction/worker.py.
type Extractor interface {
	Extract(ctx context.Context, filePath string) ([]Event, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(ctx context.Context, filePath string) ([]Event, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, filePath string) ([]Event, error) {
	return f(ctx, filePath)
}

// ExtractionHandler turns one ExtractionRequest into one ExtractionResponse
// per event found in the request's file, batch-numbered in discovery order.
type ExtractionHandler struct {
	Extractor Extractor
}

var _ worker.Handler = (*ExtractionHandler)(nil)

// Handle implements worker.Handler.
func (h *ExtractionHandler) Handle(ctx context.Context, in *message.Message) ([]*message.Message, error) {
	if in.Header.RequestType != message.ExtractionRequest {
		return nil, fmt.Errorf("stages: extraction handler received %s, want ExtractionRequest", in.Header.RequestType)
	}

	events, err := h.Extractor.Extract(ctx, in.Header.FilePath)
	if err != nil {
		return nil, fmt.Errorf("stages: extracting %s: %w", in.Header.FilePath, err)
	}

	out := make([]*message.Message, len(events))
	for i, ev := range events {
		batchID := i
		m := message.New(message.ExtractionResponse, in.Header.FilePath, &batchID)
		for k, v := range ev.Metadata {
			m.SetBody("metadata/"+k, v)
		}
		for k, v := range ev.Fluodata {
			m.SetBody("fluodata/"+k, v)
		}
		if ev.Rec0 != nil {
			m.SetArray("rec0", ev.Rec0)
		}
		if ev.Rec1 != nil {
			m.SetArray("rec1", ev.Rec1)
		}
		out[i] = m
	}

	return out, nil
}
