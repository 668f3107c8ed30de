package stages

import (
	"context"
	"fmt"

	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/worker"
)

// RowWriter appends one record to the destination CSV, the Go stand-in for
// the pandas-backed writer in tocsv/worker.py.
type RowWriter interface {
	WriteRow(ctx context.Context, filePath string, batchID *int, fields map[string]interface{}) error
}

// RowWriterFunc adapts a plain function to RowWriter.
type RowWriterFunc func(ctx context.Context, filePath string, batchID *int, fields map[string]interface{}) error

// WriteRow calls f.
func (f RowWriterFunc) WriteRow(ctx context.Context, filePath string, batchID *int, fields map[string]interface{}) error {
	return f(ctx, filePath, batchID, fields)
}

// ToCSVHandler writes one ToCSVRequest's fields out as a row and
// acknowledges with a ToCSVResponse.
type ToCSVHandler struct {
	Writer RowWriter
}

var _ worker.Handler = (*ToCSVHandler)(nil)

// Handle implements worker.Handler.
func (h *ToCSVHandler) Handle(ctx context.Context, in *message.Message) ([]*message.Message, error) {
	if in.Header.RequestType != message.ToCSVRequest {
		return nil, fmt.Errorf("stages: tocsv handler received %s, want ToCSVRequest", in.Header.RequestType)
	}

	if err := h.Writer.WriteRow(ctx, in.Header.FilePath, in.Header.BatchID, in.Body); err != nil {
		return nil, fmt.Errorf("stages: writing row for %s: %w", in.Header.FilePath, err)
	}

	return []*message.Message{message.New(message.ToCSVResponse, in.Header.FilePath, in.Header.BatchID)}, nil
}
