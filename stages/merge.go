package stages

import (
	"context"
	"fmt"
	"sync"

	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/worker"
)

// Row is one batch's accumulated fields, keyed the way MergeRequest carries
// a prior response's body forward (workers/merge/messages.py).
type Row struct {
	FilePath string
	BatchID  *int
	Body     map[string]interface{}
}

// Joiner concatenates every accumulated row into the single merged
// artifact, the Go stand-in for Merge()'s collate_fn(..., "concatenate")
// over the full request batch in merge/worker.py.
type Joiner interface {
	Join(ctx context.Context, rows []Row) (Row, error)
}

// JoinerFunc adapts a plain function to Joiner.
type JoinerFunc func(ctx context.Context, rows []Row) (Row, error)

// Join calls f.
func (f JoinerFunc) Join(ctx context.Context, rows []Row) (Row, error) {
	return f(ctx, rows)
}

// MergeHandler accumulates MergeRequests and, once the stage shuts down,
// joins every accumulated row into a single MergeResponse written to
// OutputFile, mirroring MergeWorkerConfig.mew_output_file: one merged
// artifact per run, not one per input file_path.
type MergeHandler struct {
	Joiner     Joiner
	OutputFile string

	mu   sync.Mutex
	rows []Row
}

var _ worker.CollateHandler = (*MergeHandler)(nil)

// Add implements worker.CollateHandler.
func (h *MergeHandler) Add(ctx context.Context, in *message.Message) error {
	if in.Header.RequestType != message.MergeRequest {
		return fmt.Errorf("stages: merge handler received %s, want MergeRequest", in.Header.RequestType)
	}

	row := Row{FilePath: in.Header.FilePath, BatchID: in.Header.BatchID, Body: map[string]interface{}{}}
	for k, v := range in.Body {
		row.Body[k] = v
	}

	h.mu.Lock()
	h.rows = append(h.rows, row)
	h.mu.Unlock()

	return nil
}

// Fold implements worker.CollateHandler.
func (h *MergeHandler) Fold(ctx context.Context) ([]*message.Message, error) {
	h.mu.Lock()
	rows := h.rows
	h.mu.Unlock()

	joined, err := h.Joiner.Join(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("stages: joining accumulated rows: %w", err)
	}

	filePath := h.OutputFile
	if filePath == "" {
		filePath = joined.FilePath
	}

	m := message.New(message.MergeResponse, filePath, joined.BatchID)
	for k, v := range joined.Body {
		m.Body[k] = v
	}

	return []*message.Message{m}, nil
}
