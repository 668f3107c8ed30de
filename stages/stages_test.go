package stages

import (
	"context"
	"testing"

	"github.com/whitaker-io/machine/message"
)

func TestExtractionHandlerEmitsOneResponsePerEvent(t *testing.T) {
	h := &ExtractionHandler{Extractor: ExtractorFunc(func(ctx context.Context, filePath string) ([]Event, error) {
		return []Event{
			{Metadata: map[string]interface{}{"x": 1.0}, Rec0: message.NewFloat32Array([]int{3}, []float32{1, 2, 3})},
			{Metadata: map[string]interface{}{"x": 2.0}},
		}, nil
	})}

	req := message.New(message.ExtractionRequest, "/a.zip", nil)
	out, err := h.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d responses, want 2", len(out))
	}
	if out[0].Header.RequestType != message.ExtractionResponse {
		t.Errorf("tag = %v", out[0].Header.RequestType)
	}
	if _, ok := out[0].Array("rec0"); !ok {
		t.Errorf("expected rec0 array on first event")
	}
}

func TestInferenceHandlerCarriesMetadataForward(t *testing.T) {
	h := &InferenceHandler{Model: ModelFunc(func(ctx context.Context, rec0, rec1 *message.Array) (string, error) {
		return "pollen-a", nil
	})}

	req := message.New(message.InferenceRequest, "/a.zip", nil)
	req.SetBody("metadata/species_hint", "unknown")

	out, err := h.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d responses, want 1", len(out))
	}
	pred, _ := out[0].Get("prediction")
	if pred != "pollen-a" {
		t.Errorf("prediction = %v", pred)
	}
	if v, ok := out[0].Get("metadata/species_hint"); !ok || v != "unknown" {
		t.Errorf("metadata not carried forward: %v, %v", v, ok)
	}
}

func TestMergeHandlerJoinsAllRowsIntoOneResponseOnFold(t *testing.T) {
	h := &MergeHandler{
		OutputFile: "/merged.spt",
		Joiner: JoinerFunc(func(ctx context.Context, rows []Row) (Row, error) {
			return Row{Body: map[string]interface{}{"body/count": len(rows)}}, nil
		}),
	}

	for i := 0; i < 3; i++ {
		batchID := i
		req := message.New(message.MergeRequest, "/a.zip", &batchID)
		if err := h.Add(context.Background(), req); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	out, err := h.Fold(context.Background())
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d folded messages, want 1", len(out))
	}
	if out[0].Header.FilePath != "/merged.spt" {
		t.Errorf("file_path = %q, want /merged.spt", out[0].Header.FilePath)
	}
	if v, _ := out[0].Get("count"); v != 3 {
		t.Errorf("count = %v, want 3", v)
	}
}

func TestToCSVHandlerWritesRow(t *testing.T) {
	var wrote map[string]interface{}
	h := &ToCSVHandler{Writer: RowWriterFunc(func(ctx context.Context, filePath string, batchID *int, fields map[string]interface{}) error {
		wrote = fields
		return nil
	})}

	req := message.New(message.ToCSVRequest, "/a.zip", nil)
	req.SetBody("prediction", "pollen-a")

	out, err := h.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(out) != 1 || out[0].Header.RequestType != message.ToCSVResponse {
		t.Fatalf("unexpected output: %v", out)
	}
	if wrote["body/prediction"] != "pollen-a" {
		t.Errorf("row not written correctly: %v", wrote)
	}
}

func TestTrainHandlerFitsOnLabel(t *testing.T) {
	var gotLabel string
	h := &TrainHandler{Trainer: TrainerFunc(func(ctx context.Context, rec0, rec1 *message.Array, label string) error {
		gotLabel = label
		return nil
	})}

	req := message.New(message.TrainRequest, "/a.zip", nil)
	req.SetBody("label", "pollen-a")

	out, err := h.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d responses, want 1", len(out))
	}
	if gotLabel != "pollen-a" {
		t.Errorf("label = %q, want pollen-a", gotLabel)
	}
}
