// Copyright © 2021 Jonathan Whitaker <jonathan@whitaker.io>

package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/stages"
)

// jsonEvent is the on-disk shape a recording file decodes into: one entry
// per event, each carrying the two fluorescence waveforms as plain float32
// slices rather than a microscope-specific binary layout. Swapping this for
// the zip/HDF5 readers extraction/worker.py uses is a deployment concern,
// not a pipeline-wiring one, so it stays outside the stages package.
type jsonEvent struct {
	Metadata map[string]interface{} `json:"metadata"`
	Fluodata map[string]interface{} `json:"fluodata"`
	Rec0     []float32              `json:"rec0"`
	Rec1     []float32              `json:"rec1"`
}

// jsonExtractor implements stages.Extractor by decoding a file of
// jsonEvents from disk.
type jsonExtractor struct{}

func (jsonExtractor) Extract(ctx context.Context, filePath string) ([]stages.Event, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var raw []jsonEvent
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filePath, err)
	}

	out := make([]stages.Event, len(raw))
	for i, ev := range raw {
		e := stages.Event{Metadata: ev.Metadata, Fluodata: ev.Fluodata}
		if ev.Rec0 != nil {
			e.Rec0 = message.NewFloat32Array([]int{len(ev.Rec0)}, ev.Rec0)
		}
		if ev.Rec1 != nil {
			e.Rec1 = message.NewFloat32Array([]int{len(ev.Rec1)}, ev.Rec1)
		}
		out[i] = e
	}
	return out, nil
}

// centroid is one labeled reference waveform a centroidModel scores new
// events against.
type centroid struct {
	Label string    `mapstructure:"label"`
	Rec0  []float32 `mapstructure:"rec0"`
}

// centroidModel predicts the label of the nearest centroid by Euclidean
// distance on rec0, a minimal stand-in for the loaded classifier
// inference/worker.py calls; real deployments supply a stages.Model backed
// by whatever model format they trained.
type centroidModel struct {
	centroids []centroid
}

func (m *centroidModel) Predict(ctx context.Context, rec0, rec1 *message.Array) (string, error) {
	if len(m.centroids) == 0 {
		return "", fmt.Errorf("no centroids configured")
	}

	values, err := rec0.Float32()
	if err != nil {
		return "", err
	}

	best := m.centroids[0].Label
	bestDist := float64(-1)
	for _, c := range m.centroids {
		d := sqDist(values, c.Rec0)
		if bestDist < 0 || d < bestDist {
			bestDist = d
			best = c.Label
		}
	}
	return best, nil
}

func sqDist(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

// csvWriter appends one row per ToCSVRequest to an output file, the Go
// stand-in for the pandas writer in tocsv/worker.py. Writes are
// mutex-guarded since several worker-stage goroutines share one writer.
type csvWriter struct {
	mu     sync.Mutex
	w      *csv.Writer
	header []string
	wrote  bool
}

func newCSVWriter(path string) (*csvWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &csvWriter{w: csv.NewWriter(f)}, nil
}

func (c *csvWriter) WriteRow(ctx context.Context, filePath string, batchID *int, fields map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.wrote {
		c.header = []string{"file_path", "batch_id"}
		for k := range fields {
			c.header = append(c.header, k)
		}
		if err := c.w.Write(c.header); err != nil {
			return err
		}
		c.wrote = true
	}

	id := ""
	if batchID != nil {
		id = strconv.Itoa(*batchID)
	}
	row := []string{filePath, id}
	for _, k := range c.header[2:] {
		row = append(row, fmt.Sprintf("%v", fields[k]))
	}

	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}
