package message

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/whitaker-io/data"
)

// Sender is the transport-level atomic multi-frame sink a Message is
// written to.
type Sender interface {
	Send(frames [][]byte) error
}

// Receiver is the transport-level atomic multi-frame source a Message is
// read from.
type Receiver interface {
	Recv(ctx context.Context) ([][]byte, error)
}

// arrayMeta describes one bulk array. It is encoded as a JSON array
// (rather than a JSON object keyed by field name) so that frame order is
// unambiguous on both ends of the wire — resolving the metadata-ordering
// ambiguity spec.md flags for a map-based encoding.
type arrayMeta struct {
	Key         string `json:"key"`
	ElementType string `json:"element_type"`
	Shape       []int  `json:"shape"`
}

// Send serializes a Message into the three-section envelope: a JSON
// scalar frame, a JSON array-metadata frame, and one raw byte frame per
// array in metadata order. The underlying Sender is expected to write all
// frames atomically.
func Send(sock Sender, m *Message) error {
	scalars := map[string]interface{}{
		headerRequestTypeKey: string(m.Header.RequestType),
	}
	if m.Header.FilePath != "" {
		scalars[headerFilePathKey] = m.Header.FilePath
	}
	if m.Header.BatchID != nil {
		scalars[headerBatchIDKey] = *m.Header.BatchID
	}
	for k, v := range m.Body {
		scalars[k] = v
	}

	keys := make([]string, 0, len(m.Arrays))
	for k := range m.Arrays {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	meta := make([]arrayMeta, 0, len(keys))
	for _, k := range keys {
		a := m.Arrays[k]
		meta = append(meta, arrayMeta{Key: k, ElementType: string(a.ElementType), Shape: a.Shape})
	}

	scalarFrame, err := json.Marshal(scalars)
	if err != nil {
		return fmt.Errorf("message: encoding scalar frame: %w", err)
	}

	metaFrame, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("message: encoding array metadata frame: %w", err)
	}

	frames := make([][]byte, 0, 2+len(keys))
	frames = append(frames, scalarFrame, metaFrame)
	for _, k := range keys {
		frames = append(frames, m.Arrays[k].Bytes)
	}

	return sock.Send(frames)
}

// Recv reads one Message off the Receiver. Malformed frame counts, unknown
// element types, and array size mismatches are all reported as errors;
// callers in the scaffold/worker layer treat them as fatal per spec.md §7.
func Recv(ctx context.Context, sock Receiver) (*Message, error) {
	frames, err := sock.Recv(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeFrames(frames)
}

// DecodeFrames reconstructs a Message from raw frames already read off the
// wire, for callers (e.g. a fan-in multiplexer) that read frames
// themselves.
func DecodeFrames(frames [][]byte) (*Message, error) {
	if len(frames) < 2 {
		return nil, fmt.Errorf("message: malformed envelope: expected at least 2 frames, got %d", len(frames))
	}

	var scalars map[string]interface{}
	if err := json.Unmarshal(frames[0], &scalars); err != nil {
		return nil, fmt.Errorf("message: decoding scalar frame: %w", err)
	}

	var meta []arrayMeta
	if err := json.Unmarshal(frames[1], &meta); err != nil {
		return nil, fmt.Errorf("message: decoding array metadata frame: %w", err)
	}

	if len(frames)-2 != len(meta) {
		return nil, fmt.Errorf("message: frame count mismatch: metadata declares %d arrays, received %d frames", len(meta), len(frames)-2)
	}

	m := &Message{Body: data.Data{}, Arrays: map[string]*Array{}}

	if rt, ok := scalars[headerRequestTypeKey]; ok {
		m.Header.RequestType = Tag(fmt.Sprint(rt))
		delete(scalars, headerRequestTypeKey)
	}
	if fp, ok := scalars[headerFilePathKey]; ok {
		m.Header.FilePath = fmt.Sprint(fp)
		delete(scalars, headerFilePathKey)
	}
	if bid, ok := scalars[headerBatchIDKey]; ok {
		n := toInt(bid)
		m.Header.BatchID = &n
		delete(scalars, headerBatchIDKey)
	}

	for k, v := range scalars {
		m.Body[k] = v
	}

	for i, mt := range meta {
		elemType := ElementType(mt.ElementType)
		size, err := elemSize(elemType)
		if err != nil {
			return nil, fmt.Errorf("message: array %q: %w", mt.Key, err)
		}

		frame := frames[2+i]
		expected := size * shapeProduct(mt.Shape)
		if expected != len(frame) {
			return nil, fmt.Errorf("message: array %q size mismatch: metadata implies %d bytes, got %d", mt.Key, expected, len(frame))
		}

		m.Arrays[mt.Key] = &Array{ElementType: elemType, Shape: mt.Shape, Bytes: frame}
	}

	return m, nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
