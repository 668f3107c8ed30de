// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package message implements the scaffold/worker wire envelope: a closed
// set of request tags, a header/body map with path-separated keys, and
// bulk numeric arrays carried out-of-band from the scalar payload.
package message

import (
	"github.com/whitaker-io/data"
)

// Tag is the closed set of request types a Message may carry.
type Tag string

// Data request tags. Every Message derived from one input preserves the
// same FilePath; derivations from one batch preserve the same BatchID
// unless a merge stage collapses batches.
const (
	ExtractionRequest  Tag = "ExtractionRequest"
	ExtractionResponse Tag = "ExtractionResponse"
	InferenceRequest   Tag = "InferenceRequest"
	InferenceResponse  Tag = "InferenceResponse"
	MergeRequest       Tag = "MergeRequest"
	MergeResponse      Tag = "MergeResponse"
	ToCSVRequest       Tag = "ToCSVRequest"
	ToCSVResponse      Tag = "ToCSVResponse"
	TrainRequest       Tag = "TrainRequest"
	TrainResponse      Tag = "TrainResponse"
)

// Control tags. EndOfTask is emitted once per processed request by a
// worker and counted (not forwarded) downstream. EndOfProcess is
// broadcast once by a scaffold once its accounting closes. ExpectedNItems
// carries the one-shot total-emission count between consecutive
// scaffolds.
const (
	EndOfTask      Tag = "EndOfTask"
	EndOfProcess   Tag = "EndOfProcess"
	ExpectedNItems Tag = "ExpectedNItems"
)

// Key separator and section names used by the wire format (spec §6).
const (
	KeySep    = "/"
	HeaderKey = "header"
	BodyKey   = "body"
)

const (
	headerRequestTypeKey = HeaderKey + KeySep + "request_type"
	headerFilePathKey    = HeaderKey + KeySep + "file_path"
	headerBatchIDKey     = HeaderKey + KeySep + "batch_id"
	nItemsKey            = "n_items"
)

// Header fields are always present on a Message.
type Header struct {
	RequestType Tag
	FilePath    string
	BatchID     *int
}

// Message is a tagged record traveling through the pipeline. Body holds
// stage-specific scalar fields under "body/..." keys; Arrays holds bulk
// numeric payloads under the same key namespace, carried separately from
// Body so the scalar frame stays small and JSON-clean.
type Message struct {
	Header Header
	Body   data.Data
	Arrays map[string]*Array
}

// New creates a Message with an empty body and array set.
func New(tag Tag, filePath string, batchID *int) *Message {
	return &Message{
		Header: Header{RequestType: tag, FilePath: filePath, BatchID: batchID},
		Body:   data.Data{},
		Arrays: map[string]*Array{},
	}
}

// NewEndOfTask creates the per-request completion token a worker emits
// after each data response.
func NewEndOfTask(filePath string, batchID *int) *Message {
	return New(EndOfTask, filePath, batchID)
}

// NewEndOfProcess creates the per-stage shutdown broadcast a scaffold
// sends to its workers once its accounting closes.
func NewEndOfProcess() *Message {
	return New(EndOfProcess, "", nil)
}

// NewExpectedNItems creates the one-shot total-emission count a scaffold
// sends to the next scaffold in the pipeline.
func NewExpectedNItems(n int) *Message {
	m := New(ExpectedNItems, "", nil)
	m.SetBody(nItemsKey, n)
	return m
}

func bodyKey(key string) string {
	return BodyKey + KeySep + key
}

// SetBody assigns a scalar body field under the body namespace.
func (m *Message) SetBody(key string, v interface{}) {
	m.Body[bodyKey(key)] = v
}

// Get reads a scalar body field.
func (m *Message) Get(key string) (interface{}, bool) {
	v, ok := m.Body[bodyKey(key)]
	return v, ok
}

// SetArray assigns a bulk array under the body namespace.
func (m *Message) SetArray(key string, a *Array) {
	m.Arrays[bodyKey(key)] = a
}

// Array reads a bulk array from the body namespace.
func (m *Message) Array(key string) (*Array, bool) {
	a, ok := m.Arrays[bodyKey(key)]
	return a, ok
}

// IsEndOfTask reports whether the message is an EndOfTask control token.
func (m *Message) IsEndOfTask() bool { return m.Header.RequestType == EndOfTask }

// IsEndOfProcess reports whether the message is an EndOfProcess broadcast.
func (m *Message) IsEndOfProcess() bool { return m.Header.RequestType == EndOfProcess }

// IsExpectedNItems reports whether the message carries a flow-control count.
func (m *Message) IsExpectedNItems() bool { return m.Header.RequestType == ExpectedNItems }

// NItems extracts the count carried by an ExpectedNItems message.
func (m *Message) NItems() (int, bool) {
	v, ok := m.Get(nItemsKey)
	if !ok {
		return 0, false
	}

	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
