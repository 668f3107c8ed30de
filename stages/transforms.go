package stages

import (
	"context"

	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/scaffold"
)

// relabel builds the next stage's request from a response, carrying the
// file path, batch ID and every body field and array forward unchanged and
// only replacing the header's request type. This is the Go counterpart of
// the *Request constructors (InferenceRequest, MergeRequest, ToCSVRequest,
// TrainRequest) in workers/*/messages.py, which all copy a prior
// response's fields into a new request envelope carrying a different tag.
func relabel(tag message.Tag, in *message.Message) *message.Message {
	out := message.New(tag, in.Header.FilePath, in.Header.BatchID)
	for k, v := range in.Body {
		out.Body[k] = v
	}
	for k, v := range in.Arrays {
		out.Arrays[k] = v
	}
	return out
}

// InferenceRequestTransform is the Collator transform between the
// extraction stage and the inference stage.
var InferenceRequestTransform = scaffold.TransformFunc(func(ctx context.Context, in *message.Message) (*message.Message, error) {
	return relabel(message.InferenceRequest, in), nil
})

// MergeRequestTransform is the Collator transform feeding the merge stage.
var MergeRequestTransform = scaffold.TransformFunc(func(ctx context.Context, in *message.Message) (*message.Message, error) {
	return relabel(message.MergeRequest, in), nil
})

// ToCSVRequestTransform is the Collator transform feeding the to-CSV stage.
var ToCSVRequestTransform = scaffold.TransformFunc(func(ctx context.Context, in *message.Message) (*message.Message, error) {
	return relabel(message.ToCSVRequest, in), nil
})

// TrainRequestTransform is the Collator transform feeding the train stage.
var TrainRequestTransform = scaffold.TransformFunc(func(ctx context.Context, in *message.Message) (*message.Message, error) {
	return relabel(message.TrainRequest, in), nil
})
