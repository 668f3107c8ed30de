package worker

import (
	"context"
	"testing"
	"time"

	"github.com/whitaker-io/machine/message"
)

type chanSocket struct {
	in  chan [][]byte
	out chan [][]byte
}

func newChanSocket() *chanSocket {
	return &chanSocket{in: make(chan [][]byte, 16), out: make(chan [][]byte, 16)}
}

func (c *chanSocket) Send(frames [][]byte) error {
	c.out <- frames
	return nil
}

func (c *chanSocket) Recv(ctx context.Context) ([][]byte, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *chanSocket) Close() error { return nil }

func TestRunPullPushForwardsHandlerOutput(t *testing.T) {
	pull := newChanSocket()
	push := newChanSocket()
	control := newChanSocket()

	handler := HandlerFunc(func(ctx context.Context, in *message.Message) ([]*message.Message, error) {
		out := message.New(message.InferenceResponse, in.Header.FilePath, in.Header.BatchID)
		out.SetBody("ok", true)
		return []*message.Message{out}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- RunPullPush(ctx, Config{Pull: pull, Push: push, Control: control, Name: "infer"}, handler)
	}()

	req := message.New(message.InferenceRequest, "/x.tif", nil)
	sendTo(t, pull, req)

	select {
	case frames := <-push.out:
		got, err := message.DecodeFrames(frames)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Header.RequestType != message.InferenceResponse {
			t.Fatalf("got tag %v, want InferenceResponse", got.Header.RequestType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded response")
	}

	eop := message.NewEndOfProcess()
	sendTo(t, control, eop)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunPullPush returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for harness shutdown")
	}
}

func TestRunCollateFoldsOnShutdown(t *testing.T) {
	pull := newChanSocket()
	push := newChanSocket()
	control := newChanSocket()

	var added int
	handler := collateFunc{
		add: func(ctx context.Context, in *message.Message) error {
			added++
			return nil
		},
		fold: func(ctx context.Context) ([]*message.Message, error) {
			out := message.New(message.MergeResponse, "", nil)
			out.SetBody("count", added)
			return []*message.Message{out}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- RunCollate(ctx, Config{Pull: pull, Push: push, Control: control, Name: "merge"}, handler)
	}()

	for i := 0; i < 3; i++ {
		sendTo(t, pull, message.New(message.MergeRequest, "", nil))
	}

	for i := 0; i < 3; i++ {
		select {
		case frames := <-push.out:
			got, err := message.DecodeFrames(frames)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !got.IsEndOfTask() {
				t.Fatalf("message %d = %v, want EndOfTask", i, got.Header.RequestType)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for EndOfTask %d", i)
		}
	}

	sendTo(t, control, message.NewEndOfProcess())

	select {
	case frames := <-push.out:
		got, err := message.DecodeFrames(frames)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if v, _ := got.Get("count"); v != float64(3) && v != 3 {
			t.Fatalf("folded count = %v, want 3", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for folded result")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunCollate returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for collate harness shutdown")
	}
}

type collateFunc struct {
	add  func(context.Context, *message.Message) error
	fold func(context.Context) ([]*message.Message, error)
}

func (c collateFunc) Add(ctx context.Context, in *message.Message) error { return c.add(ctx, in) }
func (c collateFunc) Fold(ctx context.Context) ([]*message.Message, error) {
	return c.fold(ctx)
}

// sendTo encodes m as a harness would receive it and delivers it straight
// to sock's inbound queue, bypassing sock.Send (which is the harness's
// outbound path in these tests).
func sendTo(t *testing.T, sock *chanSocket, m *message.Message) {
	t.Helper()
	encoder := &frameCapture{}
	if err := message.Send(encoder, m); err != nil {
		t.Fatalf("encoding message: %v", err)
	}
	sock.in <- encoder.frames
}

type frameCapture struct {
	frames [][]byte
}

func (f *frameCapture) Send(frames [][]byte) error {
	f.frames = frames
	return nil
}
