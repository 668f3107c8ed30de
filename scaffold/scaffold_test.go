package scaffold

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/transport"
)

// staticSource emits a fixed slice of messages then reports exhaustion,
// standing in for the original's `iterable` argument.
type staticSource struct {
	items []*message.Message
	i     int
}

func (s *staticSource) Next(ctx context.Context) (*message.Message, bool, error) {
	if s.i >= len(s.items) {
		return nil, false, nil
	}
	m := s.items[s.i]
	s.i++
	return m, true, nil
}

// echoWorker connects its pull to pullAddr and its push to pushAddr,
// answering every request with one response plus an EndOfTask, standing in
// for a full worker harness. It has no control socket and stops only when
// its pull socket's Recv fails or ctx is done.
func echoWorker(t *testing.T, ctx context.Context, respTag message.Tag, pullAddr, pushAddr string, wg *sync.WaitGroup) {
	t.Helper()
	wg.Add(1)
	go func() {
		defer wg.Done()

		pull := transport.NewPuller()
		if err := pull.Connect(pullAddr); err != nil {
			t.Errorf("worker connect pull: %v", err)
			return
		}
		defer pull.Close()

		push := transport.NewPusher()
		if err := push.Connect(pushAddr); err != nil {
			t.Errorf("worker connect push: %v", err)
			return
		}
		defer push.Close()

		for {
			frames, err := pull.Recv(ctx)
			if err != nil {
				return
			}
			in, err := message.DecodeFrames(frames)
			if err != nil {
				t.Errorf("worker decode: %v", err)
				return
			}

			out := message.New(respTag, in.Header.FilePath, in.Header.BatchID)
			if err := message.Send(push, out); err != nil {
				t.Errorf("worker send response: %v", err)
				return
			}
			if err := message.Send(push, message.NewEndOfTask(in.Header.FilePath, in.Header.BatchID)); err != nil {
				t.Errorf("worker send eot: %v", err)
				return
			}
		}
	}()
}

// TestVentilatorCollatorSinkChainTerminates wires Ventilator -> worker ->
// Collator -> worker -> Sink and asserts all three scaffolds observe their
// expected item counts and shut down cleanly, exercising the same
// flow-control algebra as the original ventilator/collator/sink chain.
func TestVentilatorCollatorSinkChainTerminates(t *testing.T) {
	const (
		ventPush      = "127.0.0.1:19301"
		ventCount     = "127.0.0.1:19302"
		collPull      = "127.0.0.1:19303"
		collPush      = "127.0.0.1:19304"
		collControl   = "127.0.0.1:19305"
		collCountOut  = "127.0.0.1:19306"
		sinkPull      = "127.0.0.1:19307"
		sinkControl   = "127.0.0.1:19308"
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	identity := TransformFunc(func(ctx context.Context, in *message.Message) (*message.Message, error) {
		return message.New(message.ToCSVRequest, in.Header.FilePath, in.Header.BatchID), nil
	})

	results := make(chan error, 3)

	// Launch in dependency order: a scaffold's Pair connect target must
	// already be bound, so Ventilator starts (and binds) first, then
	// Collator (which connects to Ventilator's count Pair and binds its
	// own), then Sink (which connects to Collator's).
	go func() {
		results <- RunVentilator(ctx, VentilatorConfig{
			PushAddr:      ventPush,
			CountBindAddr: ventCount,
		}, &staticSource{items: []*message.Message{
			message.New(message.ExtractionRequest, "/a.tif", nil),
			message.New(message.ExtractionRequest, "/b.tif", nil),
			message.New(message.ExtractionRequest, "/c.tif", nil),
		}})
	}()
	time.Sleep(50 * time.Millisecond)

	go func() {
		results <- RunCollator(ctx, CollatorConfig{
			PullAddr:         collPull,
			PushAddr:         collPush,
			ControlPubAddr:   collControl,
			CountConnectAddr: ventCount,
			CountBindAddr:    collCountOut,
		}, identity)
	}()
	time.Sleep(50 * time.Millisecond)

	go func() {
		results <- RunSink(ctx, SinkConfig{
			PullAddr:         sinkPull,
			ControlPubAddr:   sinkControl,
			CountConnectAddr: collCountOut,
		})
	}()
	time.Sleep(50 * time.Millisecond)

	var wg sync.WaitGroup
	echoWorker(t, ctx, message.ExtractionResponse, ventPush, collPull, &wg)
	echoWorker(t, ctx, message.ToCSVResponse, collPush, sinkPull, &wg)

	for i := 0; i < 3; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Fatalf("scaffold returned error: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for pipeline chain to terminate")
		}
	}

	wg.Wait()
}
