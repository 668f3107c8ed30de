package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/whitaker-io/machine/message"
	"github.com/whitaker-io/machine/scaffold"
	"github.com/whitaker-io/machine/transport"
	"github.com/whitaker-io/machine/worker"
)

type sliceSource struct {
	items []*message.Message
	i     int
}

func (s *sliceSource) Next(ctx context.Context) (*message.Message, bool, error) {
	if s.i >= len(s.items) {
		return nil, false, nil
	}
	m := s.items[s.i]
	s.i++
	return m, true, nil
}

func runWorkerStage(t *testing.T, ctx context.Context, topo *Topology, stage int, respTag message.Tag) {
	t.Helper()
	addrs := topo.Addresses(stage)

	pull := transport.NewPuller()
	if err := transport.ConnectRetry(ctx, pull.Connect, addrs.PullAddr, 0); err != nil {
		t.Errorf("stage %d connect pull: %v", stage, err)
		return
	}
	push := transport.NewPusher()
	if err := transport.ConnectRetry(ctx, push.Connect, addrs.PushAddr, 0); err != nil {
		t.Errorf("stage %d connect push: %v", stage, err)
		return
	}
	control := transport.NewSubscriber()
	if err := transport.ConnectRetry(ctx, control.Connect, addrs.ControlAddr, 0); err != nil {
		t.Errorf("stage %d connect control: %v", stage, err)
		return
	}

	handler := worker.HandlerFunc(func(ctx context.Context, in *message.Message) ([]*message.Message, error) {
		return []*message.Message{message.New(respTag, in.Header.FilePath, in.Header.BatchID)}, nil
	})

	go func() {
		defer pull.Close()
		defer push.Close()
		defer control.Close()
		if err := worker.RunPullPush(ctx, worker.Config{Pull: pull, Push: push, Control: control, Name: topo.StageNames[stage]}, handler); err != nil && ctx.Err() == nil {
			t.Errorf("stage %d harness: %v", stage, err)
		}
	}()
}

func TestThreeStageTopologyTerminates(t *testing.T) {
	topo, err := NewTopology(20001, []string{"exw", "inw", "tocsvw"})
	if err != nil {
		t.Fatalf("NewTopology: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer cancel()

	identity := scaffold.TransformFunc(func(ctx context.Context, in *message.Message) (*message.Message, error) {
		return in, nil
	})

	src := &sliceSource{items: []*message.Message{
		message.New(message.ExtractionRequest, "/a.tif", nil),
		message.New(message.ExtractionRequest, "/b.tif", nil),
	}}

	errs := topo.Run(ctx, src, []scaffold.Transform{identity, identity}, RunOptions{})

	// Run starts every scaffold concurrently, so a worker stage's connect
	// races its target scaffold's bind; runWorkerStage retries past that.
	runWorkerStage(t, ctx, topo, 0, message.InferenceRequest)
	runWorkerStage(t, ctx, topo, 1, message.ToCSVRequest)
	runWorkerStage(t, ctx, topo, 2, message.ToCSVResponse)

	for i := 0; i < 4; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Fatalf("scaffold error: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for pipeline to terminate")
		}
	}
}
