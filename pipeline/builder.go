package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/whitaker-io/machine/scaffold"
)

// RunOptions carries the run-wide settings every scaffold Run starts needs:
// how long each one settles after binding/connecting before touching
// traffic, and the lifecycle hooks it invokes once each around its run.
// OnStartup and OnClosure are called with the scaffold's name (ventilator,
// collator[i], sink) so a caller can attribute log lines per stage.
type RunOptions struct {
	SettleDelay time.Duration
	OnStartup   func(name string)
	OnClosure   func(name string)
}

func (o RunOptions) startup(name string) func() {
	if o.OnStartup == nil {
		return nil
	}
	return func() { o.OnStartup(name) }
}

func (o RunOptions) closure(name string) func() {
	if o.OnClosure == nil {
		return nil
	}
	return func() { o.OnClosure(name) }
}

// WorkerAddresses is the socket wiring handed to one worker-stage's
// harness: the address to connect its Puller to, the address to connect
// its Pusher to, and the control-pub address its Subscriber connects to.
type WorkerAddresses struct {
	PullAddr    string
	PushAddr    string
	ControlAddr string
}

// Addresses returns the WorkerAddresses for worker stage i.
func (t *Topology) Addresses(i int) WorkerAddresses {
	return WorkerAddresses{
		PullAddr:    t.StagePull(i),
		PushAddr:    t.StagePush(i),
		ControlAddr: t.StageControl(i),
	}
}

// Run starts the Ventilator, every intermediate Collator and the Sink for
// this Topology as goroutines and returns at once. Each scaffold's result
// (nil or its error) is delivered on the returned channel when that
// scaffold exits, so a full run yields len(StageNames)+1 values.
// It does not start worker-stage goroutines; callers wire those with
// worker.RunPullPush or worker.RunCollate using t.Addresses(i), since only
// the caller knows which Handler or CollateHandler belongs to each stage.
//
// Real OS process boundaries are out of scope: each scaffold here is a
// goroutine communicating with the others exclusively over real loopback
// TCP sockets, preserving the original design's ordering, backpressure and
// termination behavior without a process-spawning mechanism.
func (t *Topology) Run(ctx context.Context, src scaffold.RequestSource, transforms []scaffold.Transform, opts RunOptions) <-chan error {
	n := len(t.StageNames)
	if len(transforms) != n-1 {
		errs := make(chan error, 1)
		errs <- fmt.Errorf("pipeline: need %d collator transforms for %d stages, got %d", n-1, n, len(transforms))
		close(errs)
		return errs
	}

	errs := make(chan error, n+1)

	go func() {
		errs <- wrap("ventilator", scaffold.RunVentilator(ctx, scaffold.VentilatorConfig{
			PushAddr:      t.VentilatorPush(),
			CountBindAddr: t.VentilatorCount(),
			SettleDelay:   opts.SettleDelay,
			OnStartup:     opts.startup("ventilator"),
			OnClosure:     opts.closure("ventilator"),
		}, src))
	}()

	for i := 0; i < n-1; i++ {
		i := i
		name := fmt.Sprintf("collator[%d]", i)
		go func() {
			errs <- wrap(name, scaffold.RunCollator(ctx, scaffold.CollatorConfig{
				PullAddr:         t.CollatorPull(i),
				PushAddr:         t.CollatorPush(i),
				ControlPubAddr:   t.StageControl(i),
				CountConnectAddr: t.CollatorCountConnect(i),
				CountBindAddr:    t.CollatorCountBind(i),
				SettleDelay:      opts.SettleDelay,
				OnStartup:        opts.startup(name),
				OnClosure:        opts.closure(name),
			}, transforms[i]))
		}()
	}

	go func() {
		errs <- wrap("sink", scaffold.RunSink(ctx, scaffold.SinkConfig{
			PullAddr:         t.SinkPull(),
			ControlPubAddr:   t.StageControl(n - 1),
			CountConnectAddr: t.SinkCountConnect(),
			SettleDelay:      opts.SettleDelay,
			OnStartup:        opts.startup("sink"),
			OnClosure:        opts.closure("sink"),
		}))
	}()

	return errs
}

func wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
