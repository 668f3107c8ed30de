// Copyright © 2021 Jonathan Whitaker <jonathan@whitaker.io>

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/whitaker-io/machine/config"
	"github.com/whitaker-io/machine/scaffold"
	"github.com/whitaker-io/machine/stages"
	"github.com/whitaker-io/machine/transport"
	"github.com/whitaker-io/machine/worker"
)

// scaffoldCmd groups the four scaffold kinds so each can be launched as its
// own OS process, the deployment shape hpc_pipeline.py assumes when it
// spawns one process per scaffold/worker rather than running them as
// goroutines of a single binary (the shape "serve" takes instead).
var scaffoldCmd = &cobra.Command{
	Use:   "scaffold",
	Short: "scaffold runs one ventilator, collator or sink process",
}

var ventilatorCmd = &cobra.Command{
	Use:   "ventilator",
	Short: "ventilator reads input_dir/file_glob and emits one ExtractionRequest per match",
	Run: func(cmd *cobra.Command, args []string) {
		bucket := config.Demux(viper.AllSettings(), config.PrefixVentilator)[config.PrefixVentilator]

		var addrs config.ScaffoldAddresses
		mustDecode(bucket, &addrs)

		src, err := newGlobSource(viper.GetString(pipelineInputDirKey), viper.GetString(pipelineFileGlobKey))
		if err != nil {
			logrus.WithError(err).Fatal("scanning input directory")
		}

		runUntilInterrupt("ventilator", func(ctx context.Context) error {
			return scaffold.RunVentilator(ctx, scaffold.VentilatorConfig{
				PushAddr:      addrs.Push,
				CountBindAddr: addrs.CountBind,
				SettleDelay:   addrs.SettleDelay,
				OnStartup:     func() { logrus.Info("ventilator starting") },
				OnClosure:     func() { logrus.Info("ventilator closed") },
			}, src)
		})
	},
}

var collatorCmd = &cobra.Command{
	Use:   "collator",
	Short: "collator runs one collator stage, transforming worker responses into the next stage's requests",
	Run: func(cmd *cobra.Command, args []string) {
		bucket := config.Demux(viper.AllSettings(), config.PrefixCollator)[config.PrefixCollator]

		var addrs config.ScaffoldAddresses
		mustDecode(bucket, &addrs)

		next := viper.GetString("collator.next")
		transform, err := transformFor(next)
		if err != nil {
			logrus.WithError(err).Fatal("resolving collator transform")
		}

		runUntilInterrupt("collator", func(ctx context.Context) error {
			return scaffold.RunCollator(ctx, scaffold.CollatorConfig{
				PullAddr:         addrs.Pull,
				PushAddr:         addrs.Push,
				ControlPubAddr:   addrs.ControlPub,
				CountConnectAddr: addrs.CountConnect,
				CountBindAddr:    addrs.CountBind,
				SettleDelay:      addrs.SettleDelay,
				OnStartup:        func() { logrus.Info("collator starting") },
				OnClosure:        func() { logrus.Info("collator closed") },
			}, transform)
		})
	},
}

var sinkCmd = &cobra.Command{
	Use:   "sink",
	Short: "sink runs the pipeline's terminal stage, draining final responses and broadcasting shutdown",
	Run: func(cmd *cobra.Command, args []string) {
		bucket := config.Demux(viper.AllSettings(), config.PrefixSink)[config.PrefixSink]

		var addrs config.ScaffoldAddresses
		mustDecode(bucket, &addrs)

		runUntilInterrupt("sink", func(ctx context.Context) error {
			return scaffold.RunSink(ctx, scaffold.SinkConfig{
				PullAddr:         addrs.Pull,
				ControlPubAddr:   addrs.ControlPub,
				CountConnectAddr: addrs.CountConnect,
				SettleDelay:      addrs.SettleDelay,
				OnStartup:        func() { logrus.Info("sink starting") },
				OnClosure:        func() { logrus.Info("sink closed") },
			})
		})
	},
}

// workerCmd groups the per-stage business-logic processes a scaffold fans
// work out to.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "worker runs one extraction, inference or to-CSV worker process",
}

var extractionWorkerCmd = &cobra.Command{
	Use:   "extraction",
	Short: "extraction decodes input files into ExtractionResponse messages",
	Run: func(cmd *cobra.Command, args []string) {
		addrs := workerAddrFlags(cmd)
		settleDelay, timeout := workerSettleAndTimeout(cmd)
		runWorkerProcess(addrs, settleDelay, timeout, config.PrefixExtractionWorker, &stages.ExtractionHandler{Extractor: jsonExtractor{}})
	},
}

var inferenceWorkerCmd = &cobra.Command{
	Use:   "inference",
	Short: "inference scores InferenceRequest waveforms against configured centroids",
	Run: func(cmd *cobra.Command, args []string) {
		addrs := workerAddrFlags(cmd)

		var centroidCfg []centroid
		if err := config.Decode(config.Demux(viper.AllSettings(), config.PrefixInferenceWorker)[config.PrefixInferenceWorker], &struct {
			Centroids *[]centroid `mapstructure:"centroids"`
		}{&centroidCfg}); err != nil {
			logrus.WithError(err).Fatal("decoding inference worker config")
		}

		settleDelay, timeout := workerSettleAndTimeout(cmd)
		runWorkerProcess(addrs, settleDelay, timeout, config.PrefixInferenceWorker, &stages.InferenceHandler{Model: &centroidModel{centroids: centroidCfg}})
	},
}

var tocsvWorkerCmd = &cobra.Command{
	Use:   "tocsv",
	Short: "tocsv appends one row per ToCSVRequest to the configured output file",
	Run: func(cmd *cobra.Command, args []string) {
		addrs := workerAddrFlags(cmd)

		path := viper.GetString(pipelineOutputCSVKey)
		if path == "" {
			path = "pollenflow.out.csv"
		}
		w, err := newCSVWriter(path)
		if err != nil {
			logrus.WithError(err).Fatal("opening output csv")
		}

		settleDelay, timeout := workerSettleAndTimeout(cmd)
		runWorkerProcess(addrs, settleDelay, timeout, config.PrefixToCSVWorker, &stages.ToCSVHandler{Writer: w})
	},
}

func transformFor(stageName string) (scaffold.Transform, error) {
	switch stageName {
	case config.PrefixInferenceWorker:
		return stages.InferenceRequestTransform, nil
	case config.PrefixMergeWorker:
		return stages.MergeRequestTransform, nil
	case config.PrefixToCSVWorker:
		return stages.ToCSVRequestTransform, nil
	case config.PrefixTrainWorker:
		return stages.TrainRequestTransform, nil
	default:
		return nil, fmt.Errorf("unknown collator.next stage %q", stageName)
	}
}

type workerAddrs struct {
	pull, push, control string
}

func workerAddrFlags(cmd *cobra.Command) workerAddrs {
	pull, _ := cmd.Flags().GetString("pull")
	push, _ := cmd.Flags().GetString("push")
	control, _ := cmd.Flags().GetString("control")
	return workerAddrs{pull: pull, push: push, control: control}
}

// workerSettleAndTimeout reads the --settle-delay/--timeout flags shared
// by every worker subcommand.
func workerSettleAndTimeout(cmd *cobra.Command) (time.Duration, time.Duration) {
	settleDelay, _ := cmd.Flags().GetDuration("settle-delay")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return settleDelay, timeout
}

func runWorkerProcess(addrs workerAddrs, settleDelay, timeout time.Duration, name string, h worker.Handler) {
	connectCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pull := transport.NewPuller()
	if err := transport.ConnectRetry(connectCtx, pull.Connect, addrs.pull, 0); err != nil {
		logrus.WithError(err).Fatal("connecting pull socket")
	}
	defer pull.Close()

	push := transport.NewPusher()
	if err := transport.ConnectRetry(connectCtx, push.Connect, addrs.push, 0); err != nil {
		logrus.WithError(err).Fatal("connecting push socket")
	}
	defer push.Close()

	control := transport.NewSubscriber()
	if err := transport.ConnectRetry(connectCtx, control.Connect, addrs.control, 0); err != nil {
		logrus.WithError(err).Fatal("connecting control socket")
	}
	defer control.Close()

	runUntilInterrupt(name, func(ctx context.Context) error {
		return worker.RunPullPush(ctx, worker.Config{
			Pull: pull, Push: push, Control: control, Name: name,
			SettleDelay: settleDelay,
			Timeout:     timeout,
			OnStartup:   func() { logrus.WithField("stage", name).Info("starting") },
			OnClosure:   func() { logrus.WithField("stage", name).Info("closed") },
			OnError:     func(err error) { logrus.WithError(err).WithField("stage", name).Error("request failed") },
		}, h)
	})
}

// runUntilInterrupt runs fn until it returns or the process receives
// os.Interrupt, whichever comes first.
func runUntilInterrupt(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case <-quit:
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			logrus.WithError(err).WithField("process", name).Error("exited with error")
			os.Exit(1)
		}
	}
}

func mustDecode(bucket map[string]interface{}, dst interface{}) {
	if err := config.Decode(bucket, dst); err != nil {
		logrus.WithError(err).Fatal("decoding scaffold config")
	}
}

func init() {
	for _, c := range []*cobra.Command{extractionWorkerCmd, inferenceWorkerCmd, tocsvWorkerCmd} {
		c.Flags().String("pull", "", "address this worker's puller connects to")
		c.Flags().String("push", "", "address this worker's pusher connects to")
		c.Flags().String("control", "", "address this worker's subscriber connects to")
		c.Flags().Duration("settle-delay", 5*time.Second, "delay after connecting before polling begins")
		c.Flags().Duration("timeout", 0, "wall-clock limit on this worker's run, 0 for no limit")
	}

	workerCmd.AddCommand(extractionWorkerCmd, inferenceWorkerCmd, tocsvWorkerCmd)
	scaffoldCmd.AddCommand(ventilatorCmd, collatorCmd, sinkCmd)
	rootCmd.AddCommand(scaffoldCmd, workerCmd)
}
