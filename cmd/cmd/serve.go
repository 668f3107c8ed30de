// Copyright © 2021 Jonathan Whitaker <jonathan@whitaker.io>

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/whitaker-io/machine/config"
	"github.com/whitaker-io/machine/pipeline"
	"github.com/whitaker-io/machine/scaffold"
	"github.com/whitaker-io/machine/stages"
	"github.com/whitaker-io/machine/transport"
	"github.com/whitaker-io/machine/worker"
)

const (
	pipelineBasePortKey      = "pipeline.base_port"
	pipelineInputDirKey      = "pipeline.input_dir"
	pipelineFileGlobKey      = "pipeline.file_glob"
	pipelineOutputCSVKey     = "pipeline.output_csv"
	pipelineCentroidsKey     = "pipeline.centroids"
	pipelineCentroidsFileKey = "pipeline.centroids_file"
	pipelineGracePeriodKey   = "pipeline.grace_period"
	pipelineSettleDelayKey   = "pipeline.settle_delay"
	pipelineWorkerTimeoutKey = "pipeline.worker_timeout"
	httpPortKey              = "http.port"
)

var stageNames = []string{
	config.PrefixExtractionWorker,
	config.PrefixInferenceWorker,
	config.PrefixToCSVWorker,
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve starts an extraction/inference/to-CSV pipeline based on the config in $HOME/.pollenflow.yaml",
	Long: `serve starts an extraction/inference/to-CSV pipeline based on the config
in $HOME/.pollenflow.yaml.

The following keys are read:

	pipeline:
		base_port: 19000       # first loopback port the topology allocates from
		input_dir: ./input     # directory scanned for files to extract from
		file_glob: "*.json"    # glob pattern matched within input_dir
		output_csv: ./out.csv  # destination for the to-CSV stage's rows
		grace_period: 10s      # time allowed for graceful shutdown
		settle_delay: 5s       # delay after binding/connecting before traffic starts
		worker_timeout: 0s     # wall-clock limit per worker stage, 0 for no limit
		centroids:              # reference waveforms the inference stage scores against
			- label: pollen-a
			  rec0: [0.1, 0.2, 0.3]
	http:
		port: 5000              # health endpoint port
`,
	Run: func(cmd *cobra.Command, args []string) {
		runID := uuid.New().String()
		log := logrus.WithField("run_id", runID)

		basePort := viper.GetInt(pipelineBasePortKey)
		if basePort == 0 {
			basePort = 19000
		}

		inputDir := viper.GetString(pipelineInputDirKey)
		fileGlob := viper.GetString(pipelineFileGlobKey)
		if fileGlob == "" {
			fileGlob = "*.json"
		}

		outputCSV := viper.GetString(pipelineOutputCSVKey)
		if outputCSV == "" {
			outputCSV = "pollenflow.out.csv"
		}

		var centroidCfg []centroid
		if centroidsFile := viper.GetString(pipelineCentroidsFileKey); centroidsFile != "" {
			if err := config.LoadYAMLFile(centroidsFile, &centroidCfg); err != nil {
				log.WithError(err).Fatal("loading centroids file")
			}
		} else {
			centroidDecoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				Result:           &centroidCfg,
				WeaklyTypedInput: true,
				TagName:          "mapstructure",
			})
			if err != nil {
				log.WithError(err).Fatal("building centroid decoder")
			}
			if err := centroidDecoder.Decode(viper.Get(pipelineCentroidsKey)); err != nil {
				log.WithError(err).Fatal("decoding pipeline.centroids")
			}
		}

		gracePeriod := viper.GetDuration(pipelineGracePeriodKey)
		if gracePeriod == 0 {
			gracePeriod = 10 * time.Second
		}

		settleDelay := viper.GetDuration(pipelineSettleDelayKey)
		if settleDelay == 0 {
			settleDelay = 5 * time.Second
		}
		workerTimeout := viper.GetDuration(pipelineWorkerTimeoutKey)

		topo, err := pipeline.NewTopology(basePort, stageNames)
		if err != nil {
			log.WithError(err).Fatal("building pipeline topology")
		}

		src, err := newGlobSource(inputDir, fileGlob)
		if err != nil {
			log.WithError(err).Fatal("scanning input directory")
		}

		csvOut, err := newCSVWriter(outputCSV)
		if err != nil {
			log.WithError(err).Fatal("opening output csv")
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errs := topo.Run(ctx, src, []scaffold.Transform{
			stages.InferenceRequestTransform,
			stages.ToCSVRequestTransform,
		}, pipeline.RunOptions{
			SettleDelay: settleDelay,
			OnStartup:   func(name string) { log.WithField("stage", name).Info("scaffold starting") },
			OnClosure:   func(name string) { log.WithField("stage", name).Info("scaffold closed") },
		})

		handlers := []worker.Handler{
			&stages.ExtractionHandler{Extractor: jsonExtractor{}},
			&stages.InferenceHandler{Model: &centroidModel{centroids: centroidCfg}},
			&stages.ToCSVHandler{Writer: csvOut},
		}

		workerErrs := make(chan error, len(handlers))
		for i, h := range handlers {
			i, h := i, h
			go func() {
				workerErrs <- runWorkerStage(ctx, topo, i, h, settleDelay, workerTimeout, log)
			}()
		}

		app := fiber.New()
		app.Get("/healthz", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"run_id": runID, "status": "ok"})
		})

		httpPort := viper.GetInt(httpPortKey)
		if httpPort == 0 {
			httpPort = 5000
		}

		go func() {
			if err := app.Listen(":" + strconv.Itoa(httpPort)); err != nil {
				log.WithError(err).Error("health endpoint stopped")
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt)

		select {
		case <-quit:
			log.Info("shutting down on interrupt")
		case err := <-errs:
			if err != nil {
				log.WithError(err).Error("pipeline scaffold exited with error")
			}
		case err := <-workerErrs:
			if err != nil {
				log.WithError(err).Error("worker stage exited with error")
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracePeriod)
		defer shutdownCancel()

		cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.WithError(err).Error("error shutting down health endpoint")
		}
	},
}

// runWorkerStage dials the three sockets worker stage i needs and drives it
// with worker.RunPullPush, retrying its connects since the scaffold on the
// other end binds asynchronously.
func runWorkerStage(ctx context.Context, topo *pipeline.Topology, i int, h worker.Handler, settleDelay, timeout time.Duration, log *logrus.Entry) error {
	addrs := topo.Addresses(i)

	pull := transport.NewPuller()
	if err := transport.ConnectRetry(ctx, pull.Connect, addrs.PullAddr, 0); err != nil {
		return fmt.Errorf("worker[%d]: %w", i, err)
	}
	defer pull.Close()

	push := transport.NewPusher()
	if err := transport.ConnectRetry(ctx, push.Connect, addrs.PushAddr, 0); err != nil {
		return fmt.Errorf("worker[%d]: %w", i, err)
	}
	defer push.Close()

	control := transport.NewSubscriber()
	if err := transport.ConnectRetry(ctx, control.Connect, addrs.ControlAddr, 0); err != nil {
		return fmt.Errorf("worker[%d]: %w", i, err)
	}
	defer control.Close()

	name := stageNames[i]
	return worker.RunPullPush(ctx, worker.Config{
		Pull:        pull,
		Push:        push,
		Control:     control,
		Name:        name,
		SettleDelay: settleDelay,
		Timeout:     timeout,
		OnStartup:   func() { log.WithField("stage", name).Info("starting") },
		OnClosure:   func() { log.WithField("stage", name).Info("closed") },
		OnError: func(err error) {
			log.WithError(err).WithField("stage", name).Error("worker request failed")
		},
	}, h)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
