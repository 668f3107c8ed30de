// Package metrics instruments workers and scaffolds with the same otel
// counters and tracer vertex.go wires up for the teacher's handler
// middleware chain, generalized from a per-vertex id/type to a per-stage
// name/kind pair.
package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/trace"
)

var (
	meter  = global.Meter("swisspollentools")
	tracer = otel.GetTracerProvider().Tracer("swisspollentools")

	inCounter     = metric.Must(meter).NewInt64ValueRecorder("messages_in")
	outCounter    = metric.Must(meter).NewInt64ValueRecorder("messages_out")
	errorsCounter = metric.Must(meter).NewInt64ValueRecorder("errors")
	batchDuration = metric.Must(meter).NewInt64ValueRecorder("batch_duration")
)

// Recorder wraps one worker or scaffold's instrumentation for a single
// message-handling call, mirroring vertex.go's metrics/span middleware but
// as an explicit defer-style call instead of a handler-wrapping closure,
// since worker.Handler has no single shared signature to wrap generically.
type Recorder struct {
	StageName string
	StageKind string
}

// Span is the live measurement for one in-flight call, returned by Start.
type Span struct {
	r         Recorder
	runID     attribute.KeyValue
	start     time.Time
	traceSpan trace.Span
}

// Start begins timing and tracing the processing of n incoming items.
func (r Recorder) Start(ctx context.Context, n int) (context.Context, *Span) {
	runID := attribute.String("run_id", uuid.NewString())
	name := attribute.String("stage_name", r.StageName)
	kind := attribute.String("stage_kind", r.StageKind)

	inCounter.Record(ctx, int64(n), name, kind, runID)

	spanCtx, traceSpan := tracer.Start(ctx, r.StageName)

	return spanCtx, &Span{r: r, runID: runID, start: time.Now(), traceSpan: traceSpan}
}

// End closes out the measurement, recording output count, error count and
// elapsed duration.
func (s *Span) End(outN, errN int) {
	name := attribute.String("stage_name", s.r.StageName)
	kind := attribute.String("stage_kind", s.r.StageKind)

	ctx := context.Background()
	outCounter.Record(ctx, int64(outN), name, kind, s.runID)
	errorsCounter.Record(ctx, int64(errN), name, kind, s.runID)
	batchDuration.Record(ctx, int64(time.Since(s.start)), name, kind, s.runID)

	s.traceSpan.End()
}
