package bench

import (
	"context"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Sink receives window reports. Report is called once per completed window,
// from the goroutine running the harness.
type Sink interface {
	Report(ctx context.Context, r WindowReport) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r WindowReport) error

// Report calls f.
func (f SinkFunc) Report(ctx context.Context, r WindowReport) error {
	return f(ctx, r)
}

// LogSink writes each report as one structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink logging to logger at info level.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Report(_ context.Context, r WindowReport) error {
	s.logger.Info("Window complete",
		zap.String("run_id", r.RunID),
		zap.Int("window", r.Window),
		zap.String("path", string(r.Path)),
		zap.Int("samples", r.Samples),
		zap.Float64("mean_ms", r.MeanMs),
		zap.Float64("min_ms", r.MinMs),
		zap.Float64("max_ms", r.MaxMs),
		zap.Int("elements_per_call", r.Elements),
		zap.String("throughput", humanize.SIWithDigits(r.ElementsPerSecond(), 2, "elem/s")),
	)
	return nil
}

// MultiSink delivers each report to every sink, even when earlier ones fail.
// The errors are combined.
type MultiSink []Sink

func (m MultiSink) Report(ctx context.Context, r WindowReport) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Report(ctx, r))
	}
	return err
}
