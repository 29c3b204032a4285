package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lwwmerge/internal/lww"
	"lwwmerge/internal/verify"
)

const (
	DefaultWindows    = 100
	DefaultIterations = 100
)

// Merger is a merge path the harness can drive. lww.Sequential and
// *dispatch.Dispatcher both satisfy it.
type Merger interface {
	Merge(ctx context.Context, pair lww.ArrayPair) (lww.Merged, error)
}

// Options configures a Harness.
type Options struct {
	Windows    int
	Iterations int
	Elements   int
	Path       Path
	// RunID labels every report of the run. A random UUID is used when empty.
	RunID string
	// Verify re-merges each pair with the sequential baseline after the timer
	// stops and fails the run on any difference.
	Verify bool
	Logger *zap.Logger
}

// Harness runs one merge path for a fixed number of windows.
type Harness struct {
	merger Merger
	gen    *Generator
	sink   Sink
	opts   Options
	logger *zap.Logger
}

// New validates opts and returns a harness. Zero Windows and Iterations take
// their defaults.
func New(merger Merger, gen *Generator, sink Sink, opts Options) (*Harness, error) {
	if merger == nil {
		return nil, errors.New("nil merger")
	}
	if gen == nil {
		return nil, errors.New("nil generator")
	}
	if sink == nil {
		return nil, errors.New("nil sink")
	}
	if opts.Windows == 0 {
		opts.Windows = DefaultWindows
	}
	if opts.Iterations == 0 {
		opts.Iterations = DefaultIterations
	}
	if opts.Windows < 0 || opts.Iterations < 0 {
		return nil, fmt.Errorf("windows (%d) and iterations (%d) must be positive", opts.Windows, opts.Iterations)
	}
	if opts.Elements <= 0 {
		return nil, fmt.Errorf("element count must be positive, got %d", opts.Elements)
	}
	if _, err := ParsePath(string(opts.Path)); err != nil {
		return nil, err
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Harness{
		merger: merger,
		gen:    gen,
		sink:   sink,
		opts:   opts,
		logger: opts.Logger.With(zap.String("run_id", opts.RunID)),
	}, nil
}

// RunID returns the identifier attached to every report.
func (h *Harness) RunID() string {
	return h.opts.RunID
}

// Run executes every window in order and returns the emitted reports. The
// first error stops the run; reports already emitted are returned with it.
func (h *Harness) Run(ctx context.Context) ([]WindowReport, error) {
	h.logger.Info("Starting benchmark run",
		zap.String("path", string(h.opts.Path)),
		zap.Int("windows", h.opts.Windows),
		zap.Int("iterations", h.opts.Iterations),
		zap.Int("elements", h.opts.Elements),
		zap.Bool("verify", h.opts.Verify),
	)

	var stats RunStatistics
	reports := make([]WindowReport, 0, h.opts.Windows)
	for w := 0; w < h.opts.Windows; w++ {
		r, err := h.RunWindow(ctx, w, &stats)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}

	h.logger.Info("Benchmark run complete", zap.Int("windows", len(reports)))
	return reports, nil
}

// RunWindow runs one window of iterations, appending a sample to stats for
// each successful call. On success the report is emitted to the sink and
// stats is reset. On failure stats is reset without emitting anything.
func (h *Harness) RunWindow(ctx context.Context, w int, stats *RunStatistics) (WindowReport, error) {
	for i := 0; i < h.opts.Iterations; i++ {
		ms, err := h.iteration(ctx)
		if err != nil {
			stats.Reset()
			return WindowReport{}, fmt.Errorf("window %d iteration %d: %w", w, i, err)
		}
		stats.Add(ms)
	}

	r := newWindowReport(h.opts.RunID, w, h.opts.Path, h.opts.Elements, stats)
	stats.Reset()
	if err := h.sink.Report(ctx, r); err != nil {
		return WindowReport{}, fmt.Errorf("window %d: report: %w", w, err)
	}
	return r, nil
}

// iteration generates a pair, times one merge call and optionally verifies
// it. Generation and verification fall outside the timed region.
func (h *Harness) iteration(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	pair := h.gen.Pair(h.opts.Elements)

	start := time.Now()
	out, err := h.merger.Merge(ctx, pair)
	elapsed := time.Since(start)
	if err != nil {
		return 0, fmt.Errorf("merge: %w", err)
	}

	if h.opts.Verify {
		want, err := lww.MergeSequential(pair)
		if err != nil {
			return 0, fmt.Errorf("baseline: %w", err)
		}
		if err := verify.Compare(want, out).Err(); err != nil {
			return 0, fmt.Errorf("verify: %w", err)
		}
	}

	return float64(elapsed) / float64(time.Millisecond), nil
}
