package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"lwwmerge/internal/bench"
	"lwwmerge/internal/config"
	"lwwmerge/internal/dispatch"
	"lwwmerge/internal/lww"
	"lwwmerge/internal/report"
)

// runCmd runs one benchmark
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the merge benchmark",
	Long: `Runs R windows of K merge calls on the selected path and reports the
sample count, mean latency and elements merged per call after each window.

Example:
  lwwbench run --path accelerated --windows 10 --iterations 50 --verify`,
	Args: cobra.NoArgs,
	RunE: runBenchmark,
}

func init() {
	f := runCmd.Flags()
	f.String("path", "", "merge path: accelerated or baseline")
	f.Int("elements", 0, "registers per replica")
	f.Uint32("workgroup-size", 0, "registers per work-group on the accelerated path")
	f.Int("windows", 0, "reporting windows")
	f.Int("iterations", 0, "merge calls per window")
	f.Uint64("seed", 0, "data generator seed (0 picks one)")
	f.Bool("verify", false, "check every result against the sequential baseline")
	f.Duration("timeout", 0, "per-call timeout on the accelerated path")
	f.String("collector", "", "comma-separated report collector addresses")
	f.String("run-id", "", "run identifier (random UUID when empty)")
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	var err error
	if f.Changed("path") {
		c.Run.Path, err = f.GetString("path")
		if err != nil {
			return err
		}
	}
	if f.Changed("elements") {
		if c.Run.Elements, err = f.GetInt("elements"); err != nil {
			return err
		}
	}
	if f.Changed("workgroup-size") {
		if c.Device.WorkgroupSize, err = f.GetUint32("workgroup-size"); err != nil {
			return err
		}
	}
	if f.Changed("windows") {
		if c.Run.Windows, err = f.GetInt("windows"); err != nil {
			return err
		}
	}
	if f.Changed("iterations") {
		if c.Run.Iterations, err = f.GetInt("iterations"); err != nil {
			return err
		}
	}
	if f.Changed("seed") {
		if c.Run.Seed, err = f.GetUint64("seed"); err != nil {
			return err
		}
	}
	if f.Changed("verify") {
		if c.Run.Verify, err = f.GetBool("verify"); err != nil {
			return err
		}
	}
	if f.Changed("timeout") {
		d, err := f.GetDuration("timeout")
		if err != nil {
			return err
		}
		c.Device.Timeout = d.String()
	}
	if f.Changed("collector") {
		if c.Report.Collector, err = f.GetString("collector"); err != nil {
			return err
		}
	}
	return nil
}

func runBenchmark(cmd *cobra.Command, args []string) (err error) {
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	path, _ := config.ParsePath(cfg.Run.Path)
	runID, _ := cmd.Flags().GetString("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}
	seed := cfg.Run.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	log := logger.With(zap.String("run_id", runID))

	sink, closeSink, err := buildSink(log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeSink()) }()

	var merger bench.Merger = lww.Sequential{}
	if path == bench.PathAccelerated {
		d, closeDispatcher, err := buildDispatcher(log)
		if err != nil {
			return err
		}
		defer closeDispatcher()
		merger = d
	}

	h, err := bench.New(merger, bench.NewGenerator(seed), sink, bench.Options{
		Windows:    cfg.Run.Windows,
		Iterations: cfg.Run.Iterations,
		Elements:   cfg.Run.Elements,
		Path:       path,
		RunID:      runID,
		Verify:     cfg.Run.Verify,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	log.Info("Benchmark configured",
		zap.Uint64("seed", seed),
		zap.String("pair_size", humanize.IBytes(uint64(cfg.Run.Elements)*16)),
	)

	start := time.Now()
	reports, err := h.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run %s aborted after %d windows: %w", runID, len(reports), err)
	}
	log.Info("Run finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// buildDispatcher acquires the device and compiles the merge kernel.
func buildDispatcher(log *zap.Logger) (*dispatch.Dispatcher, func(), error) {
	adapterOpts, err := cfg.AdapterOptions()
	if err != nil {
		return nil, nil, err
	}
	timeout, err := cfg.MergeTimeout()
	if err != nil {
		return nil, nil, err
	}

	dev, err := dispatch.Open(adapterOpts, log)
	if err != nil {
		return nil, nil, err
	}
	d, err := dispatch.New(dev, dispatch.Options{
		Elements:      cfg.Run.Elements,
		WorkgroupSize: cfg.Device.WorkgroupSize,
		PoolSize:      cfg.Device.PoolSize,
		Timeout:       timeout,
		Logger:        log,
	})
	if err != nil {
		dev.Destroy()
		return nil, nil, err
	}
	return d, func() {
		d.Close()
		dev.Destroy()
	}, nil
}

// buildSink returns the log sink, fanned out to every configured collector.
func buildSink(log *zap.Logger) (bench.Sink, func() error, error) {
	addrs, err := config.ParseCollectors(cfg.Report.Collector)
	if err != nil {
		return nil, nil, err
	}
	timeout, err := cfg.PublishTimeout()
	if err != nil {
		return nil, nil, err
	}

	sinks := bench.MultiSink{bench.NewLogSink(log)}
	var grpcSinks []*report.GRPCSink
	closeAll := func() error {
		var err error
		for _, s := range grpcSinks {
			err = multierr.Append(err, s.Close())
		}
		return err
	}

	for _, addr := range addrs {
		s, err := report.Dial(addr, timeout)
		if err != nil {
			return nil, nil, multierr.Append(err, closeAll())
		}
		grpcSinks = append(grpcSinks, s)
		sinks = append(sinks, s)
		log.Info("Publishing reports", zap.String("collector", addr))
	}
	return sinks, closeAll, nil
}
