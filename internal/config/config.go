package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"lwwmerge/internal/bench"
	"lwwmerge/internal/device"
	"lwwmerge/internal/dispatch"
	"lwwmerge/internal/lww"
)

// Config holds the benchmark configuration.
type Config struct {
	Run     RunConfig     `yaml:"run"`
	Device  DeviceConfig  `yaml:"device"`
	Report  ReportConfig  `yaml:"report"`
	Logging LoggingConfig `yaml:"logging"`
}

// RunConfig configures the benchmark loop.
type RunConfig struct {
	Path       string `yaml:"path"` // accelerated, baseline
	Elements   int    `yaml:"elements"`
	Windows    int    `yaml:"windows"`
	Iterations int    `yaml:"iterations"`
	Seed       uint64 `yaml:"seed"` // 0 picks a random seed
	Verify     bool   `yaml:"verify"`
}

// DeviceConfig configures the compute device and dispatcher.
type DeviceConfig struct {
	Backend       string `yaml:"backend"`
	Workers       int    `yaml:"workers"`       // 0 uses GOMAXPROCS
	MemoryBudget  string `yaml:"memory_budget"` // e.g. "1GiB"
	WorkgroupSize uint32 `yaml:"workgroup_size"`
	PoolSize      int    `yaml:"pool_size"`
	Timeout       string `yaml:"timeout"` // per merge call, empty for none
}

// ReportConfig configures report publishing and the collector.
type ReportConfig struct {
	Collector      string `yaml:"collector"` // comma-separated host:port list
	PublishTimeout string `yaml:"publish_timeout"`
	GRPCListen     string `yaml:"grpc_listen"`
	HTTPListen     string `yaml:"http_listen"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Path:       string(bench.PathAccelerated),
			Elements:   lww.DefaultElements,
			Windows:    bench.DefaultWindows,
			Iterations: bench.DefaultIterations,
		},
		Device: DeviceConfig{
			Backend:       string(device.BackendCPU),
			MemoryBudget:  "1GiB",
			WorkgroupSize: dispatch.DefaultWorkgroupSize,
			PoolSize:      dispatch.DefaultPoolSize,
		},
		Report: ReportConfig{
			PublishTimeout: "5s",
			GRPCListen:     ":7070",
			HTTPListen:     ":7071",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if path := os.Getenv("LWWBENCH_PATH"); path != "" {
		c.Run.Path = path
	}
	if s := os.Getenv("LWWBENCH_ELEMENTS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid LWWBENCH_ELEMENTS %q: %w", s, err)
		}
		c.Run.Elements = n
	}
	if addr := os.Getenv("LWWBENCH_COLLECTOR"); addr != "" {
		c.Report.Collector = addr
	}
	return nil
}

// Validate checks the configuration for values the run cannot use.
func (c *Config) Validate() error {
	if _, err := ParsePath(c.Run.Path); err != nil {
		return err
	}
	if c.Run.Elements <= 0 {
		return fmt.Errorf("run.elements must be positive, got %d", c.Run.Elements)
	}
	if c.Run.Windows <= 0 || c.Run.Iterations <= 0 {
		return fmt.Errorf("run.windows (%d) and run.iterations (%d) must be positive", c.Run.Windows, c.Run.Iterations)
	}
	if c.Device.Workers < 0 {
		return fmt.Errorf("device.workers must not be negative, got %d", c.Device.Workers)
	}
	if _, err := c.MemoryBudgetBytes(); err != nil {
		return err
	}
	if c.Device.WorkgroupSize == 0 {
		return fmt.Errorf("device.workgroup_size must be positive")
	}
	if _, err := c.MergeTimeout(); err != nil {
		return err
	}
	if _, err := c.PublishTimeout(); err != nil {
		return err
	}
	if _, err := ParseCollectors(c.Report.Collector); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format %q (expected json or console)", c.Logging.Format)
	}
	return nil
}

// ParsePath parses the merge path name.
func ParsePath(s string) (bench.Path, error) {
	return bench.ParsePath(s)
}

// MemoryBudgetBytes parses device.memory_budget. Empty means the device
// default.
func (c *Config) MemoryBudgetBytes() (uint64, error) {
	if c.Device.MemoryBudget == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.Device.MemoryBudget)
	if err != nil {
		return 0, fmt.Errorf("invalid device.memory_budget %q: %w", c.Device.MemoryBudget, err)
	}
	return n, nil
}

// AdapterOptions converts the device section.
func (c *Config) AdapterOptions() (device.AdapterOptions, error) {
	budget, err := c.MemoryBudgetBytes()
	if err != nil {
		return device.AdapterOptions{}, err
	}
	return device.AdapterOptions{
		Backend:      device.Backend(c.Device.Backend),
		Workers:      c.Device.Workers,
		MemoryBudget: budget,
	}, nil
}

// MergeTimeout returns the per-call timeout, or 0 for none.
func (c *Config) MergeTimeout() (time.Duration, error) {
	return parseDuration("device.timeout", c.Device.Timeout)
}

// PublishTimeout returns the per-report publish timeout, or 0 for the sink
// default.
func (c *Config) PublishTimeout() (time.Duration, error) {
	return parseDuration("report.publish_timeout", c.Report.PublishTimeout)
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", field, d)
	}
	return d, nil
}

// ParseCollectors parses a comma-separated list of collector addresses in
// the format: "host1:port1,host2:port2"
func ParseCollectors(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}

	parts := strings.Split(s, ",")
	addrs := make([]string, 0, len(parts))

	for _, part := range parts {
		addr := strings.TrimSpace(part)
		if addr == "" {
			continue
		}

		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid collector address: %s (expected host:port)", addr)
		}
		if host == "" || port == "" {
			return nil, fmt.Errorf("collector host and port cannot be empty: %s", addr)
		}

		addrs = append(addrs, addr)
	}

	return addrs, nil
}
