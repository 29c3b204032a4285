package bench

import (
	"fmt"
	"strings"
)

// Path selects the merge implementation a run drives.
type Path string

const (
	PathAccelerated Path = "accelerated"
	PathBaseline    Path = "baseline"
)

// ParsePath parses a path name, case-insensitively.
func ParsePath(s string) (Path, error) {
	switch p := Path(strings.ToLower(strings.TrimSpace(s))); p {
	case PathAccelerated, PathBaseline:
		return p, nil
	default:
		return "", fmt.Errorf("invalid merge path %q (expected %s or %s)", s, PathAccelerated, PathBaseline)
	}
}

// WindowReport summarises one reporting window.
type WindowReport struct {
	RunID    string  `json:"run_id"`
	Window   int     `json:"window"`
	Samples  int     `json:"samples"`
	MeanMs   float64 `json:"mean_ms"`
	MinMs    float64 `json:"min_ms"`
	MaxMs    float64 `json:"max_ms"`
	Elements int     `json:"elements_per_call"`
	Path     Path    `json:"path"`
}

// ElementsPerSecond returns the merge throughput implied by the mean, or 0
// when the mean is not positive.
func (r WindowReport) ElementsPerSecond() float64 {
	if r.MeanMs <= 0 {
		return 0
	}
	return float64(r.Elements) / (r.MeanMs / 1000)
}

// newWindowReport snapshots stats for window w.
func newWindowReport(runID string, w int, path Path, elements int, stats *RunStatistics) WindowReport {
	return WindowReport{
		RunID:    runID,
		Window:   w,
		Samples:  stats.Len(),
		MeanMs:   stats.Mean(),
		MinMs:    stats.Min(),
		MaxMs:    stats.Max(),
		Elements: elements,
		Path:     path,
	}
}
