package report

import (
	"slices"
	"sync"

	"lwwmerge/internal/bench"
)

// RunSummary aggregates every stored window of one run.
type RunSummary struct {
	RunID    string     `json:"run_id"`
	Path     bench.Path `json:"path"`
	Elements int        `json:"elements_per_call"`
	Windows  int        `json:"windows"`
	Samples  int        `json:"samples"`
	// MeanMs is weighted by each window's sample count.
	MeanMs            float64 `json:"mean_ms"`
	MinMs             float64 `json:"min_ms"`
	MaxMs             float64 `json:"max_ms"`
	ElementsPerSecond float64 `json:"elements_per_second"`
}

// Store defines the interface for window report storage.
type Store interface {
	// Put stores a report. A report for a window already stored for the same
	// run replaces it.
	Put(r bench.WindowReport)
	// Get returns the reports of a run ordered by window, or nil if the run
	// is unknown.
	Get(runID string) []bench.WindowReport
	// Runs returns a summary per run in the order runs were first seen.
	Runs() []RunSummary
}

type run struct {
	seq     int
	reports []bench.WindowReport
}

// InMemoryStore is an in-memory implementation of Store.
// It's thread-safe.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*run
	next int
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs: make(map[string]*run),
	}
}

// Put stores a report.
func (s *InMemoryStore) Put(r bench.WindowReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rn, exists := s.runs[r.RunID]
	if !exists {
		rn = &run{seq: s.next}
		s.next++
		s.runs[r.RunID] = rn
	}

	i, found := slices.BinarySearchFunc(rn.reports, r.Window, func(e bench.WindowReport, w int) int {
		return e.Window - w
	})
	if found {
		rn.reports[i] = r
		return
	}
	rn.reports = slices.Insert(rn.reports, i, r)
}

// Get retrieves the reports of a run.
func (s *InMemoryStore) Get(runID string) []bench.WindowReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rn, exists := s.runs[runID]
	if !exists {
		return nil
	}
	// Return a copy to avoid external modifications
	return slices.Clone(rn.reports)
}

// Runs summarises every stored run.
func (s *InMemoryStore) Runs() []RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := make([]*run, 0, len(s.runs))
	for _, rn := range s.runs {
		ordered = append(ordered, rn)
	}
	slices.SortFunc(ordered, func(a, b *run) int { return a.seq - b.seq })

	out := make([]RunSummary, 0, len(ordered))
	for _, rn := range ordered {
		out = append(out, summarize(rn.reports))
	}
	return out
}

// summarize folds the windows of one run. reports is never empty.
func summarize(reports []bench.WindowReport) RunSummary {
	first := reports[0]
	sum := RunSummary{
		RunID:    first.RunID,
		Path:     first.Path,
		Elements: first.Elements,
		Windows:  len(reports),
		MinMs:    first.MinMs,
		MaxMs:    first.MaxMs,
	}

	var total float64
	for _, r := range reports {
		sum.Samples += r.Samples
		total += r.MeanMs * float64(r.Samples)
		sum.MinMs = min(sum.MinMs, r.MinMs)
		sum.MaxMs = max(sum.MaxMs, r.MaxMs)
	}
	if sum.Samples > 0 {
		sum.MeanMs = total / float64(sum.Samples)
	}
	sum.ElementsPerSecond = bench.WindowReport{Elements: sum.Elements, MeanMs: sum.MeanMs}.ElementsPerSecond()
	return sum
}
