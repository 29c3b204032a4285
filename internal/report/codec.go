package report

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"lwwmerge/internal/bench"
)

// Struct field names of a published window report.
const (
	fieldRunID    = "run_id"
	fieldWindow   = "window"
	fieldSamples  = "samples"
	fieldMeanMs   = "mean_ms"
	fieldMinMs    = "min_ms"
	fieldMaxMs    = "max_ms"
	fieldElements = "elements_per_call"
	fieldPath     = "path"
)

var ErrInvalidReport = errors.New("invalid window report")

// encodeReport converts r into its wire form.
func encodeReport(r bench.WindowReport) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldRunID:    r.RunID,
		fieldWindow:   r.Window,
		fieldSamples:  r.Samples,
		fieldMeanMs:   r.MeanMs,
		fieldMinMs:    r.MinMs,
		fieldMaxMs:    r.MaxMs,
		fieldElements: r.Elements,
		fieldPath:     string(r.Path),
	})
}

// decodeReport parses and validates a published report. Every field is
// required.
func decodeReport(s *structpb.Struct) (bench.WindowReport, error) {
	if s == nil {
		return bench.WindowReport{}, fmt.Errorf("%w: empty message", ErrInvalidReport)
	}
	d := decoder{fields: s.GetFields()}

	r := bench.WindowReport{
		RunID:    d.str(fieldRunID),
		Window:   d.count(fieldWindow),
		Samples:  d.count(fieldSamples),
		MeanMs:   d.num(fieldMeanMs),
		MinMs:    d.num(fieldMinMs),
		MaxMs:    d.num(fieldMaxMs),
		Elements: d.count(fieldElements),
	}
	path := d.str(fieldPath)
	if d.err != nil {
		return bench.WindowReport{}, d.err
	}

	if r.RunID == "" {
		return bench.WindowReport{}, fmt.Errorf("%w: %s is empty", ErrInvalidReport, fieldRunID)
	}
	p, err := bench.ParsePath(path)
	if err != nil {
		return bench.WindowReport{}, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}
	r.Path = p
	return r, nil
}

// decoder reads typed fields, keeping the first error.
type decoder struct {
	fields map[string]*structpb.Value
	err    error
}

func (d *decoder) value(name string) *structpb.Value {
	if d.err != nil {
		return nil
	}
	v, ok := d.fields[name]
	if !ok {
		d.err = fmt.Errorf("%w: missing %s", ErrInvalidReport, name)
		return nil
	}
	return v
}

func (d *decoder) str(name string) string {
	v := d.value(name)
	if v == nil {
		return ""
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		d.err = fmt.Errorf("%w: %s is not a string", ErrInvalidReport, name)
		return ""
	}
	return s.StringValue
}

func (d *decoder) num(name string) float64 {
	v := d.value(name)
	if v == nil {
		return 0
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || math.IsNaN(n.NumberValue) || n.NumberValue < 0 {
		d.err = fmt.Errorf("%w: %s is not a non-negative number", ErrInvalidReport, name)
		return 0
	}
	return n.NumberValue
}

func (d *decoder) count(name string) int {
	f := d.num(name)
	if d.err != nil {
		return 0
	}
	if f != math.Trunc(f) || f > math.MaxInt32 {
		d.err = fmt.Errorf("%w: %s is not a count", ErrInvalidReport, name)
		return 0
	}
	return int(f)
}
