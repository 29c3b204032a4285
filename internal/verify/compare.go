package verify

import (
	"errors"
	"fmt"
	"strings"

	"lwwmerge/internal/lww"
)

// DefaultMaxReported bounds the mismatches kept in a Result.
const DefaultMaxReported = 8

var (
	ErrLengthMismatch = errors.New("merged outputs have different lengths")
	ErrMismatch       = errors.New("merged outputs differ")
)

// Mismatch is one position where the two outputs disagree.
type Mismatch struct {
	Index int
	Want  lww.Register
	Got   lww.Register
}

func (m Mismatch) String() string {
	return fmt.Sprintf("[%d] want (%d,%d) got (%d,%d)",
		m.Index, m.Want.Seq, m.Want.Val, m.Got.Seq, m.Got.Val)
}

// Result represents the outcome of comparing two merged outputs.
type Result struct {
	// WantLen and GotLen are the register counts of the two outputs.
	WantLen int
	GotLen  int

	// Count is the number of differing positions over the common length.
	Count int

	// First holds the first differing positions in index order, at most
	// the limit passed to CompareN.
	First []Mismatch
}

// Compare compares want and got, keeping up to DefaultMaxReported
// mismatches.
func Compare(want, got lww.Merged) Result {
	return CompareN(want, got, DefaultMaxReported)
}

// CompareN compares want and got, keeping up to limit mismatches. Positions
// past the shorter output are not counted; the length difference is
// reported by Result.Err instead.
func CompareN(want, got lww.Merged, limit int) Result {
	r := Result{
		WantLen: want.Len(),
		GotLen:  got.Len(),
	}

	n := min(r.WantLen, r.GotLen, len(want.Val), len(got.Val))
	for i := 0; i < n; i++ {
		if want.Seq[i] == got.Seq[i] && want.Val[i] == got.Val[i] {
			continue
		}
		r.Count++
		if len(r.First) < limit {
			r.First = append(r.First, Mismatch{Index: i, Want: want.At(i), Got: got.At(i)})
		}
	}
	return r
}

// Equal returns true if both outputs have the same length and no differing
// positions.
func (r Result) Equal() bool {
	return r.WantLen == r.GotLen && r.Count == 0
}

// Err returns nil when the outputs are equal, otherwise an error wrapping
// ErrLengthMismatch or ErrMismatch.
func (r Result) Err() error {
	if r.WantLen != r.GotLen {
		return fmt.Errorf("%w: want %d registers, got %d", ErrLengthMismatch, r.WantLen, r.GotLen)
	}
	if r.Count == 0 {
		return nil
	}

	parts := make([]string, len(r.First))
	for i, m := range r.First {
		parts[i] = m.String()
	}
	return fmt.Errorf("%w: %d of %d positions, first: %s",
		ErrMismatch, r.Count, r.WantLen, strings.Join(parts, ", "))
}
