package lww

import (
	"errors"
	"fmt"
)

const (
	// DefaultBufferBytes is the byte size of one register field array in the
	// reference configuration.
	DefaultBufferBytes = 4 << 20
	// DefaultElements is the number of registers per replica (4 MiB of u32).
	DefaultElements = DefaultBufferBytes / 4
)

var (
	ErrEmptyPair      = errors.New("register array pair is empty")
	ErrLengthMismatch = errors.New("register arrays have different lengths")
)

// ArrayPair holds the sequence and value arrays of two replicas, A and B.
// Position i in every array belongs to the same logical register.
type ArrayPair struct {
	SeqA []uint32
	ValA []uint32
	SeqB []uint32
	ValB []uint32
}

// NewArrayPair allocates a zeroed pair of n registers per replica.
func NewArrayPair(n int) ArrayPair {
	return ArrayPair{
		SeqA: make([]uint32, n),
		ValA: make([]uint32, n),
		SeqB: make([]uint32, n),
		ValB: make([]uint32, n),
	}
}

// Len returns the number of registers per replica.
// Only meaningful after Validate succeeds.
func (p ArrayPair) Len() int {
	return len(p.SeqA)
}

// Validate checks that all four arrays are non-empty and of equal length.
func (p ArrayPair) Validate() error {
	n := len(p.SeqA)
	if n == 0 {
		return ErrEmptyPair
	}
	if len(p.ValA) != n || len(p.SeqB) != n || len(p.ValB) != n {
		return fmt.Errorf("%w: seqA=%d valA=%d seqB=%d valB=%d",
			ErrLengthMismatch, n, len(p.ValA), len(p.SeqB), len(p.ValB))
	}
	return nil
}

// A returns replica A's register at position i.
func (p ArrayPair) A(i int) Register {
	return Register{Seq: p.SeqA[i], Val: p.ValA[i]}
}

// B returns replica B's register at position i.
func (p ArrayPair) B(i int) Register {
	return Register{Seq: p.SeqB[i], Val: p.ValB[i]}
}

// Merged is the output of one merge call, positionally aligned with the
// input pair.
type Merged struct {
	Seq []uint32
	Val []uint32
}

// NewMerged allocates a zeroed output of n registers.
func NewMerged(n int) Merged {
	return Merged{
		Seq: make([]uint32, n),
		Val: make([]uint32, n),
	}
}

// Len returns the number of merged registers.
func (m Merged) Len() int {
	return len(m.Seq)
}

// At returns the merged register at position i.
func (m Merged) At(i int) Register {
	return Register{Seq: m.Seq[i], Val: m.Val[i]}
}
