package lww

import "context"

// MergeSequential applies the merge rule to every position of the pair in a
// single loop on the calling goroutine.
func MergeSequential(p ArrayPair) (Merged, error) {
	if err := p.Validate(); err != nil {
		return Merged{}, err
	}

	n := p.Len()
	out := NewMerged(n)
	seqA, valA, seqB, valB := p.SeqA, p.ValA, p.SeqB, p.ValB
	for i := 0; i < n; i++ {
		if Wins(seqA[i], valA[i], seqB[i], valB[i]) {
			out.Seq[i] = seqB[i]
			out.Val[i] = valB[i]
		} else {
			out.Seq[i] = seqA[i]
			out.Val[i] = valA[i]
		}
	}
	return out, nil
}

// Sequential is the single-threaded merge path. It serves as the timing floor
// and as the correctness oracle for the accelerated path.
type Sequential struct{}

// Merge runs MergeSequential. The context is not consulted: the loop never
// blocks.
func (Sequential) Merge(_ context.Context, p ArrayPair) (Merged, error) {
	return MergeSequential(p)
}
