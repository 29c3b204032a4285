package lww

// Register is a single versioned cell. Seq is the version stamp and Val is
// the payload.
type Register struct {
	Seq uint32
	Val uint32
}

// Wins reports whether b replaces a under the last-writer-wins rule:
// a higher sequence always wins, and on equal sequences the higher value wins.
// When both fields are equal a is kept.
func Wins(seqA, valA, seqB, valB uint32) bool {
	return seqB > seqA || (seqB == seqA && valB > valA)
}

// Merge returns the winning register of a and b.
func Merge(a, b Register) Register {
	if Wins(a.Seq, a.Val, b.Seq, b.Val) {
		return b
	}
	return a
}
