package dispatch

import (
	"lwwmerge/internal/device"
	"lwwmerge/internal/lww"
)

// Binding slots of the merge kernel.
const (
	bindingSeqA = iota
	bindingSeqB
	bindingValA
	bindingValB
	bindingOutSeq
	bindingOutVal
)

var mergeLayout = []device.BindingLayout{
	{Binding: bindingSeqA, Type: device.BindingReadOnlyStorage},
	{Binding: bindingSeqB, Type: device.BindingReadOnlyStorage},
	{Binding: bindingValA, Type: device.BindingReadOnlyStorage},
	{Binding: bindingValB, Type: device.BindingReadOnlyStorage},
	{Binding: bindingOutSeq, Type: device.BindingStorage},
	{Binding: bindingOutVal, Type: device.BindingStorage},
}

// mergeKernel returns the per-register merge body for n registers.
// Invocations past n touch nothing.
func mergeKernel(n uint32) device.KernelFunc {
	return func(inv device.Invocation, b *device.Bindings) {
		i := inv.GlobalID
		if i >= n {
			return
		}

		seqA := b.U32(bindingSeqA)[i]
		seqB := b.U32(bindingSeqB)[i]
		valA := b.U32(bindingValA)[i]
		valB := b.U32(bindingValB)[i]

		if lww.Wins(seqA, valA, seqB, valB) {
			b.U32(bindingOutSeq)[i] = seqB
			b.U32(bindingOutVal)[i] = valB
		} else {
			b.U32(bindingOutSeq)[i] = seqA
			b.U32(bindingOutVal)[i] = valA
		}
	}
}
