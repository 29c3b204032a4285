// Package lww provides the last-writer-wins register model used by the
// merge engine: registers, replica array pairs, the element-wise merge rule
// and the sequential baseline that applies it in a single loop.
package lww
