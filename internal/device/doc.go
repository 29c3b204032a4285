// Package device provides a compute device modelled on the WebGPU object
// model: an adapter is requested for a backend, a device is requested from
// the adapter, and work is expressed as buffers, compiled kernels, bind
// groups and command buffers submitted to an in-order queue. Results are read
// back by mapping buffers asynchronously.
//
// The cpu backend executes work-groups on a pool of worker goroutines. Work
// submitted to the queue runs on a dedicated goroutine, so Submit and
// MapAsync return immediately and callers wait on a Future.
//
// Validation errors (bad usage flags, unaligned ranges, buffers still mapped)
// are reported synchronously. A kernel that panics during execution loses the
// device: every later queue operation fails with ErrDeviceLost.
package device
