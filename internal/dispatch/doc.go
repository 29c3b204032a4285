// Package dispatch runs the last-writer-wins merge on a compute device.
//
// A Dispatcher is built once per device: it compiles the merge kernel and
// keeps a pool of buffer sets. Each Merge call uploads both replicas,
// dispatches one invocation per register, copies the outputs into staging
// buffers and blocks until both are mapped for reading. Failures are
// reported as *Error values that carry the failing phase.
package dispatch
