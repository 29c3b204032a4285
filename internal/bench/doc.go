// Package bench drives repeated merge calls and reports per-window timing.
//
// A run is R windows of K iterations. Each iteration generates a fresh
// register pair, times one merge call and records the elapsed milliseconds.
// At the end of a window the harness emits a WindowReport to its Sink and
// clears the statistics. Any failing iteration aborts the run; failed calls
// never contribute a sample.
package bench
