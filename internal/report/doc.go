// Package report collects benchmark window reports over gRPC and serves them
// back over HTTP.
//
// The Collector service has a single unary method,
// lwwbench.report.v1.Collector/Publish, taking a google.protobuf.Struct and
// returning google.protobuf.Empty. GRPCSink is the client side and plugs
// into the benchmark harness as a bench.Sink. Reports are kept in memory per
// run; nothing is persisted.
package report
