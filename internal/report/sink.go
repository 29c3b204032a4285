package report

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"lwwmerge/internal/bench"
)

// DefaultPublishTimeout bounds a single Publish call.
const DefaultPublishTimeout = 5 * time.Second

// GRPCSink publishes window reports to a remote collector.
type GRPCSink struct {
	client  CollectorClient
	conn    *grpc.ClientConn
	timeout time.Duration
}

// Dial creates a sink connected to the collector at addr. The connection is
// established lazily on the first report.
func Dial(addr string, timeout time.Duration) (*GRPCSink, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	s := NewGRPCSink(conn, timeout)
	s.conn = conn
	return s, nil
}

// NewGRPCSink creates a sink over an existing connection, which the caller
// keeps ownership of.
func NewGRPCSink(cc grpc.ClientConnInterface, timeout time.Duration) *GRPCSink {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &GRPCSink{
		client:  NewCollectorClient(cc),
		timeout: timeout,
	}
}

// Report publishes r.
func (s *GRPCSink) Report(ctx context.Context, r bench.WindowReport) error {
	msg, err := encodeReport(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.client.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish window %d: %w", r.Window, err)
	}
	return nil
}

// Close closes the connection if the sink created it.
func (s *GRPCSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
