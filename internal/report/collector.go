package report

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Collector implements CollectorServer on top of a Store.
type Collector struct {
	store  Store
	logger *zap.Logger
}

// NewCollector creates a collector writing into store.
func NewCollector(store Store, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{store: store, logger: logger}
}

// Publish stores one window report. Malformed reports are rejected with
// InvalidArgument.
func (c *Collector) Publish(_ context.Context, msg *structpb.Struct) (*emptypb.Empty, error) {
	r, err := decodeReport(msg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	c.store.Put(r)
	c.logger.Debug("Stored window report",
		zap.String("run_id", r.RunID),
		zap.Int("window", r.Window),
		zap.Float64("mean_ms", r.MeanMs),
	)
	return &emptypb.Empty{}, nil
}
