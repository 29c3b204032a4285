package report

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

// Server runs the Collector gRPC service and the HTTP view over one store.
type Server struct {
	logger     *zap.Logger
	grpcServer *grpc.Server
	httpServer *http.Server
}

// NewServer creates a server backed by store.
func NewServer(store Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	grpcServer := grpc.NewServer()
	RegisterCollectorServer(grpcServer, NewCollector(store, logger))

	return &Server{
		logger:     logger,
		grpcServer: grpcServer,
		httpServer: &http.Server{
			Handler:           NewHandler(store),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Serve accepts gRPC connections on grpcLis and HTTP connections on httpLis
// until ctx is done or either server fails, then stops both.
func (s *Server) Serve(ctx context.Context, grpcLis, httpLis net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Serving collector", zap.String("grpc_addr", grpcLis.Addr().String()))
		if err := s.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.logger.Info("Serving report view", zap.String("http_addr", httpLis.Addr().String()))
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Stopping collector")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.grpcServer.GracefulStop()
		return err
	})

	return g.Wait()
}
