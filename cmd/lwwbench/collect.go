package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"lwwmerge/internal/report"
)

// collectCmd runs the report collector
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run the report collector",
	Long: `Accepts window reports from "lwwbench run --collector" over gRPC and
serves them as JSON:

  GET /health
  GET /runs
  GET /runs/{runID}`,
	Args: cobra.NoArgs,
	RunE: runCollector,
}

func init() {
	collectCmd.Flags().String("grpc-listen", "", "gRPC listen address (default from config, :7070)")
	collectCmd.Flags().String("http-listen", "", "HTTP listen address (default from config, :7071)")
}

func runCollector(cmd *cobra.Command, args []string) error {
	grpcAddr := cfg.Report.GRPCListen
	if cmd.Flags().Changed("grpc-listen") {
		grpcAddr, _ = cmd.Flags().GetString("grpc-listen")
	}
	httpAddr := cfg.Report.HTTPListen
	if cmd.Flags().Changed("http-listen") {
		httpAddr, _ = cmd.Flags().GetString("http-listen")
	}

	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		grpcLis.Close()
		return fmt.Errorf("failed to listen on %s: %w", httpAddr, err)
	}

	srv := report.NewServer(report.NewInMemoryStore(), logger)
	return srv.Serve(cmd.Context(), grpcLis, httpLis)
}
