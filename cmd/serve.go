package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"consortium-core/core"
	"consortium-core/observability"
)

const (
	shutdownTimeout    = 30 * time.Second
	workerMonitorEvery = time.Minute
	workerStaleAfter   = 30 * time.Minute
)

func newServeCmd(app *app) *cobra.Command {
	var (
		port     int
		grpcPort int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve consortium runs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), app, port, grpcPort)
		},
	}

	cmd.Flags().IntVar(&port, "port", app.cfg.HTTPPort, "HTTP listen port")
	cmd.Flags().IntVar(&grpcPort, "grpc-health-port", app.cfg.GRPCHealthPort, "gRPC health service port (0 disables it)")

	return cmd
}

func serve(ctx context.Context, app *app, port, grpcPort int) error {
	logger := observability.Component("Server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	api := core.NewAPIServer(core.APIServerConfig{
		Dispatcher:  app.dispatcher,
		Pool:        app.pool,
		Store:       app.store,
		Templates:   app.templates,
		Defaults:    app.specDefaults(),
		RunTTL:      app.cfg.RunTTL,
		CORSOrigins: app.cfg.CORSOrigins,
	})
	defer api.Close()

	go app.pool.MonitorWorkers(ctx, workerMonitorEvery, workerStaleAfter)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 2)

	var healthServer *health.Server
	var grpcServer *grpc.Server
	if grpcPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
		if err != nil {
			return fmt.Errorf("listen for grpc health: %w", err)
		}
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

		go func() {
			logger.Info().Int("port", grpcPort).Msg("gRPC health service listening")
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc health server: %w", err)
			}
		}()
	}

	go func() {
		logger.Info().Int("port", port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("Server failed, shutting down")
	}

	if healthServer != nil {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
		if serveErr == nil {
			serveErr = err
		}
	}

	return serveErr
}
