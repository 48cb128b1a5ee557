/*
Package main runs the market-data recorder service.

The recorder connects to the configured WebSocket feeds, records every tick of
the tick-subscribed instruments, and folds the bar-subscribed instruments into
one-minute bars. It serves gRPC health checks and Prometheus metrics, and
flushes every in-progress bar on shutdown.

Usage:

	go run ./cmd/recorder -config=config.yaml
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"datarecorder/internal/app"
	"datarecorder/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

var configPath = flag.String("config", "config.yaml", "Path to the service configuration")

func main() {
	flag.Parse()
	os.Exit(run())
}

// run returns the process exit code. Startup failures are fatal; a recorder
// whose feeds all stop exits non-zero after flushing.
func run() int {
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("failed to load configuration")
	}
	app.SetupLogging(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectors, err := app.WebsocketConnectors(cfg.Feeds)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid feed configuration")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rec, err := app.Build(ctx, cfg, connectors, app.Options{Registerer: reg})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure recorder")
	}
	defer func() {
		if err := rec.Store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close storage")
		}
	}()

	// Connect the feeds before reporting healthy
	if rec.Engine.Enabled() {
		if err := rec.Service.Start(ctx); err != nil {
			log.Error().Err(err).Msg("failed to start recorder")
			return 1
		}
	} else {
		log.Info().Msg("recording disabled")
	}

	healthServer, grpcServer := serveHealth(cfg.Health)
	metricsServer := serveMetrics(cfg.Metrics, reg)
	if healthServer != nil {
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	}

	// Done is nil while recording is disabled, leaving only the signal
	exitCode := 0
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("initiating graceful shutdown")
	case <-rec.Service.Done():
		log.Error().Msg("all feeds stopped, shutting down")
		exitCode = 1
	}

	if healthServer != nil {
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		healthServer.Shutdown()
	}
	if rec.Engine.Enabled() {
		if err := rec.Service.Stop(); err != nil {
			log.Error().Err(err).Msg("recorder stopped with errors")
			exitCode = 1
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if metricsServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
	return exitCode
}

// serveHealth starts a gRPC server exposing only the health service. An empty
// addr disables it.
func serveHealth(addr string) (*health.Server, *grpc.Server) {
	if addr == "" {
		return nil, nil
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", addr).Msg("failed to listen")
	}

	s := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              20 * time.Second,
			Timeout:           10 * time.Second,
		}),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	go func() {
		if err := s.Serve(lis); err != nil {
			log.Error().Err(err).Msg("health server stopped")
		}
	}()

	log.Info().Str("addr", addr).Msg("health server listening")
	return healthServer, s
}

// serveMetrics exposes reg on /metrics. An empty addr disables it.
func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	log.Info().Str("addr", addr).Msg("metrics server listening")
	return srv
}
