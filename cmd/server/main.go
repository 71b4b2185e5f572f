package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenancy-allocation-service/internal/api"
	"github.com/teresa-solution/tenancy-allocation-service/internal/config"
	"github.com/teresa-solution/tenancy-allocation-service/internal/events"
	"github.com/teresa-solution/tenancy-allocation-service/internal/monitoring"
	"github.com/teresa-solution/tenancy-allocation-service/internal/service"
	"github.com/teresa-solution/tenancy-allocation-service/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg, err := config.Load()
	monitoring.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	st, healthCheck, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	var publisher events.Publisher = events.LogPublisher{}
	if cfg.Redis.Addr != "" {
		redisPublisher := events.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel)
		defer redisPublisher.Close()
		publisher = redisPublisher
		log.Info().Str("addr", cfg.Redis.Addr).Str("channel", cfg.Redis.Channel).Msg("Publishing events to Redis")
	}
	dispatcher := events.NewDispatcher(publisher, cfg.Allocation.EventBuffer, cfg.Allocation.PublishTimeout)

	svc := service.New(st, dispatcher, service.Options{
		DefaultLeaseDays: cfg.Allocation.DefaultLeaseDays,
		OperationTimeout: cfg.Allocation.OperationTimeout,
		AllowReconsider:  cfg.Allocation.AllowReconsider,
	})

	// Initialize metrics
	monitoring.InitMetrics()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if cfg.Allocation.ReconcileInterval > 0 {
		go svc.Reconciler.Run(ctx, cfg.Allocation.ReconcileInterval)
	}

	log.Info().Msgf("Starting Tenancy Allocation Service on port %d", cfg.Server.GRPCPort)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to listen")
	}

	server := grpc.NewServer(grpc.UnaryInterceptor(api.UnaryServerInterceptor()))
	api.RegisterTenancyServiceServer(server, api.NewTenancyServer(svc))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(server)

	go func() {
		log.Info().Msgf("gRPC server listening at %v", lis.Addr())
		if err := server.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("Failed to start gRPC server")
		}
	}()

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: api.NewRouter(svc, api.RouterConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			HealthCheck:    healthCheck,
		}),
	}
	go func() {
		log.Info().Msgf("HTTP API, health checks and metrics started on port %d", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stop()
	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	server.GracefulStop()

	// In-flight operations have finished; flush their events.
	dispatcher.Close()
	log.Info().Msg("Server exiting")
}

func openStore(cfg *config.Config) (store.Store, func() error, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("Using in-memory store; state is lost on restart")
		return store.NewMemory(), nil, nil
	}

	pg, err := store.NewPostgres(cfg.Database.DSN(), store.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.Name).Msg("Connected to database")
	return pg, pg.Ping, nil
}
