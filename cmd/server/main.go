package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/record-store/internal/adapter/handler"
	"github.com/rl1809/record-store/internal/adapter/musicbrainz"
	"github.com/rl1809/record-store/internal/adapter/storage"
	"github.com/rl1809/record-store/internal/config"
	"github.com/rl1809/record-store/internal/core/service"
	"github.com/rl1809/record-store/internal/metrics"
	"github.com/rl1809/record-store/internal/port"
)

func main() {
	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	logger, err := config.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to build logger")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	if cfg.MySQL.Migrate {
		version, err := storage.Migrate(cfg.MySQL.DSN)
		if err != nil {
			return err
		}
		logger.Info().Uint("version", version).Msg("schema migrated")
	}

	db, err := storage.OpenMySQL(ctx, cfg.MySQL.DSN, storage.PoolOptions{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info().Msg("connected to mysql")

	// Cache
	cache, closeCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()
	logger.Info().Str("type", cfg.Cache.Type).Msg("cache ready")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Services
	store := storage.NewMySQLAdapter(db)
	tracklists := musicbrainz.New(
		cfg.MusicBrainz.BaseURL,
		cfg.MusicBrainz.AuthorEmail,
		cfg.MusicBrainz.Timeout,
		musicbrainz.RetryPolicy{MaxAttempts: cfg.MusicBrainz.MaxAttempts, BaseDelay: cfg.MusicBrainz.BaseDelay},
		logger,
	)

	txCoordinator := service.NewTxCoordinator(store, logger)
	orderService := service.NewOrderService(txCoordinator, store, cache, m, logger, cfg.Cache.MostOrderedTTL)
	recordService := service.NewRecordService(store, tracklists, cache, m, logger, cfg.Cache.DefaultTTL)
	authService := service.NewAuthService(store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)

	throttler := handler.NewThrottler(cfg.Throttle.Limit, cfg.Throttle.Window)

	// gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.LoggingInterceptor(logger.With().Str("component", "grpc").Logger()),
		handler.ThrottleInterceptor(throttler),
		handler.AuthInterceptor(authService, handler.OrderMethodRoles()),
	))
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orderService, recordService))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.GRPC.Addr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// HTTP server
	httpHandler := handler.NewHTTPHandler(orderService, recordService, authService, m, logger)
	httpServer := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpHandler.Routes(handler.RouterOptions{
			Gatherer:      reg,
			Throttler:     throttler,
			AllowedOrigin: cfg.HTTP.AdminUIURL,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed, shutting down")
	}

	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	logger.Info().Msg("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info().Msg("gRPC server stopped")

	return nil
}

func newCache(ctx context.Context, cfg config.Cache) (port.Cache, func(), error) {
	if cfg.Type == config.CacheRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		return storage.NewRedisCache(rdb, cfg.DefaultTTL), func() { rdb.Close() }, nil
	}

	local, err := storage.NewLocalCache(cfg.LocalSize, cfg.DefaultTTL)
	if err != nil {
		return nil, nil, err
	}
	return local, func() {}, nil
}
