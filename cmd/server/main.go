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
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/sweet-shop/internal/adapter/discovery"
	"github.com/rl1809/sweet-shop/internal/adapter/handler"
	"github.com/rl1809/sweet-shop/internal/adapter/messaging"
	"github.com/rl1809/sweet-shop/internal/adapter/storage"
	"github.com/rl1809/sweet-shop/internal/config"
	"github.com/rl1809/sweet-shop/internal/core/service"
	"github.com/rl1809/sweet-shop/internal/observability"
	"github.com/rl1809/sweet-shop/internal/port"
)

const (
	workerCount     = 4
	queueSize       = 1000
	healthInterval  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sweet-shop: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	// Tracing
	tp, shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:   cfg.OTelEndpoint,
		AuthHeader: cfg.OTelAuthHeader,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer closeWithTimeout(logger, "tracing", shutdownTracing)

	// Storage
	stores, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeWithTimeout(logger, "store", stores.Close)

	// Idempotency guard
	var guard port.IdempotencyGuard
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		defer rdb.Close()

		redisAdapter := storage.NewRedisAdapter(rdb)
		if err := redisAdapter.Ping(ctx); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		guard = redisAdapter
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	// Event publishing
	var publisher port.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, observability.ServiceName, tp)
		if err != nil {
			return err
		}
		defer kafkaPublisher.Close()

		dispatcher := messaging.NewDispatcher(kafkaPublisher, workerCount, queueSize, logger)
		defer dispatcher.Close()
		publisher = dispatcher
		logger.Info("publishing events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
			zap.Int("workers", workerCount),
		)
	}

	// Services
	tracer := tp.Tracer(observability.ServiceName)
	tokens := service.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	inventory := service.NewInventoryService(stores.Sweets, guard, publisher, logger, tracer)
	auth := service.NewAuthService(stores.Users, tokens, cfg.AllowAdminSignup, logger)

	// gRPC health server
	grpcServer := grpc.NewServer()
	healthReporter := handler.NewHealthReporter(stores.Sweets, healthInterval, logger)
	healthReporter.Register(grpcServer)

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go healthReporter.Run(healthCtx)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP server
	router := handler.NewRouter(handler.RouterConfig{
		CORSOrigin:     cfg.CORSOrigin,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, handler.Dependencies{
		Inventory: inventory,
		Auth:      auth,
		Tokens:    tokens,
		Store:     stores.Sweets,
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Service discovery
	if cfg.ConsulAddr != "" {
		consul, err := discovery.NewConsulClient(cfg.ConsulAddr)
		if err != nil {
			return err
		}
		hostname, _ := os.Hostname()
		if err := consul.RegisterService(discovery.Registration{
			ServiceID:   cfg.ServiceID,
			ServiceName: observability.ServiceName,
			Host:        hostname,
			Port:        cfg.HTTPPort,
			Tags:        []string{"http", "inventory"},
		}); err != nil {
			logger.Warn("failed to register with consul", zap.Error(err))
		} else {
			logger.Info("registered with consul", zap.String("service_id", cfg.ServiceID))
			defer func() {
				if err := consul.DeregisterService(cfg.ServiceID); err != nil {
					logger.Warn("failed to deregister from consul", zap.Error(err))
				}
			}()
		}
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	stopHealth()
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	return nil
}

func closeWithTimeout(logger *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("shutdown failed", zap.String("component", name), zap.Error(err))
	}
}
