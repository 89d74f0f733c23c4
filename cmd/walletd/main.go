package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/juhanncheong/wallet-backend-sub000/internal/config"
	"github.com/juhanncheong/wallet-backend-sub000/internal/engine"
	"github.com/juhanncheong/wallet-backend-sub000/internal/funding"
	"github.com/juhanncheong/wallet-backend-sub000/internal/handlers"
	"github.com/juhanncheong/wallet-backend-sub000/internal/ledger"
	"github.com/juhanncheong/wallet-backend-sub000/internal/markets"
	"github.com/juhanncheong/wallet-backend-sub000/internal/oracle"
	"github.com/juhanncheong/wallet-backend-sub000/internal/orders"
	"github.com/juhanncheong/wallet-backend-sub000/internal/pool"
	"github.com/juhanncheong/wallet-backend-sub000/internal/rewards"
	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
	"github.com/juhanncheong/wallet-backend-sub000/libs/health"
	"github.com/juhanncheong/wallet-backend-sub000/libs/httpmiddleware"
	"github.com/juhanncheong/wallet-backend-sub000/libs/kafka"
	"github.com/juhanncheong/wallet-backend-sub000/libs/logging"
	"github.com/juhanncheong/wallet-backend-sub000/libs/metrics"
	"github.com/juhanncheong/wallet-backend-sub000/libs/trace"
)

const tickerPrefix = "ticker:"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	ledgerMetrics := ledger.NewMetrics(registry)
	orderMetrics := orders.NewMetrics(registry)
	engineMetrics := engine.NewMetrics(registry)
	poolMetrics := pool.NewMetrics(registry)
	rewardMetrics := rewards.NewMetrics(registry)
	kafkaMetrics := kafka.NewProducerMetrics(registry)

	ready := health.NewManager(false)

	dbPool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	store := storage.New(dbPool, logger)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafkaMetrics)
	if err != nil {
		logger.Error("kafka producer init failed", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	publisher := kafka.Publisher(producer)
	if strings.TrimSpace(cfg.Kafka.Topics.DeadLetter) != "" {
		publisher = kafka.NewDLQPublisher(producer, producer, cfg.Kafka.Topics.DeadLetter, logger)
	}

	consumerGroup, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, logger)
	if err != nil {
		logger.Error("kafka consumer init failed", "error", err)
		os.Exit(1)
	}
	consumerGroup.WithDLQ(producer, cfg.Kafka.Topics.DeadLetter)
	defer consumerGroup.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	marketCache := markets.NewCache()
	if err := marketCache.Load(runCtx, store); err != nil {
		logger.Error("market cache load failed", "error", err)
		os.Exit(1)
	}
	go marketCache.RefreshLoop(runCtx, store, cfg.Markets.RefreshInterval, logger)

	overrideSource := oracle.NewOverrideSource(store, time.Now().UnixNano(), logger)
	marketSource := oracle.NewRedisSource(redisClient, cfg.Oracle.MaxPriceAge, tickerPrefix)
	priceOracle := oracle.New(overrideSource, marketSource, cfg.Oracle.Timeout, logger)

	ledgerService := ledger.NewService(store, logger, ledgerMetrics)
	orderService := orders.NewService(store, marketCache, priceOracle, publisher, orders.Topics{
		OrdersAccepted:  cfg.Kafka.Topics.OrdersAccepted,
		OrdersCancelled: cfg.Kafka.Topics.OrdersCancelled,
	}, cfg.Markets.SettlementAsset, logger, orderMetrics)
	rewardService := rewards.NewService(store, publisher, cfg.Kafka.Topics.RewardsRedeemed, logger, rewardMetrics)
	allocator := pool.NewAllocator(store, cfg.Signup.Networks, logger, poolMetrics)

	matchEngine := engine.New(store, priceOracle, publisher, cfg.Kafka.Topics.TradesSettled, engine.Config{
		TickInterval:  cfg.Engine.TickInterval,
		BatchSize:     cfg.Engine.BatchSize,
		SettleTimeout: cfg.Engine.SettleTimeout,
	}, logger, engineMetrics)

	fundingConsumer := funding.NewConsumer(ledgerService, logger)

	reconcileLocks(ledgerService, logger)

	handler := handlers.New(orderService, ledgerService, allocator, rewardService, store, logger)
	httpServer := buildHTTPServer(cfg, ready, registry, handler, logger)

	ready.SetReady(true)

	go matchEngine.Run(runCtx)

	go func() {
		topics := []string{cfg.Kafka.Topics.DepositsConfirmed, cfg.Kafka.Topics.WithdrawalsDecided}
		logger.Info("funding consumer starting", "topics", topics)
		if err := consumerGroup.Consume(runCtx, topics, fundingConsumer); err != nil {
			logger.Error("kafka consumer error", "error", err)
		}
	}()

	go observePoolDepth(runCtx, allocator, logger)

	go func() {
		logger.Info("wallet http starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	waitForShutdown(httpServer, ready, cancel, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.DB.User,
		cfg.DB.Password,
		cfg.DB.Host,
		cfg.DB.Port,
		cfg.DB.Name,
		cfg.DB.SSLMode,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dbPool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}
	if err := dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return nil, err
	}
	return dbPool, nil
}

func reconcileLocks(ledgerService *ledger.Service, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	discrepancies, err := ledgerService.ReconcileLocks(ctx)
	if err != nil {
		logger.Error("startup lock reconcile failed", "error", err)
		return
	}
	logger.Info("startup lock reconcile complete", "discrepancies", len(discrepancies))
}

func observePoolDepth(ctx context.Context, allocator *pool.Allocator, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := allocator.ObserveDepth(ctx); err != nil {
				logger.Warn("pool depth observe failed", "error", err)
			}
		}
	}
}

func buildHTTPServer(cfg *config.Config, ready *health.Manager, registry *prometheus.Registry, handler *handlers.Handler, logger *slog.Logger) *http.Server {
	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	handler.Register(router, []byte(cfg.Auth.JWTSecret), cfg.Auth.InternalToken)

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}
}

func waitForShutdown(httpServer *http.Server, ready *health.Manager, cancel context.CancelFunc, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
