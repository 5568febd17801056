package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/xela07ax/deception-core/internal/engine"
	"github.com/xela07ax/deception-core/internal/geo"
	"github.com/xela07ax/deception-core/internal/infra"
	"github.com/xela07ax/deception-core/internal/ledger"
	"github.com/xela07ax/deception-core/internal/repository"
	"github.com/xela07ax/deception-core/internal/risk"
	"github.com/xela07ax/deception-core/internal/routing"
	"github.com/xela07ax/deception-core/internal/rules"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин; SIGTERM отменяет слушателей
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Хранилище и Redis
	store, closeStore, err := repository.Open(appCtx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStore()

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = infra.NewRedisClient(appCtx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("redis init failed", zap.Error(err))
		}
		defer rdb.Close()
	}

	// Без Redis некому прислать сигнал обновления: правила читаются напрямую из хранилища
	var ruleSource risk.RuleSource = store
	if rdb != nil {
		cache := rules.NewCache(store, rdb, logger)
		if err := cache.Refresh(appCtx); err != nil {
			logger.Fatal("rules cache warm-up failed", zap.Error(err))
		}
		go cache.StartListener(appCtx)
		ruleSource = cache
	}

	// 3. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 4. Журнал решений под предохранителем
	guard := ledger.NewGuard(ledger.GuardConfig{
		Name:          "ledger",
		Timeout:       cfg.Engine.WriteTimeout,
		MaxRequests:   cfg.Engine.CBMaxRequests,
		Interval:      cfg.Engine.CBInterval,
		OpenTimeout:   cfg.Engine.CBTimeout,
		MaxFailures:   cfg.Engine.CBFailures,
		RPS:           cfg.Engine.WriteRPS,
		Burst:         cfg.Engine.WriteBurst,
		OnStateChange: metrics.BreakerHook,
	})
	recorder := ledger.New(store, guard, logger, reg)

	// 5. Ядро классификации
	router := engine.NewRouter(
		risk.NewScorer(ruleSource, store, logger),
		routing.NewResolver(cfg.Engine.PreferredDecoyCategories, nil),
		store,
		geo.Noop{},
		recorder,
		metrics,
		engine.RouterConfig{StoreTimeout: cfg.Engine.StoreTimeout},
		logger,
	)

	// 6. Транспорты
	srv := &http.Server{
		Addr:         cfg.Server.RouterAddr,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsSrv := &http.Server{
		Addr:    cfg.Server.MetricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	grpcSrv := grpc.NewServer()
	engine.RegisterTrafficRouterServer(grpcSrv, engine.NewGRPCRouterServer(router))

	go func() {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Fatal("failed to listen gRPC", zap.Error(err))
		}
		logger.Info("router gRPC server started", zap.String("addr", cfg.Server.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("router HTTP server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// 7. Graceful Shutdown
	<-appCtx.Done()
	logger.Info("router stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("router exited properly")
}
