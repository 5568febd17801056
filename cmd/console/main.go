package main

import (
	"context"
	"errors"
	"log"
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

	"github.com/xela07ax/deception-core/internal/audit"
	"github.com/xela07ax/deception-core/internal/console/handler"
	"github.com/xela07ax/deception-core/internal/console/server"
	"github.com/xela07ax/deception-core/internal/infra"
	"github.com/xela07ax/deception-core/internal/infra/auth"
	"github.com/xela07ax/deception-core/internal/orchestrator"
	"github.com/xela07ax/deception-core/internal/repository"
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

	// 3. Авторизация: без ключа консоль открыта (dev-режим)
	var validator auth.TokenValidator
	if len(cfg.Auth.PublicKey) > 0 {
		pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			logger.Fatal("invalid auth public key", zap.Error(err))
		}
		validator = auth.NewOperatorValidator(pubKey)
	}

	// 4. Журнал действий пишется пачками в фоне
	trail := audit.NewTrail(store, audit.Config{
		BufferSize:    cfg.Orchestrator.AuditBufferSize,
		BatchSize:     cfg.Orchestrator.AuditBatchSize,
		FlushInterval: cfg.Orchestrator.AuditFlushInterval,
	}, logger)
	trail.Start()

	// 5. Оркестратор
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	orchCfg := orchestrator.Config{
		RestartDelay: cfg.Orchestrator.RestartDelay,
		StoreTimeout: cfg.Orchestrator.StoreTimeout,
	}

	var locker orchestrator.Locker = orchestrator.NewKeyedLocker()
	if cfg.Orchestrator.DistributedLock {
		// Аренда не должна истечь посреди restart, иначе вторая консоль начнет свой переход
		ttl := orchestrator.LeaseTTL(orchCfg, cfg.Orchestrator.LockTTL)
		if ttl != cfg.Orchestrator.LockTTL {
			logger.Warn("orchestrator.lock_ttl raised to cover the longest command",
				zap.Duration("configured", cfg.Orchestrator.LockTTL), zap.Duration("effective", ttl))
		}
		locker = orchestrator.NewRedisLocker(rdb, ttl, logger)
	}

	orch := orchestrator.New(store, locker, trail, orchestrator.NewMetrics(reg), orchCfg, logger)

	var refresh handler.RefreshFunc
	if rdb != nil {
		refresh = func(ctx context.Context) error {
			return rules.PublishRefresh(ctx, rdb)
		}
	}

	console := server.NewConsoleServer(logger, validator, cfg.Auth.RequiredScope,
		handler.NewDeploymentHandler(orch, logger),
		handler.NewRulesHandler(refresh, logger),
	)

	// 6. Транспорты
	srv := &http.Server{
		Addr:         cfg.Server.ConsoleAddr,
		Handler:      console,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	metricsSrv := &http.Server{
		Addr:    cfg.Server.ConsoleMetricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// 7. Graceful Shutdown: сначала запросы, потом дописываем журнал
	<-appCtx.Done()
	logger.Info("console stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	trail.Stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("console exited properly")
}
