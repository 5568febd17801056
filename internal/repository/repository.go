// Package repository выбирает реализацию хранилища по конфигурации.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/deception-core/internal/domain"
	"github.com/xela07ax/deception-core/internal/infra"
	"github.com/xela07ax/deception-core/internal/repository/memory"
	"github.com/xela07ax/deception-core/internal/repository/postgres"
	"go.uber.org/zap"
)

// Store - полный набор операций хранилища для роутера и консоли.
type Store interface {
	// Data Plane
	ActiveRules(ctx context.Context) ([]domain.RoutingRule, error)
	LookupIndicator(ctx context.Context, indicatorType, value string) (domain.ThreatIndicator, bool, error)
	ActiveDecoys(ctx context.Context) ([]domain.DecoyDestination, error)
	AppendRoutingDecision(ctx context.Context, d domain.RoutingDecision) error
	AppendMetric(ctx context.Context, m domain.MetricSample) error
	AppendPrediction(ctx context.Context, p domain.PredictionRecord) error

	// Control Plane
	GetHoneypot(ctx context.Context, id string) (domain.HoneypotService, error)
	TransitionHoneypot(ctx context.Context, id string, from, to domain.DeploymentStatus, patch *domain.HoneypotPatch) (domain.HoneypotService, error)
	InsertDeploymentRecord(ctx context.Context, rec domain.DeploymentRecord) error
	CloseDeploymentRecord(ctx context.Context, honeypotID string, at time.Time, health domain.HealthStatus) (domain.DeploymentRecord, error)
	ListDeploymentRecords(ctx context.Context, honeypotID string) ([]domain.DeploymentRecord, error)
	AppendActivityLogs(ctx context.Context, entries []domain.ActivityLogEntry) error
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// Open подключает PostgreSQL, а без database.url отдает in-memory хранилище (dev-режим).
// Возвращаемая функция освобождает ресурсы хранилища.
func Open(ctx context.Context, cfg infra.DatabaseConfig, logger *zap.Logger) (Store, func(), error) {
	if cfg.URL == "" {
		logger.Warn("database.url is empty, using in-memory store")
		return memory.NewStore(), func() {}, nil
	}

	pg, err := postgres.NewStore(ctx, postgres.PoolConfig{
		URL:      cfg.URL,
		MaxConns: cfg.MaxConns,
		MinConns: cfg.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := infra.WaitReady(ctx, "postgres", pg.Ping, logger); err != nil {
		pg.Close()
		return nil, nil, err
	}

	if cfg.Migrate {
		if err := postgres.Migrate(cfg.URL); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	return pg, pg.Close, nil
}
