package postgres

/*
Состояние ханипотов и записи развертываний. Переходы статуса - только через
compare-and-transition: UPDATE ... WHERE deployment_status = ожидаемый.
*/

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/deception-core/internal/domain"
)

const honeypotColumns = `id, name, protocol, port, interaction_level, resource_limits,
	deployment_status, container_id, is_active, configuration, updated_at`

func scanHoneypot(row pgx.Row) (domain.HoneypotService, error) {
	var (
		h      domain.HoneypotService
		status string
	)
	err := row.Scan(
		&h.ID, &h.Name, &h.Protocol, &h.Port, &h.InteractionLevel, &h.ResourceLimits,
		&status, &h.ContainerID, &h.Active, &h.Configuration, &h.UpdatedAt,
	)
	h.Status = domain.DeploymentStatus(status)
	return h, err
}

func (s *Store) GetHoneypot(ctx context.Context, id string) (domain.HoneypotService, error) {
	h, err := scanHoneypot(s.pool.QueryRow(ctx,
		`SELECT `+honeypotColumns+` FROM honeypot_services WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.HoneypotService{}, fmt.Errorf("%w: honeypot %s", domain.ErrNotFound, id)
		}
		return domain.HoneypotService{}, fmt.Errorf("postgres: failed to get honeypot: %w", err)
	}
	return h, nil
}

// buildTransitionQuery собирает CAS-обновление: $1 - id, $2 - ожидаемый статус, $3 - новый.
func buildTransitionQuery(id string, from, to domain.DeploymentStatus, patch *domain.HoneypotPatch) (string, []any) {
	sets := []string{"deployment_status = $3", "updated_at = NOW()"}
	args := []any{id, string(from), string(to)}

	if patch != nil {
		if patch.ClearContainer {
			sets = append(sets, "container_id = NULL")
		} else if patch.ContainerID != nil {
			args = append(args, *patch.ContainerID)
			sets = append(sets, fmt.Sprintf("container_id = $%d", len(args)))
		}
		if patch.Active != nil {
			args = append(args, *patch.Active)
			sets = append(sets, fmt.Sprintf("is_active = $%d", len(args)))
		}
		if patch.ResourceLimits != nil {
			args = append(args, *patch.ResourceLimits)
			sets = append(sets, fmt.Sprintf("resource_limits = $%d", len(args)))
		}
	}

	query := `UPDATE honeypot_services SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND deployment_status = $2 RETURNING ` + honeypotColumns
	return query, args
}

func (s *Store) TransitionHoneypot(ctx context.Context, id string, from, to domain.DeploymentStatus, patch *domain.HoneypotPatch) (domain.HoneypotService, error) {
	query, args := buildTransitionQuery(id, from, to, patch)

	h, err := scanHoneypot(s.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.HoneypotService{}, fmt.Errorf("postgres: failed to transition honeypot: %w", err)
	}

	// Ни одна строка не обновилась: либо ханипота нет, либо статус уже другой
	var current string
	err = s.pool.QueryRow(ctx, `SELECT deployment_status FROM honeypot_services WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.HoneypotService{}, fmt.Errorf("%w: honeypot %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.HoneypotService{}, fmt.Errorf("postgres: failed to read honeypot status: %w", err)
	}
	return domain.HoneypotService{}, fmt.Errorf("%w: honeypot %s is %s, expected %s", domain.ErrConflict, id, current, from)
}

// InsertDeploymentRecord опирается на частичный уникальный индекс по открытым записям.
func (s *Store) InsertDeploymentRecord(ctx context.Context, rec domain.DeploymentRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO honeypot_deployments (
			id, honeypot_service_id, deployment_type, container_id, container_image,
			deployment_config, health_status, deployed_at, terminated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.HoneypotID, rec.DeploymentType, rec.ContainerID, rec.ContainerImage,
		rec.Config, string(rec.Health), rec.DeployedAt, rec.TerminatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: honeypot %s already has an open deployment", domain.ErrConflict, rec.HoneypotID)
		}
		return fmt.Errorf("postgres: failed to insert deployment record: %w", err)
	}
	return nil
}

const deploymentColumns = `id, honeypot_service_id, deployment_type, container_id, container_image,
	deployment_config, health_status, deployed_at, terminated_at`

func scanDeployment(row pgx.Row) (domain.DeploymentRecord, error) {
	var (
		rec    domain.DeploymentRecord
		health string
	)
	err := row.Scan(
		&rec.ID, &rec.HoneypotID, &rec.DeploymentType, &rec.ContainerID, &rec.ContainerImage,
		&rec.Config, &health, &rec.DeployedAt, &rec.TerminatedAt,
	)
	rec.Health = domain.HealthStatus(health)
	return rec, err
}

func (s *Store) CloseDeploymentRecord(ctx context.Context, honeypotID string, at time.Time, health domain.HealthStatus) (domain.DeploymentRecord, error) {
	rec, err := scanDeployment(s.pool.QueryRow(ctx,
		`UPDATE honeypot_deployments SET terminated_at = $2, health_status = $3
		 WHERE honeypot_service_id = $1 AND terminated_at IS NULL
		 RETURNING `+deploymentColumns,
		honeypotID, at, string(health),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DeploymentRecord{}, fmt.Errorf("%w: no open deployment for honeypot %s", domain.ErrNotFound, honeypotID)
		}
		return domain.DeploymentRecord{}, fmt.Errorf("postgres: failed to close deployment record: %w", err)
	}
	return rec, nil
}

func (s *Store) ListDeploymentRecords(ctx context.Context, honeypotID string) ([]domain.DeploymentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deploymentColumns+` FROM honeypot_deployments
		 WHERE honeypot_service_id = $1 ORDER BY deployed_at DESC LIMIT 100`, honeypotID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query deployments: %w", err)
	}
	defer rows.Close()

	results := make([]domain.DeploymentRecord, 0)
	for rows.Next() {
		rec, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan deployment: %w", err)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}
