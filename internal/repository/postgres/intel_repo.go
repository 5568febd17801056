package postgres

/*
Чтения Data Plane: правила маршрутизации, threat-intel и активные декои.
Ядро только читает эти таблицы, владеет ими консоль/импорт.
*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/deception-core/internal/domain"
	"github.com/xela07ax/deception-core/internal/rules"
)

// ActiveRules отдает активные правила. Порядок задается в rules.Sort, не здесь.
func (s *Store) ActiveRules(ctx context.Context) ([]domain.RoutingRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, rule_name, conditions, action, priority, is_active
		 FROM routing_rules WHERE is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query routing rules: %w", err)
	}
	defer rows.Close()

	results := make([]domain.RoutingRule, 0)
	for rows.Next() {
		var (
			r          domain.RoutingRule
			conditions []byte
			action     string
		)
		if err := rows.Scan(&r.ID, &r.Name, &conditions, &action, &r.Priority, &r.Active); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan routing rule: %w", err)
		}
		r.Action = domain.RuleAction(action)
		r.Condition = rules.ParseCondition(conditions)
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) LookupIndicator(ctx context.Context, indicatorType, value string) (domain.ThreatIndicator, bool, error) {
	var ind domain.ThreatIndicator
	err := s.pool.QueryRow(ctx,
		`SELECT indicator_type, indicator_value, confidence, tags
		 FROM threat_intelligence WHERE indicator_type = $1 AND indicator_value = $2`,
		indicatorType, value,
	).Scan(&ind.Type, &ind.Value, &ind.Confidence, &ind.Tags)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ThreatIndicator{}, false, nil
		}
		return domain.ThreatIndicator{}, false, fmt.Errorf("postgres: failed to lookup indicator: %w", err)
	}
	return ind, true, nil
}

func (s *Store) ActiveDecoys(ctx context.Context) ([]domain.DecoyDestination, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, url, category, is_active, interaction_level, updated_at
		 FROM decoy_destinations WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query decoys: %w", err)
	}
	defer rows.Close()

	results := make([]domain.DecoyDestination, 0)
	for rows.Next() {
		var d domain.DecoyDestination
		if err := rows.Scan(&d.ID, &d.Name, &d.URL, &d.Category, &d.Active, &d.InteractionLevel, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan decoy: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}
