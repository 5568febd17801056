package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/deception-core/internal/domain"
)

// Количество колонок в таблице user_activity_logs
const activityFields = 7

// AppendActivityLogs пишет пачку записей одним INSERT.
func (s *Store) AppendActivityLogs(ctx context.Context, entries []domain.ActivityLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	query, vals := buildActivityInsert(entries)
	if _, err := s.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to append activity logs: %w", err)
	}
	return nil
}

func buildActivityInsert(entries []domain.ActivityLogEntry) (string, []any) {
	placeholders := make([]string, 0, len(entries))
	vals := make([]any, 0, len(entries)*activityFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range entries {
		p := i * activityFields
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7))

		var actor *string
		if e.ActorID != "" {
			actor = &e.ActorID
		}
		details := e.Details
		if details == nil {
			details = map[string]any{}
		}
		vals = append(vals, e.ID, actor, e.Action, e.ResourceType, e.ResourceID, details, e.Timestamp)
	}

	query := "INSERT INTO user_activity_logs (id, user_id, action, resource_type, resource_id, details, timestamp) VALUES " +
		strings.Join(placeholders, ", ")
	return query, vals
}
