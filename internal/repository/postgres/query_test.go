package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/deception-core/internal/domain"
)

func TestBuildTransitionQuery_StatusOnly(t *testing.T) {
	query, args := buildTransitionQuery("hp-1", domain.StatusRunning, domain.StatusStopping, nil)

	assert.Contains(t, query, "deployment_status = $3")
	assert.Contains(t, query, "WHERE id = $1 AND deployment_status = $2")
	assert.NotContains(t, query, "container_id =")
	assert.Equal(t, []any{"hp-1", "running", "stopping"}, args)
}

func TestBuildTransitionQuery_Patch(t *testing.T) {
	cid := "honeypot_hp-1_abc"
	active := true
	cpu := "2"

	query, args := buildTransitionQuery("hp-1", domain.StatusStarting, domain.StatusRunning, &domain.HoneypotPatch{
		ContainerID:    &cid,
		Active:         &active,
		ResourceLimits: &domain.ResourceLimits{CPU: &cpu},
	})

	assert.Contains(t, query, "container_id = $4")
	assert.Contains(t, query, "is_active = $5")
	assert.Contains(t, query, "resource_limits = $6")
	require.Len(t, args, 6)
	assert.Equal(t, cid, args[3])
	assert.Equal(t, true, args[4])
	assert.Equal(t, domain.ResourceLimits{CPU: &cpu}, args[5])
}

func TestBuildTransitionQuery_ClearContainerWins(t *testing.T) {
	cid := "ignored"
	query, args := buildTransitionQuery("hp-1", domain.StatusStopping, domain.StatusStopped, &domain.HoneypotPatch{
		ContainerID:    &cid,
		ClearContainer: true,
	})

	assert.Contains(t, query, "container_id = NULL")
	assert.Len(t, args, 3)
}

func TestBuildActivityInsert(t *testing.T) {
	now := time.Now().UTC()
	entries := []domain.ActivityLogEntry{
		{ID: "a1", ActorID: "admin", Action: domain.ActivityHoneypotDeployed, ResourceType: domain.ResourceHoneypotServices, ResourceID: "hp-1", Timestamp: now},
		{ID: "a2", Action: domain.ActivityHoneypotStopped, ResourceType: domain.ResourceHoneypotServices, ResourceID: "hp-1", Timestamp: now},
	}

	query, vals := buildActivityInsert(entries)

	assert.Equal(t, 1, strings.Count(query, "INSERT INTO"))
	assert.Contains(t, query, "($1, $2, $3, $4, $5, $6, $7), ($8, $9, $10, $11, $12, $13, $14)")
	require.Len(t, vals, 2*activityFields)

	// пустой актор пишется как NULL, пустые детали - как {}
	assert.Equal(t, "admin", *(vals[1].(*string)))
	assert.Nil(t, vals[activityFields+1].(*string))
	assert.Equal(t, map[string]any{}, vals[activityFields+5])
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolation})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}
