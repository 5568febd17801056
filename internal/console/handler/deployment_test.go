package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/deception-core/internal/domain"
	"github.com/xela07ax/deception-core/internal/infra/auth"
	"github.com/xela07ax/deception-core/internal/orchestrator"
	"github.com/xela07ax/deception-core/internal/repository/memory"
	"go.uber.org/zap/zaptest"
)

type captureTrail struct {
	mu      sync.Mutex
	entries []domain.ActivityLogEntry
}

func (c *captureTrail) Log(e domain.ActivityLogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

type failingExecutor struct{ err error }

func (f failingExecutor) Execute(context.Context, orchestrator.Command) (orchestrator.Result, error) {
	return orchestrator.Result{}, f.err
}

func str(v string) *string { return &v }

func newDeploymentHandler(t *testing.T) (*DeploymentHandler, *memory.Store, *captureTrail) {
	t.Helper()
	store := memory.NewStore()
	store.PutHoneypot(domain.HoneypotService{
		ID:             "hp-1",
		Name:           "web-trap",
		Protocol:       "http",
		Port:           8081,
		ResourceLimits: domain.ResourceLimits{CPU: str("1")},
		Status:         domain.StatusStopped,
	})
	trail := &captureTrail{}
	o := orchestrator.New(store, orchestrator.NewKeyedLocker(), trail, nil, orchestrator.Config{}, zaptest.NewLogger(t))
	return NewDeploymentHandler(o, zaptest.NewLogger(t)), store, trail
}

func postCommand(ctx context.Context, h *DeploymentHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/honeypots/command", strings.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Command(rec, req)
	return rec
}

func TestDeploymentHandler_DeployThenScale(t *testing.T) {
	h, store, _ := newDeploymentHandler(t)
	ctx := context.Background()

	rec := postCommand(ctx, h, `{"honeypot_id":"hp-1","action":"deploy"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var deployed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deployed))
	assert.Equal(t, true, deployed["success"])
	assert.NotEmpty(t, deployed["container_id"])
	assert.NotEmpty(t, deployed["deployment_id"])
	assert.NotEmpty(t, deployed["message"])

	rec = postCommand(ctx, h, `{"honeypot_id":"hp-1","action":"scale","config":{"resource_limits":{"memory":"1Gi"}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var scaled struct {
		Success   bool                  `json:"success"`
		NewLimits domain.ResourceLimits `json:"new_limits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scaled))
	assert.True(t, scaled.Success)
	require.NotNil(t, scaled.NewLimits.CPU)
	require.NotNil(t, scaled.NewLimits.Memory)
	assert.Equal(t, "1", *scaled.NewLimits.CPU)
	assert.Equal(t, "1Gi", *scaled.NewLimits.Memory)

	h1, err := store.GetHoneypot(ctx, "hp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, h1.Status)
}

func TestDeploymentHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"honeypot_id":`, http.StatusBadRequest},
		{"unknown action", `{"honeypot_id":"hp-1","action":"explode"}`, http.StatusBadRequest},
		{"missing id", `{"action":"deploy"}`, http.StatusBadRequest},
		{"unknown honeypot", `{"honeypot_id":"nope","action":"deploy"}`, http.StatusNotFound},
		{"invalid transition", `{"honeypot_id":"hp-1","action":"stop"}`, http.StatusConflict},
		{"scale without limits", `{"honeypot_id":"hp-1","action":"scale"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newDeploymentHandler(t)
			rec := postCommand(context.Background(), h, tt.body)

			assert.Equal(t, tt.want, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestDeploymentHandler_InternalErrorIsOpaque(t *testing.T) {
	h := NewDeploymentHandler(failingExecutor{err: errors.New("db password leaked in message")}, zaptest.NewLogger(t))
	rec := postCommand(context.Background(), h, `{"honeypot_id":"hp-1","action":"deploy"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestDeploymentHandler_ActorFromClaims(t *testing.T) {
	h, _, trail := newDeploymentHandler(t)
	ctx := auth.WithClaims(context.Background(), &domain.CustomClaims{UserID: "operator-7"})

	rec := postCommand(ctx, h, `{"honeypot_id":"hp-1","action":"deploy"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	trail.mu.Lock()
	defer trail.mu.Unlock()
	require.Len(t, trail.entries, 1)
	assert.Equal(t, "operator-7", trail.entries[0].ActorID)
	assert.Equal(t, domain.ActivityHoneypotDeployed, trail.entries[0].Action)
}
