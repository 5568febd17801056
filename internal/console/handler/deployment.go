package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/deception-core/internal/infra/auth"
	"github.com/xela07ax/deception-core/internal/orchestrator"
	"go.uber.org/zap"
)

const maxCommandBytes = 64 << 10

// CommandExecutor - оркестратор с точки зрения HTTP-слоя.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd orchestrator.Command) (orchestrator.Result, error)
}

type DeploymentHandler struct {
	exec   CommandExecutor
	logger *zap.Logger
}

func NewDeploymentHandler(exec CommandExecutor, logger *zap.Logger) *DeploymentHandler {
	return &DeploymentHandler{exec: exec, logger: logger}
}

// Command - POST /v1/honeypots/command
func (h *DeploymentHandler) Command(w http.ResponseWriter, r *http.Request) {
	var cmd orchestrator.Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBytes)).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	// Оператор из токена попадает в журнал действий
	if actor := auth.ClaimsFromContext(ctx).Actor(); actor != "" {
		ctx = orchestrator.WithActor(ctx, actor)
	}

	res, err := h.exec.Execute(ctx, cmd)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("honeypot command failed",
				zap.String("honeypot_id", cmd.HoneypotID),
				zap.String("action", cmd.Action),
				zap.Error(err),
			)
			writeError(w, status, "internal error")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}
