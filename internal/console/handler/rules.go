package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// RefreshFunc рассылает роутерам сигнал перечитать правила.
type RefreshFunc func(ctx context.Context) error

type RulesHandler struct {
	refresh RefreshFunc
	logger  *zap.Logger
}

// NewRulesHandler - refresh может быть nil, если Redis не подключен.
func NewRulesHandler(refresh RefreshFunc, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{refresh: refresh, logger: logger}
}

// Refresh - POST /v1/rules/refresh
func (h *RulesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.refresh == nil {
		writeError(w, http.StatusServiceUnavailable, "rules refresh channel is not configured")
		return
	}
	if err := h.refresh(r.Context()); err != nil {
		h.logger.Error("failed to publish rules refresh", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
