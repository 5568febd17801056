package engine

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/deception-core/internal/domain"
	"go.uber.org/zap"
)

// maxObservationBytes ограничивает тело запроса классификации.
const maxObservationBytes = 1 << 20

// RouteResponse - ответ интерфейса classify-and-route.
type RouteResponse struct {
	Success         bool                  `json:"success"`
	RoutingDecision domain.Classification `json:"routing_decision"`
	RedirectURL     *string               `json:"redirect_url"`
	ConfidenceScore float64               `json:"confidence_score"`
	RiskIndicators  []string              `json:"risk_indicators"`
	TraceID         string                `json:"trace_id,omitempty"`
}

// Handler собирает HTTP-периметр роутера.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/route", rt.HandleRoute)

	return r
}

func (rt *Router) HandleRoute(w http.ResponseWriter, r *http.Request) {
	var obs domain.TrafficObservation
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxObservationBytes)).Decode(&obs); err != nil {
		rt.metrics.ErrorTotal.WithLabelValues("invalid_request").Inc()
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision, err := rt.Route(r.Context(), obs)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rt.logger.Error("route failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, RouteResponse{
		Success:         true,
		RoutingDecision: decision.Classification,
		RedirectURL:     decision.RedirectURL,
		ConfidenceScore: decision.Confidence,
		RiskIndicators:  decision.RiskIndicators,
		TraceID:         decision.TraceID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
