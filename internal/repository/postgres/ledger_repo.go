package postgres

import (
	"context"
	"fmt"

	"github.com/xela07ax/deception-core/internal/domain"
)

// AppendRoutingDecision - только INSERT, решения никогда не обновляются.
func (s *Store) AppendRoutingDecision(ctx context.Context, d domain.RoutingDecision) error {
	headers := d.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	geo := d.GeoLocation
	if geo == nil {
		geo = map[string]string{}
	}
	indicators := d.RiskIndicators
	if indicators == nil {
		indicators = []string{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO traffic_routing_decisions (
			id, trace_id, source_ip, destination_url, routing_decision, confidence_score,
			redirect_url, risk_score, risk_indicators, user_agent, request_method,
			request_headers, geo_location, processing_time_ms, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, d.TraceID, d.SourceIP, d.DestinationURL, string(d.Classification), d.Confidence,
		d.RedirectURL, d.RiskScore, indicators, d.UserAgent, d.Method,
		headers, geo, d.ProcessingMs, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to append routing decision: %w", err)
	}
	return nil
}

func (s *Store) AppendMetric(ctx context.Context, m domain.MetricSample) error {
	var window *string
	if m.Window != "" {
		window = &m.Window
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO real_time_metrics (id, metric_type, metric_name, metric_value, time_window, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.Type, m.Name, m.Value, window, m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to append metric: %w", err)
	}
	return nil
}

func (s *Store) AppendPrediction(ctx context.Context, p domain.PredictionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_model_predictions (
			id, decision_id, model_name, model_version, prediction_type,
			input_features, prediction, confidence_score, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.DecisionID, p.ModelName, p.ModelVersion, p.PredictionType,
		p.Features, p.Prediction, p.Confidence, p.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to append prediction: %w", err)
	}
	return nil
}
