package domain

import "time"

// Classification - три уровня вердикта по трафику.
type Classification string

const (
	ClassLegitimate Classification = "legitimate"
	ClassSuspicious Classification = "suspicious"
	ClassMalicious  Classification = "malicious"
)

// TrafficObservation - входное наблюдение, живет только в рамках одного запроса.
type TrafficObservation struct {
	SourceIP       string            `json:"source_ip"`
	UserAgent      string            `json:"user_agent,omitempty"`
	DestinationURL string            `json:"destination_url"`
	Headers        map[string]string `json:"request_headers,omitempty"`
	Method         string            `json:"request_method,omitempty"`
}

// RoutingDecision - неизменяемая запись о решении. Пишется один раз, никогда не обновляется.
type RoutingDecision struct {
	ID             string            `json:"id"`
	TraceID        string            `json:"trace_id"`
	SourceIP       string            `json:"source_ip"`
	DestinationURL string            `json:"destination_url"`
	Classification Classification    `json:"routing_decision"`
	Confidence     float64           `json:"confidence_score"`
	RedirectURL    *string           `json:"redirect_url"`
	RiskScore      int               `json:"risk_score"`
	RiskIndicators []string          `json:"risk_indicators"`
	UserAgent      string            `json:"user_agent,omitempty"`
	Method         string            `json:"request_method,omitempty"`
	Headers        map[string]string `json:"request_headers,omitempty"`
	GeoLocation    map[string]string `json:"geo_location"`
	ProcessingMs   int64             `json:"processing_time_ms"`
	Timestamp      time.Time         `json:"timestamp"`
}

// PredictionRecord сохраняет признаки и вывод эвристики для последующего обучения моделей.
type PredictionRecord struct {
	ID             string         `json:"id"`
	DecisionID     string         `json:"decision_id"`
	ModelName      string         `json:"model_name"`
	ModelVersion   string         `json:"model_version"`
	PredictionType string         `json:"prediction_type"`
	Features       map[string]any `json:"features"`
	Prediction     map[string]any `json:"prediction"`
	Confidence     float64        `json:"confidence_score"`
	Timestamp      time.Time      `json:"timestamp"`
}
