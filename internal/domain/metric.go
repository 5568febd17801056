package domain

import "time"

// Типы и имена сырых метрик. Окна и скользящие средние считаются снаружи.
const (
	MetricTypeClassification = "classification"
	MetricTypePerformance    = "performance"

	MetricNameConfidence = "avg_confidence_score"
)

type MetricSample struct {
	ID        string    `json:"id"`
	Type      string    `json:"metric_type"`
	Name      string    `json:"metric_name"`
	Value     float64   `json:"metric_value"`
	Window    string    `json:"time_window,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClassificationCounterName - имя счетчика для класса, например "malicious_count".
func ClassificationCounterName(c Classification) string {
	return string(c) + "_count"
}
