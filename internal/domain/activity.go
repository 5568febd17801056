package domain

import "time"

const (
	ActivityHoneypotDeployed = "honeypot_deployed"
	ActivityHoneypotStopped  = "honeypot_stopped"
	ActivityHoneypotScaled   = "honeypot_scaled"

	ResourceHoneypotServices = "honeypot_services"
)

// ActivityLogEntry - запись аудита административного действия. Только добавляется.
type ActivityLogEntry struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"user_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Details      map[string]any `json:"details"`
	Timestamp    time.Time      `json:"timestamp"`
}
