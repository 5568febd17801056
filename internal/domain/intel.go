package domain

import "time"

// RuleAction определяет, что делать с трафиком при срабатывании правила
type RuleAction string

const (
	ActionAllow    RuleAction = "allow"
	ActionBlock    RuleAction = "block"
	ActionRedirect RuleAction = "redirect"
)

// Escalates - только block и redirect повышают риск.
func (a RuleAction) Escalates() bool {
	return a == ActionBlock || a == ActionRedirect
}

// ScoreThreshold - предикат "риск больше порога".
type ScoreThreshold struct {
	GT int `json:"gt"`
}

// RuleCondition - типизированный предикат правила маршрутизации.
// Invalid помечает условие, которое не удалось разобрать: такое правило никогда не срабатывает.
type RuleCondition struct {
	UserAgentPattern string          `json:"user_agent_pattern,omitempty"`
	RiskScore        *ScoreThreshold `json:"risk_score,omitempty"`
	IPReputation     string          `json:"ip_reputation,omitempty"`
	Invalid          bool            `json:"-"`
}

// RoutingRule принадлежит хранилищу правил, ядро только читает.
type RoutingRule struct {
	ID        string        `json:"id"`
	Name      string        `json:"rule_name"`
	Condition RuleCondition `json:"conditions"`
	Action    RuleAction    `json:"action"`
	Priority  int           `json:"priority"`
	Active    bool          `json:"is_active"`
}

// ThreatIndicator - запись threat-intel, ключ (Type, Value).
type ThreatIndicator struct {
	Type       string   `json:"indicator_type"`
	Value      string   `json:"indicator_value"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
}

const IndicatorTypeIP = "ip"

// DecoyDestination - адрес-приманка, который подставляется нелегитимному трафику.
type DecoyDestination struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	URL              string    `json:"url"`
	Category         string    `json:"category"`
	Active           bool      `json:"is_active"`
	InteractionLevel string    `json:"interaction_level"`
	UpdatedAt        time.Time `json:"updated_at"`
}
