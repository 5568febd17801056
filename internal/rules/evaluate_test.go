package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/deception-core/internal/domain"
)

func TestParseCondition(t *testing.T) {
	cond := ParseCondition([]byte(`{"user_agent_pattern":"sqlmap","risk_score":{"gt":40}}`))
	assert.Equal(t, "sqlmap", cond.UserAgentPattern)
	if assert.NotNil(t, cond.RiskScore) {
		assert.Equal(t, 40, cond.RiskScore.GT)
	}
	assert.False(t, cond.Invalid)

	assert.True(t, ParseCondition([]byte(`{not json`)).Invalid)
	assert.Equal(t, domain.RuleCondition{}, ParseCondition(nil))
}

func TestEvaluate(t *testing.T) {
	obs := domain.TrafficObservation{SourceIP: "10.0.0.1", UserAgent: "sqlmap/1.7", DestinationURL: "http://x/"}

	tests := []struct {
		name  string
		cond  domain.RuleCondition
		score int
		want  bool
	}{
		{"user agent contains", domain.RuleCondition{UserAgentPattern: "sqlmap"}, 0, true},
		{"user agent is case sensitive", domain.RuleCondition{UserAgentPattern: "SQLMAP"}, 0, false},
		{"score above threshold", domain.RuleCondition{RiskScore: &domain.ScoreThreshold{GT: 30}}, 31, true},
		{"score equal to threshold", domain.RuleCondition{RiskScore: &domain.ScoreThreshold{GT: 30}}, 30, false},
		{"zero threshold is unset", domain.RuleCondition{RiskScore: &domain.ScoreThreshold{GT: 0}}, 100, false},
		{"zero threshold falls through to user agent", domain.RuleCondition{RiskScore: &domain.ScoreThreshold{GT: 0}, UserAgentPattern: "sqlmap"}, 100, true},
		{"threshold miss falls through to user agent", domain.RuleCondition{RiskScore: &domain.ScoreThreshold{GT: 90}, UserAgentPattern: "sqlmap"}, 10, true},
		{"ip reputation never matches", domain.RuleCondition{IPReputation: "malicious", UserAgentPattern: "sqlmap"}, 100, false},
		{"empty condition", domain.RuleCondition{}, 100, false},
		{"invalid condition", domain.RuleCondition{Invalid: true, UserAgentPattern: "sqlmap"}, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.cond, obs, tt.score))
		})
	}
}

func TestEvaluate_NoUserAgent(t *testing.T) {
	obs := domain.TrafficObservation{SourceIP: "10.0.0.1", DestinationURL: "http://x/"}
	assert.False(t, Evaluate(domain.RuleCondition{UserAgentPattern: "curl"}, obs, 0))
}

func TestSort_PriorityDescThenID(t *testing.T) {
	in := []domain.RoutingRule{
		{ID: "c", Priority: 5},
		{ID: "b", Priority: 10},
		{ID: "a", Priority: 5},
		{ID: "d", Priority: 10},
	}
	out := Sort(in)

	ids := make([]string, 0, len(out))
	for _, r := range out {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
	// вход не переупорядочен
	assert.Equal(t, "c", in[0].ID)
}

func TestFirstMatch(t *testing.T) {
	obs := domain.TrafficObservation{UserAgent: "curl/8"}
	rulesList := []domain.RoutingRule{
		{ID: "low", Name: "low", Priority: 1, Active: true, Action: domain.ActionBlock, Condition: domain.RuleCondition{UserAgentPattern: "curl"}},
		{ID: "inactive", Name: "inactive", Priority: 100, Active: false, Action: domain.ActionBlock, Condition: domain.RuleCondition{UserAgentPattern: "curl"}},
		{ID: "high", Name: "high", Priority: 50, Active: true, Action: domain.ActionAllow, Condition: domain.RuleCondition{UserAgentPattern: "curl"}},
	}

	r, ok := FirstMatch(rulesList, obs, 0)
	assert.True(t, ok)
	assert.Equal(t, "high", r.ID)

	_, ok = FirstMatch(rulesList, domain.TrafficObservation{UserAgent: "Mozilla"}, 0)
	assert.False(t, ok)
}
