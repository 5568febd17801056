// Package rules содержит общий для ядра механизм правил маршрутизации:
// разбор условий, их вычисление и детерминированный порядок просмотра.
package rules

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/xela07ax/deception-core/internal/domain"
)

const reputationMalicious = "malicious"

// ParseCondition превращает JSON условия из БД в типизированный предикат.
// Битый JSON не ошибка запроса: правило просто никогда не сработает.
func ParseCondition(raw []byte) domain.RuleCondition {
	if len(raw) == 0 {
		return domain.RuleCondition{}
	}
	var cond domain.RuleCondition
	if err := json.Unmarshal(raw, &cond); err != nil {
		return domain.RuleCondition{Invalid: true}
	}
	return cond
}

// Evaluate проверяет условие правила против наблюдения и накопленного риска.
// Неизвестные формы условий дают false.
func Evaluate(cond domain.RuleCondition, obs domain.TrafficObservation, score int) bool {
	if cond.Invalid {
		return false
	}

	// Репутация IP проверяется отдельно через threat-intel, в правилах не срабатывает.
	if cond.IPReputation == reputationMalicious {
		return false
	}

	// Порог 0 считается незаданным: такое условие по риску не срабатывает
	if cond.RiskScore != nil && cond.RiskScore.GT != 0 && score > cond.RiskScore.GT {
		return true
	}

	if cond.UserAgentPattern != "" {
		return obs.UserAgent != "" && strings.Contains(obs.UserAgent, cond.UserAgentPattern)
	}

	return false
}

// Sort упорядочивает правила: приоритет по убыванию, при равенстве ID по возрастанию.
// Порядок выдачи из хранилища не учитывается.
func Sort(rules []domain.RoutingRule) []domain.RoutingRule {
	out := make([]domain.RoutingRule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FirstMatch возвращает первое сработавшее активное правило в порядке Sort.
func FirstMatch(rules []domain.RoutingRule, obs domain.TrafficObservation, score int) (domain.RoutingRule, bool) {
	for _, r := range Sort(rules) {
		if !r.Active {
			continue
		}
		if Evaluate(r.Condition, obs, score) {
			return r, true
		}
	}
	return domain.RoutingRule{}, false
}
