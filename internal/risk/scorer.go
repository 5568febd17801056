// Package risk - эвристическая оценка риска одного наблюдения и перевод балла в вердикт.
package risk

import (
	"context"
	"net/url"
	"strings"

	"github.com/xela07ax/deception-core/internal/domain"
	"github.com/xela07ax/deception-core/internal/rules"
	"go.uber.org/zap"
)

// Веса и метки индикаторов. Порядок меток в Assessment совпадает с порядком проверок.
const (
	weightAutomatedTool = 30
	weightSensitivePath = 40
	weightMaliciousIP   = 50
	weightRuleMatch     = 30

	LabelAutomatedTool = "Automated tool detected"
	LabelSensitivePath = "Sensitive path access"
	LabelMaliciousIP   = "Known malicious IP"
	labelRulePrefix    = "Matched rule: "
)

var toolSignatures = []string{
	"curl",
	"wget",
	"python",
	"bot",
	"httpie",
	"go-http-client",
	"libwww-perl",
}

var sensitivePaths = []string{
	"/admin",
	"/wp-admin",
	"/phpmyadmin",
	"/cpanel",
	"/.env",
	"/config",
}

// RuleSource отдает активные правила маршрутизации. Реализуется rules.Cache.
type RuleSource interface {
	ActiveRules(ctx context.Context) ([]domain.RoutingRule, error)
}

// IndicatorLookup ищет запись threat-intel по ключу (тип, значение).
type IndicatorLookup interface {
	LookupIndicator(ctx context.Context, indicatorType, value string) (domain.ThreatIndicator, bool, error)
}

// Assessment - результат оценки: балл, метки в порядке обнаружения и разобранный путь.
type Assessment struct {
	Score      int
	Indicators []string
	Path       string
}

type Scorer struct {
	rules  RuleSource
	intel  IndicatorLookup
	logger *zap.Logger
}

func NewScorer(rules RuleSource, intel IndicatorLookup, logger *zap.Logger) *Scorer {
	return &Scorer{rules: rules, intel: intel, logger: logger.Named("scorer")}
}

// Score оценивает наблюдение. Ошибки хранилища не прерывают оценку:
// соответствующая проверка просто не добавляет баллов.
func (s *Scorer) Score(ctx context.Context, obs domain.TrafficObservation) Assessment {
	a := Assessment{Indicators: make([]string, 0, 4)}

	// 1. Автоматизированные клиенты
	if IsAutomatedTool(obs.UserAgent) {
		a.add(weightAutomatedTool, LabelAutomatedTool)
	}

	// 2. Чувствительные пути
	a.Path = ExtractPath(obs.DestinationURL)
	if IsSensitivePath(a.Path) {
		a.add(weightSensitivePath, LabelSensitivePath)
	}

	// 3. Threat intel по IP источника
	if s.intel != nil {
		_, found, err := s.intel.LookupIndicator(ctx, domain.IndicatorTypeIP, obs.SourceIP)
		switch {
		case err != nil:
			s.logger.Warn("threat intel lookup failed", zap.String("ip", obs.SourceIP), zap.Error(err))
		case found:
			a.add(weightMaliciousIP, LabelMaliciousIP)
		}
	}

	// 4. Пользовательские правила, первое совпадение останавливает просмотр
	if s.rules != nil {
		active, err := s.rules.ActiveRules(ctx)
		if err != nil {
			s.logger.Warn("routing rules unavailable", zap.Error(err))
			return a
		}
		if rule, ok := rules.FirstMatch(active, obs, a.Score); ok {
			if rule.Action.Escalates() {
				a.add(weightRuleMatch, labelRulePrefix+rule.Name)
			}
			s.logger.Debug("rule matched",
				zap.String("rule_id", rule.ID),
				zap.String("action", string(rule.Action)),
			)
		}
	}

	return a
}

func (a *Assessment) add(weight int, label string) {
	a.Score += weight
	a.Indicators = append(a.Indicators, label)
}

// IsAutomatedTool - регистронезависимый поиск сигнатур инструментов в User-Agent.
func IsAutomatedTool(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	ua := strings.ToLower(userAgent)
	for _, sig := range toolSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

// IsSensitivePath ожидает путь в нижнем регистре (см. ExtractPath).
func IsSensitivePath(path string) bool {
	for _, p := range sensitivePaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// ExtractPath достает путь из URL назначения в нижнем регистре.
// Неразбираемый URL или URL без схемы и хоста дают "/".
func ExtractPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "/"
	}
	if u.Path == "" {
		return "/"
	}
	return strings.ToLower(u.Path)
}
