package risk

import (
	"math"

	"github.com/xela07ax/deception-core/internal/domain"
)

const (
	maliciousThreshold  = 70
	suspiciousThreshold = 30
)

// Classify переводит балл риска в вердикт и уверенность.
// Разрыв на границах (69 -> 0.99 suspicious, 70 -> 0.70 malicious) сохраняется буквально.
func Classify(score int) (domain.Classification, float64) {
	switch {
	case score >= maliciousThreshold:
		return domain.ClassMalicious, math.Min(0.95, 0.7+float64(score-maliciousThreshold)/100)
	case score >= suspiciousThreshold:
		return domain.ClassSuspicious, 0.6 + float64(score-suspiciousThreshold)/100
	default:
		return domain.ClassLegitimate, math.Max(0.5, 1-float64(score)/100)
	}
}
