// Package routing выбирает декой для нелегитимного трафика.
package routing

import (
	"math/rand/v2"
	"slices"

	"github.com/xela07ax/deception-core/internal/domain"
)

// DefaultPreferredCategories - категории декоев, которые первыми получают malicious трафик.
var DefaultPreferredCategories = []string{"admin", "financial"}

// Picker возвращает индекс в диапазоне [0, n). Подменяется в тестах.
type Picker func(n int) int

type Resolver struct {
	preferred []string
	pick      Picker
}

func NewResolver(preferred []string, pick Picker) *Resolver {
	if len(preferred) == 0 {
		preferred = DefaultPreferredCategories
	}
	if pick == nil {
		pick = rand.IntN
	}
	return &Resolver{preferred: preferred, pick: pick}
}

// Resolve выбирает URL декоя. Пустой набор кандидатов не ошибка: редиректа просто нет.
func (r *Resolver) Resolve(class domain.Classification, decoys []domain.DecoyDestination) (string, bool) {
	var candidates []domain.DecoyDestination

	switch class {
	case domain.ClassMalicious:
		candidates = r.filter(decoys, func(d domain.DecoyDestination) bool {
			return slices.Contains(r.preferred, d.Category)
		})
		if len(candidates) == 0 {
			candidates = r.filter(decoys, nil)
		}
	case domain.ClassSuspicious:
		candidates = r.filter(decoys, nil)
	default:
		return "", false
	}

	if len(candidates) == 0 {
		return "", false
	}
	return candidates[r.pick(len(candidates))].URL, true
}

// filter оставляет только активные декои, дополнительно прогоняя их через keep.
func (r *Resolver) filter(decoys []domain.DecoyDestination, keep func(domain.DecoyDestination) bool) []domain.DecoyDestination {
	out := make([]domain.DecoyDestination, 0, len(decoys))
	for _, d := range decoys {
		if !d.Active || d.URL == "" {
			continue
		}
		if keep != nil && !keep(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}
