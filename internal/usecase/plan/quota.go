package plan

import (
	"context"
	"fmt"
	"sort"

	"posting-scheduler/internal/domain"
)

// QuotaResolver выбирает бренд категории по месячным квотам.
type QuotaResolver struct {
	source domain.QuotaSource
}

// NewQuotaResolver создаёт резолвер.
func NewQuotaResolver(source domain.QuotaSource) *QuotaResolver {
	return &QuotaResolver{source: source}
}

// SelectBrand возвращает следующий бренд. Вес кандидата — остаток квоты за
// месяц с учётом уже опубликованного и запланированного в этом запуске.
// Если все веса нулевые, работает round robin от последнего использованного
// бренда. Ошибка источника квот фатальна: планировать по устаревшим данным
// нельзя.
func (r *QuotaResolver) SelectBrand(ctx context.Context, category domain.Key, month string, candidates []domain.Key, quotas map[domain.Key]int, planned map[domain.Key]int, last domain.Key) (domain.Key, error) {
	if len(candidates) == 0 {
		return domain.Key{}, fmt.Errorf("выбор бренда: нет кандидатов в категории %s", category)
	}

	published, err := r.source.MonthlyCounts(ctx, category, month)
	if err != nil {
		return domain.Key{}, fmt.Errorf("квоты категории %s за %s: %w", category, month, err)
	}

	weights := make(map[domain.Key]int, len(candidates))
	for _, brand := range candidates {
		w := quotas[brand] - published[brand] - planned[brand]
		if w < 0 {
			w = 0
		}
		weights[brand] = w
	}

	sorted := make([]domain.Key, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return weights[sorted[i]] > weights[sorted[j]] })

	if weights[sorted[0]] > 0 {
		// Анти-повтор: при равном весе двух верхних кандидатов не берём
		// тот же бренд два раза подряд.
		if len(sorted) > 1 && weights[sorted[0]] == weights[sorted[1]] && sorted[0] == last {
			return sorted[1], nil
		}
		return sorted[0], nil
	}

	return roundRobin(candidates, last), nil
}

func roundRobin(candidates []domain.Key, last domain.Key) domain.Key {
	for i, brand := range candidates {
		if brand == last {
			return candidates[(i+1)%len(candidates)]
		}
	}
	return candidates[0]
}
