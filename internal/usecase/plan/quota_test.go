package plan

import (
	"context"
	"errors"
	"testing"

	"posting-scheduler/internal/domain"
)

type stubQuotaSource struct {
	counts map[domain.Key]int
	err    error
}

func (s stubQuotaSource) MonthlyCounts(context.Context, domain.Key, string) (map[domain.Key]int, error) {
	return s.counts, s.err
}

func keys(names ...string) []domain.Key {
	out := make([]domain.Key, 0, len(names))
	for _, n := range names {
		out = append(out, domain.NewKey(n))
	}
	return out
}

func TestSelectBrandByRemainingQuota(t *testing.T) {
	resolver := NewQuotaResolver(stubQuotaSource{counts: map[domain.Key]int{
		domain.NewKey("a"): 1,
		domain.NewKey("b"): 1,
	}})
	quotas := map[domain.Key]int{
		domain.NewKey("a"): 3,
		domain.NewKey("b"): 1,
	}

	// Остатки: a=2, b=0 — выбираем a.
	got, err := resolver.SelectBrand(context.Background(), domain.NewKey("авто"), "2026-08", keys("a", "b"), quotas, nil, domain.Key{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != domain.NewKey("a") {
		t.Fatalf("ожидали бренд a, получили %s", got)
	}
}

func TestSelectBrandCountsPlanned(t *testing.T) {
	resolver := NewQuotaResolver(stubQuotaSource{counts: map[domain.Key]int{}})
	quotas := map[domain.Key]int{
		domain.NewKey("a"): 2,
		domain.NewKey("b"): 1,
	}
	planned := map[domain.Key]int{domain.NewKey("a"): 2}

	// Запланированное в этом запуске съело квоту a: остатки a=0, b=1.
	got, err := resolver.SelectBrand(context.Background(), domain.NewKey("авто"), "2026-08", keys("a", "b"), quotas, planned, domain.Key{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != domain.NewKey("b") {
		t.Fatalf("ожидали бренд b, получили %s", got)
	}
}

func TestSelectBrandTieBreakAvoidsRepeat(t *testing.T) {
	resolver := NewQuotaResolver(stubQuotaSource{counts: map[domain.Key]int{}})
	quotas := map[domain.Key]int{
		domain.NewKey("a"): 2,
		domain.NewKey("b"): 2,
	}

	got, err := resolver.SelectBrand(context.Background(), domain.NewKey("авто"), "2026-08", keys("a", "b"), quotas, nil, domain.NewKey("a"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != domain.NewKey("b") {
		t.Fatalf("при равных весах не берём тот же бренд подряд, получили %s", got)
	}
}

func TestSelectBrandRoundRobinWhenExhausted(t *testing.T) {
	resolver := NewQuotaResolver(stubQuotaSource{counts: map[domain.Key]int{
		domain.NewKey("a"): 5,
		domain.NewKey("b"): 5,
		domain.NewKey("c"): 5,
	}})
	quotas := map[domain.Key]int{
		domain.NewKey("a"): 1,
		domain.NewKey("b"): 1,
		domain.NewKey("c"): 1,
	}
	candidates := keys("a", "b", "c")

	got, err := resolver.SelectBrand(context.Background(), domain.NewKey("авто"), "2026-08", candidates, quotas, nil, domain.NewKey("b"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != domain.NewKey("c") {
		t.Fatalf("round robin после b должен дать c, получили %s", got)
	}

	// Последний элемент заворачивается на первый.
	got, err = resolver.SelectBrand(context.Background(), domain.NewKey("авто"), "2026-08", candidates, quotas, nil, domain.NewKey("c"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != domain.NewKey("a") {
		t.Fatalf("round robin после c должен дать a, получили %s", got)
	}
}

func TestSelectBrandSourceErrorIsFatal(t *testing.T) {
	srcErr := errors.New("база недоступна")
	resolver := NewQuotaResolver(stubQuotaSource{err: srcErr})

	_, err := resolver.SelectBrand(context.Background(), domain.NewKey("авто"), "2026-08", keys("a"), nil, nil, domain.Key{})
	if err == nil {
		t.Fatalf("ошибка источника квот должна прерывать выбор")
	}
	if !errors.Is(err, srcErr) {
		t.Fatalf("ожидали обёрнутую ошибку источника, получили %v", err)
	}
}
