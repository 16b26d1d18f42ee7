package plan

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/infra/metrics"
	"posting-scheduler/internal/usecase/classify"
)

// Первый день генерации не может начаться в прошлом: старт сдвигается на
// несколько минут вперёд от текущего момента.
const todayStartDelay = 10 * time.Minute

// Inputs — всё, что нужно движку для одного запуска. Движок владеет этими
// данными эксклюзивно до конца запуска (вызовы не должны перекрываться).
type Inputs struct {
	Videos   []domain.VideoItem
	Profiles []domain.Profile

	// OccupiedSlots — уже занятые моменты публикаций по профилям, чтобы
	// новый запуск не наслаивался на отложенные посты.
	OccupiedSlots map[string][]time.Time

	// ExistingCounts: dateKey → username → платформа → счётчик. Позволяет
	// повторному запуску добирать до лимита, а не дублировать.
	ExistingCounts map[string]map[string]map[string]int

	Settings domain.Settings
}

// Engine — ядро планирования: распределяет видео по профилям, платформам и
// времени с учётом квот, дедупликации и интервалов.
type Engine struct {
	classifier *classify.Classifier
	quota      *QuotaResolver
	history    domain.HistorySource
	rnd        *rand.Rand
	clock      func() time.Time
	log        zerolog.Logger
}

// NewEngine создаёт движок. Генератор случайных чисел и часы инжектируются,
// чтобы тесты были детерминированными.
func NewEngine(classifier *classify.Classifier, quota *QuotaResolver, history domain.HistorySource, rnd *rand.Rand, clock func() time.Time, log zerolog.Logger) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{classifier: classifier, quota: quota, history: history, rnd: rnd, clock: clock, log: log}
}

// Generate строит расписание запуска. Мягкие сбои (нет контента, нет слота)
// уменьшают выдачу; фатальна только недоступность источников квот и истории.
func (e *Engine) Generate(ctx context.Context, in Inputs) ([]domain.Assignment, error) {
	active := make([]domain.Profile, 0, len(in.Profiles))
	for _, p := range in.Profiles {
		if p.Active() {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		e.log.Warn().Msg("планировщик: нет активных профилей с платформами")
		return nil, nil
	}
	e.log.Info().Int("active", len(active)).Int("total", len(in.Profiles)).Msg("планировщик: профили отфильтрованы")

	ledger := NewLedger(in.Settings.AllowVideoReuse, in.Settings.HistoryCheckEnabled())
	if in.Settings.HistoryCheckEnabled() {
		usernames := make([]string, 0, len(active))
		for _, p := range active {
			usernames = append(usernames, p.Username)
		}
		pairs, err := e.history.DeliveredPairs(ctx, usernames)
		if err != nil {
			return nil, fmt.Errorf("загрузка истории доставок: %w", err)
		}
		ledger.Preload(pairs)
		e.log.Info().Int("pairs", len(pairs)).Msg("планировщик: история доставок загружена")
	}

	pools := e.buildPools(in.Videos)
	for category, brands := range pools {
		total := 0
		for _, items := range brands {
			total += len(items)
		}
		e.log.Info().Str("category", category.String()).Int("brands", len(brands)).Int("videos", total).Msg("планировщик: пул категории")
	}

	slots := make(map[string][]time.Time, len(active))
	for username, occupied := range in.OccupiedSlots {
		slots[username] = append([]time.Time(nil), occupied...)
	}

	allocator := NewSlotAllocator(e.rnd, time.Duration(in.Settings.MinGapMinutes)*time.Minute)
	month := e.clock().Format("2006-01")

	now := e.clock()
	startDate := time.Date(now.Year(), now.Month(), now.Day(), in.Settings.Schedule.StartHour, 0, 0, 0, now.Location())

	// Журнал выбора живёт весь запуск: квота, выбранная в первый день,
	// уменьшает вес бренда и во все последующие дни.
	lastBrand := make(map[domain.Key]domain.Key)
	planned := make(map[domain.Key]map[domain.Key]int)

	var schedule []domain.Assignment
	for day := 0; day < in.Settings.DaysToGenerate; day++ {
		dayStart := startDate.AddDate(0, 0, day)
		if day == 0 && dayStart.Before(now) {
			dayStart = now.Add(todayStartDelay)
		}
		dayEnd := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), in.Settings.Schedule.EndHour, 0, 0, 0, dayStart.Location())
		if !dayStart.Before(dayEnd) {
			e.log.Info().Int("day", day).Time("start", dayStart).Msg("планировщик: окно дня уже закрыто, пропуск")
			continue
		}

		dateKey := dayStart.Format("2006-01-02")
		counts := seedCounts(in.ExistingCounts[dateKey], active)

		daily := append([]domain.Profile(nil), active...)
		e.rnd.Shuffle(len(daily), func(i, j int) { daily[i], daily[j] = daily[j], daily[i] })

		for pass := 0; pass < maxPasses(daily, in.Settings.Limits); pass++ {
			for _, profile := range daily {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if !needsPost(profile, counts[profile.Username], in.Settings.Limits) {
					continue
				}

				theme := e.classifier.Canonical(profile.ThemeKey)
				brands := pools[theme]
				if len(brands) == 0 {
					metrics.IncPlanSkip("no_pool")
					continue
				}

				candidates := eligibleBrands(brands, ledger, profile.Username)
				if len(candidates) == 0 {
					metrics.IncPlanSkip("no_content")
					continue
				}

				if planned[theme] == nil {
					planned[theme] = make(map[domain.Key]int)
				}
				selected, err := e.quota.SelectBrand(ctx, theme, month, candidates, in.Settings.QuotasFor(theme), planned[theme], lastBrand[theme])
				if err != nil {
					return nil, err
				}
				lastBrand[theme] = selected

				item, ok := e.pickItem(brands[selected], ledger, profile.Username)
				if !ok {
					metrics.IncPlanSkip("no_content")
					continue
				}

				slot, ok := allocator.Allocate(slots[profile.Username], dayStart, dayEnd)
				if !ok {
					metrics.IncPlanSkip("no_slot")
					e.log.Debug().Str("profile", profile.Username).Str("day", dateKey).Msg("планировщик: не нашли свободный слот")
					continue
				}

				// Фиксация: только после успешного подбора слота.
				ledger.MarkUsed(item, profile.Username)
				slots[profile.Username] = append(slots[profile.Username], slot)
				planned[theme][selected]++

				for i, platform := range profile.Platforms {
					limit := profile.DailyLimit(platform, in.Settings.Limits)
					if counts[profile.Username][platform] >= limit {
						continue
					}
					publishAt := slot
					if i > 0 {
						// Пара минут разброса, чтобы платформы не получили
						// бит-в-бит одинаковое время.
						publishAt = slot.Add(time.Duration(e.rnd.Intn(4)+2) * time.Minute)
					}
					schedule = append(schedule, domain.Assignment{
						Video:     item,
						Username:  profile.Username,
						Platform:  platform,
						PublishAt: publishAt,
					})
					counts[profile.Username][platform]++
					metrics.IncAssignmentPlanned(platform)
				}
			}
		}
	}

	e.log.Info().Int("assignments", len(schedule)).Msg("планировщик: расписание построено")
	return schedule, nil
}

// buildPools раскладывает каталог по категориям и брендам. Видео без
// категории, без бренда или с брендом вне реестра клиентов исключаются.
func (e *Engine) buildPools(videos []domain.VideoItem) map[domain.Key]map[domain.Key][]domain.VideoItem {
	pools := make(map[domain.Key]map[domain.Key][]domain.VideoItem)
	reported := make(map[domain.Key]struct{})
	for _, v := range videos {
		category := e.classifier.Category(v.Path)
		if category.IsUnknown() {
			continue
		}
		segment := e.classifier.BrandSegment(v.Path)
		brand := e.classifier.Brand(v.Path)
		if brand.IsUnknown() {
			continue
		}
		if !e.classifier.KnownBrand(segment) {
			if _, ok := reported[brand]; !ok {
				reported[brand] = struct{}{}
				e.log.Info().Str("brand", brand.String()).Msg("планировщик: для бренда нет клиента, видео исключены")
			}
			continue
		}
		if pools[category] == nil {
			pools[category] = make(map[domain.Key][]domain.VideoItem)
		}
		pools[category][brand] = append(pools[category][brand], v)
	}
	return pools
}

// pickItem выбирает случайное ещё не использованное видео бренда. Пул не
// мутирует: доступность определяет журнал.
func (e *Engine) pickItem(items []domain.VideoItem, ledger *Ledger, username string) (domain.VideoItem, bool) {
	for _, idx := range e.rnd.Perm(len(items)) {
		if ledger.Eligible(items[idx], username) {
			return items[idx], true
		}
	}
	return domain.VideoItem{}, false
}

// eligibleBrands возвращает бренды с хотя бы одним доступным видео в
// детерминированном порядке.
func eligibleBrands(brands map[domain.Key][]domain.VideoItem, ledger *Ledger, username string) []domain.Key {
	candidates := make([]domain.Key, 0, len(brands))
	for brand, items := range brands {
		for _, item := range items {
			if ledger.Eligible(item, username) {
				candidates = append(candidates, brand)
				break
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].String() < candidates[j].String() })
	return candidates
}

// maxPasses — бюджет проходов по профилям за день: наибольший дневной лимит
// среди глобальных и профильных.
func maxPasses(profiles []domain.Profile, global domain.GlobalLimits) int {
	passes := global.Max()
	for _, p := range profiles {
		for _, platform := range p.Platforms {
			if limit := p.DailyLimit(platform, global); limit > passes {
				passes = limit
			}
		}
	}
	return passes
}

func needsPost(profile domain.Profile, counts map[string]int, global domain.GlobalLimits) bool {
	for _, platform := range profile.Platforms {
		if counts[platform] < profile.DailyLimit(platform, global) {
			return true
		}
	}
	return false
}

func seedCounts(existing map[string]map[string]int, profiles []domain.Profile) map[string]map[string]int {
	counts := make(map[string]map[string]int, len(profiles))
	for _, p := range profiles {
		counts[p.Username] = make(map[string]int)
		for platform, n := range existing[p.Username] {
			counts[p.Username][platform] = n
		}
	}
	return counts
}
