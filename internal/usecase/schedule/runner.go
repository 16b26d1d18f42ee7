package schedule

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/infra/events"
	"posting-scheduler/internal/infra/metrics"
	"posting-scheduler/internal/usecase/classify"
	"posting-scheduler/internal/usecase/plan"
	"posting-scheduler/internal/usecase/publish"
)

// Ключ блокировки: в кластере одновременно планирует только один воркер.
const runLockKey = "scheduler:run_lock"

const runLockTTL = 30 * time.Minute

// Runner выполняет один запуск планирования: собирает входные данные,
// запускает движок и ставит результат в очередь публикации.
type Runner struct {
	settings    domain.SettingsRepo
	history     domain.HistoryRepo
	quotas      domain.QuotaSource
	delivered   domain.HistorySource
	catalog     domain.Catalog
	publish     *publish.Service
	guard       domain.RunGuard
	notifier    domain.Notifier
	broadcaster *events.Broadcaster
	log         zerolog.Logger
}

// NewRunner создаёт исполнитель запусков.
func NewRunner(
	settings domain.SettingsRepo,
	history domain.HistoryRepo,
	quotas domain.QuotaSource,
	delivered domain.HistorySource,
	catalog domain.Catalog,
	publishService *publish.Service,
	guard domain.RunGuard,
	notifier domain.Notifier,
	broadcaster *events.Broadcaster,
	log zerolog.Logger,
) *Runner {
	return &Runner{
		settings:    settings,
		history:     history,
		quotas:      quotas,
		delivered:   delivered,
		catalog:     catalog,
		publish:     publishService,
		guard:       guard,
		notifier:    notifier,
		broadcaster: broadcaster,
		log:         log,
	}
}

// Run обрабатывает одну задачу из очереди запусков. Если блокировка занята,
// задача пропускается: параллельные запуски строят дубли.
func (r *Runner) Run(ctx context.Context, job domain.RunJob) error {
	acquired, err := r.guard.Acquire(ctx, runLockKey, runLockTTL)
	if err != nil {
		return fmt.Errorf("захват блокировки запуска: %w", err)
	}
	if !acquired {
		r.log.Warn().Str("run_id", job.ID).Msg("runner: запуск уже идёт, пропускаем задачу")
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.guard.Release(releaseCtx, runLockKey); err != nil {
			r.log.Error().Err(err).Msg("runner: не удалось снять блокировку")
		}
	}()

	start := time.Now()
	report, err := r.execute(ctx, job)
	report.RunID = job.ID
	report.StartedAt = start
	report.FinishedAt = time.Now()
	report.Err = err
	metrics.ObserveRun(start, err)

	if r.broadcaster != nil {
		r.broadcaster.RunFinished(job.ID, report.Planned, err)
	}
	if notifyErr := r.notifier.NotifyRun(ctx, report); notifyErr != nil {
		r.log.Warn().Err(notifyErr).Msg("runner: не удалось отправить отчёт")
	}
	if err != nil {
		return fmt.Errorf("запуск %s: %w", job.ID, err)
	}
	r.log.Info().
		Str("run_id", job.ID).
		Str("reason", job.Reason).
		Int("planned", report.Planned).
		Dur("took", report.FinishedAt.Sub(start)).
		Msg("runner: запуск завершён")
	return nil
}

func (r *Runner) execute(ctx context.Context, job domain.RunJob) (domain.RunReport, error) {
	var report domain.RunReport

	settings, err := r.settings.LoadSettings(ctx)
	if err != nil {
		return report, fmt.Errorf("загрузка настроек: %w", err)
	}
	if !settings.Schedule.Enabled && job.Reason != "manual" {
		r.log.Info().Str("run_id", job.ID).Msg("runner: планирование выключено в настройках")
		return report, nil
	}

	loc, err := time.LoadLocation(settings.Schedule.Timezone)
	if err != nil {
		r.log.Warn().Err(err).Str("tz", settings.Schedule.Timezone).Msg("runner: неизвестная таймзона, используем UTC")
		loc = time.UTC
	}
	clock := func() time.Time { return time.Now().In(loc) }

	videos, err := r.catalog.ListVideos(ctx)
	if err != nil {
		return report, fmt.Errorf("каталог видео: %w", err)
	}
	videos = filterByFolders(videos, settings.YandexFolders)
	metrics.CatalogVideos.Set(float64(len(videos)))
	report.Videos = len(videos)
	report.Profiles = len(settings.Profiles)

	now := clock()
	occupied, err := r.history.OccupiedSlots(ctx, now)
	if err != nil {
		return report, fmt.Errorf("занятые слоты: %w", err)
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	counts, err := r.history.CountsByDay(ctx, dayStart)
	if err != nil {
		return report, fmt.Errorf("счётчики по дням: %w", err)
	}

	classifier := classify.New(settings.ThemeAliases, settings.Clients, r.log)
	engine := plan.NewEngine(
		classifier,
		plan.NewQuotaResolver(r.quotas),
		r.delivered,
		rand.New(rand.NewSource(time.Now().UnixNano())),
		clock,
		r.log,
	)

	assignments, err := engine.Generate(ctx, plan.Inputs{
		Videos:         videos,
		Profiles:       settings.Profiles,
		OccupiedSlots:  occupied,
		ExistingCounts: counts,
		Settings:       settings,
	})
	if err != nil {
		return report, fmt.Errorf("построение расписания: %w", err)
	}

	inserted, err := r.publish.EnqueueAssignments(ctx, classifier, assignments)
	report.Planned = inserted
	if err != nil {
		return report, fmt.Errorf("постановка расписания в очередь: %w", err)
	}
	return report, nil
}

// filterByFolders оставляет только видео из перечисленных папок диска.
// Пустой список папок означает «весь диск».
func filterByFolders(videos []domain.VideoItem, folders []string) []domain.VideoItem {
	if len(folders) == 0 {
		return videos
	}
	prefixes := make([]string, 0, len(folders))
	for _, folder := range folders {
		folder = strings.TrimRight(strings.ToLower(folder), "/")
		if folder == "" {
			continue
		}
		prefixes = append(prefixes, folder+"/")
	}
	if len(prefixes) == 0 {
		return videos
	}
	filtered := make([]domain.VideoItem, 0, len(videos))
	for _, video := range videos {
		path := strings.ToLower(video.Path)
		for _, prefix := range prefixes {
			if strings.HasPrefix(path, prefix) {
				filtered = append(filtered, video)
				break
			}
		}
	}
	return filtered
}
