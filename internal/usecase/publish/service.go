package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/infra/events"
	"posting-scheduler/internal/infra/metrics"
	"posting-scheduler/internal/usecase/classify"
)

const downloadLinkAttempts = 3

// Service доводит запланированные записи до публикации: берёт созревшие
// строки истории, получает подпись и ссылку, публикует и закрывает статус.
type Service struct {
	history     domain.HistoryRepo
	brandStats  domain.BrandStatsRepo
	settings    domain.SettingsRepo
	catalog     domain.Catalog
	publisher   domain.Publisher
	captioner   domain.Captioner
	broadcaster *events.Broadcaster
	log         zerolog.Logger
	concurrency int
	retryBase   time.Duration
}

// NewService создаёт сервис публикации.
func NewService(
	history domain.HistoryRepo,
	brandStats domain.BrandStatsRepo,
	settings domain.SettingsRepo,
	catalog domain.Catalog,
	publisher domain.Publisher,
	captioner domain.Captioner,
	broadcaster *events.Broadcaster,
	log zerolog.Logger,
	concurrency int,
) *Service {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		history:     history,
		brandStats:  brandStats,
		settings:    settings,
		catalog:     catalog,
		publisher:   publisher,
		captioner:   captioner,
		broadcaster: broadcaster,
		log:         log,
		concurrency: concurrency,
		retryBase:   2 * time.Second,
	}
}

// EnqueueAssignments сохраняет результат планирования как очередь записей
// со статусом queued. Возвращает число вставленных строк.
func (s *Service) EnqueueAssignments(ctx context.Context, cls *classify.Classifier, assignments []domain.Assignment) (int, error) {
	inserted := 0
	for _, a := range assignments {
		rec := domain.PostRecord{
			ProfileUsername: a.Username,
			Platform:        a.Platform,
			VideoPath:       a.Video.Path,
			VideoName:       a.Video.Name,
			Author:          cls.Author(a.Video.Path),
			Status:          domain.StatusQueued,
			PostedAt:        a.PublishAt,
		}
		id, err := s.history.InsertQueued(ctx, rec)
		if err != nil {
			return inserted, fmt.Errorf("постановка в очередь %s/%s: %w", a.Username, a.Platform, err)
		}
		inserted++
		if s.broadcaster != nil {
			s.broadcaster.PostStatus(id, domain.StatusQueued)
		}
	}
	return inserted, nil
}

// PublishDue публикует все записи, чьё время наступило. Записи одного
// прогона обрабатываются параллельно с ограничением по конкурентности.
func (s *Service) PublishDue(ctx context.Context, now time.Time) error {
	records, err := s.history.DueRecords(ctx, now)
	if err != nil {
		return fmt.Errorf("выборка созревших записей: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	settings, err := s.settings.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("загрузка настроек: %w", err)
	}
	cls := classify.New(settings.ThemeAliases, settings.Clients, s.log)

	s.log.Info().Int("count", len(records)).Msg("publish: начинаем публикацию созревших записей")

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(rec domain.PostRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			s.processRecord(ctx, cls, rec)
		}(rec)
	}
	wg.Wait()
	return ctx.Err()
}

// processRecord проводит одну запись через полный цикл публикации.
func (s *Service) processRecord(ctx context.Context, cls *classify.Classifier, rec domain.PostRecord) {
	logger := s.log.With().
		Int64("record_id", rec.ID).
		Str("username", rec.ProfileUsername).
		Str("platform", rec.Platform).
		Logger()

	if err := s.setStatus(ctx, rec.ID, domain.StatusProcessing, ""); err != nil {
		logger.Error().Err(err).Msg("publish: не удалось перевести запись в processing")
		return
	}

	err := s.publishRecord(ctx, cls, rec)
	metrics.IncPublish(rec.Platform, err)
	if err != nil {
		logger.Error().Err(err).Str("video", rec.VideoPath).Msg("publish: публикация не удалась")
		if stErr := s.setStatus(ctx, rec.ID, domain.StatusFailed, err.Error()); stErr != nil {
			logger.Error().Err(stErr).Msg("publish: не удалось зафиксировать ошибку")
		}
		return
	}

	if err := s.setStatus(ctx, rec.ID, domain.StatusSuccess, ""); err != nil {
		logger.Error().Err(err).Msg("publish: не удалось перевести запись в success")
		return
	}
	logger.Info().Str("video", rec.VideoName).Msg("publish: опубликовано")

	s.recordBrandStat(ctx, cls, rec)
	s.CleanupCheck(ctx, rec.VideoPath)
	if s.broadcaster != nil {
		s.broadcaster.StatsUpdated()
	}
}

func (s *Service) publishRecord(ctx context.Context, cls *classify.Classifier, rec domain.PostRecord) error {
	client := cls.ClientFor(cls.BrandSegment(rec.VideoPath))
	caption, err := s.captioner.Generate(ctx, rec.VideoPath, rec.Platform, client, rec.Author)
	if err != nil {
		return fmt.Errorf("подпись: %w", err)
	}

	link, err := s.downloadLink(ctx, rec.VideoPath)
	if err != nil {
		return fmt.Errorf("ссылка на видео: %w", err)
	}

	req := domain.PublishRequest{
		Username: rec.ProfileUsername,
		Platform: rec.Platform,
		VideoURL: link,
		Caption:  caption.Body,
		Title:    caption.Title,
	}
	if err := s.publisher.Publish(ctx, req); err != nil {
		return err
	}
	return nil
}

// downloadLink запрашивает временную ссылку с повторами: ссылки живут
// недолго, поэтому берём свежую прямо перед публикацией.
func (s *Service) downloadLink(ctx context.Context, path string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= downloadLinkAttempts; attempt++ {
		link, err := s.catalog.DownloadLink(ctx, path)
		if err == nil {
			return link, nil
		}
		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt).Str("path", path).Msg("publish: не удалось получить ссылку, повторяем")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * s.retryBase):
		}
	}
	return "", lastErr
}

func (s *Service) recordBrandStat(ctx context.Context, cls *classify.Classifier, rec domain.PostRecord) {
	category := cls.Category(rec.VideoPath)
	brand := cls.Brand(rec.VideoPath)
	if category.IsUnknown() || brand.IsUnknown() {
		return
	}
	month := rec.PostedAt.Format("2006-01")
	if err := s.brandStats.IncrementPublished(ctx, category, brand, month); err != nil {
		s.log.Error().Err(err).
			Str("category", category.String()).
			Str("brand", brand.String()).
			Msg("publish: не удалось обновить статистику бренда")
	}
}

// CleanupCheck удаляет видео из каталога, когда все записи по нему дошли
// до терминального статуса и хотя бы одна публикация удалась.
func (s *Service) CleanupCheck(ctx context.Context, path string) {
	records, err := s.history.RecordsByPath(ctx, path)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("publish: не удалось проверить записи перед удалением")
		return
	}
	hasSuccess := false
	for _, rec := range records {
		switch rec.Status {
		case domain.StatusSuccess:
			hasSuccess = true
		case domain.StatusFailed:
		default:
			return
		}
	}
	if !hasSuccess {
		return
	}
	if err := s.catalog.Delete(ctx, path); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("publish: не удалось удалить видео из каталога")
		return
	}
	s.log.Info().Str("path", path).Msg("publish: видео удалено из каталога после публикации")
}

func (s *Service) setStatus(ctx context.Context, id int64, status, errMsg string) error {
	if err := s.history.UpdateStatus(ctx, id, status, errMsg); err != nil {
		return err
	}
	if s.broadcaster != nil {
		s.broadcaster.PostStatus(id, status)
	}
	return nil
}
