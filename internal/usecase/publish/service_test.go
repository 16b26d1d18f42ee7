package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/usecase/classify"
)

type fakeHistory struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*domain.PostRecord
	due     []domain.PostRecord
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{records: make(map[int64]*domain.PostRecord)}
}

func (f *fakeHistory) InsertQueued(_ context.Context, rec domain.PostRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = f.nextID
	f.records[rec.ID] = &rec
	return rec.ID, nil
}

func (f *fakeHistory) UpdateStatus(_ context.Context, id int64, status, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return errors.New("запись не найдена")
	}
	rec.Status = status
	if errMsg != "" {
		if rec.Meta == nil {
			rec.Meta = make(map[string]any)
		}
		rec.Meta["error"] = errMsg
	}
	return nil
}

func (f *fakeHistory) DueRecords(context.Context, time.Time) ([]domain.PostRecord, error) {
	return f.due, nil
}

func (f *fakeHistory) RecordsByPath(_ context.Context, path string) ([]domain.PostRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PostRecord
	for _, rec := range f.records {
		if rec.VideoPath == path {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeHistory) RecentRecords(context.Context, int) ([]domain.PostRecord, error) {
	return nil, nil
}

func (f *fakeHistory) OccupiedSlots(context.Context, time.Time) (map[string][]time.Time, error) {
	return nil, nil
}

func (f *fakeHistory) CountsByDay(context.Context, time.Time) (map[string]map[string]map[string]int, error) {
	return nil, nil
}

func (f *fakeHistory) status(id int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id]; ok {
		return rec.Status
	}
	return ""
}

type fakeBrandStats struct {
	mu        sync.Mutex
	published map[string]int
}

func (f *fakeBrandStats) IncrementPublished(_ context.Context, category, brand domain.Key, month string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = make(map[string]int)
	}
	f.published[category.String()+"/"+brand.String()+"/"+month]++
	return nil
}

func (f *fakeBrandStats) ListBrandStats(context.Context, string) ([]domain.BrandStat, error) {
	return nil, nil
}

func (f *fakeBrandStats) SetQuota(context.Context, domain.Key, domain.Key, string, int) error {
	return nil
}

type fakeSettingsRepo struct {
	settings domain.Settings
}

func (f *fakeSettingsRepo) LoadSettings(context.Context) (domain.Settings, error) {
	return f.settings, nil
}

func (f *fakeSettingsRepo) SaveSettings(_ context.Context, s domain.Settings) error {
	f.settings = s
	return nil
}

type fakeCatalog struct {
	mu       sync.Mutex
	linkErr  error
	deleted  []string
	linkCall int
}

func (f *fakeCatalog) ListVideos(context.Context) ([]domain.VideoItem, error) { return nil, nil }

func (f *fakeCatalog) DownloadLink(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkCall++
	if f.linkErr != nil {
		return "", f.linkErr
	}
	return "https://downloader.example/" + path, nil
}

func (f *fakeCatalog) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	requests []domain.PublishRequest
}

func (f *fakePublisher) Publish(_ context.Context, req domain.PublishRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.err
}

func (f *fakePublisher) Profiles(context.Context) ([]domain.RemoteProfile, error) {
	return nil, nil
}

type fakeCaptioner struct{}

func (fakeCaptioner) Generate(_ context.Context, _, platform string, _ *domain.ClientConfig, author string) (domain.Caption, error) {
	caption := domain.Caption{Body: "подпись #by" + author}
	if platform == domain.PlatformYouTube {
		caption.Title = "заголовок"
	}
	return caption, nil
}

func testService(history *fakeHistory, stats *fakeBrandStats, catalog *fakeCatalog, publisher *fakePublisher) *Service {
	settings := domain.DefaultSettings()
	settings.Clients = []domain.ClientConfig{{Name: "БрендА"}}
	return NewService(
		history, stats, &fakeSettingsRepo{settings: settings},
		catalog, publisher, fakeCaptioner{},
		nil, zerolog.Nop(), 2,
	)
}

func testClassifier() *classify.Classifier {
	return classify.New(nil, []domain.ClientConfig{{Name: "БрендА"}}, zerolog.Nop())
}

func TestEnqueueAssignments(t *testing.T) {
	history := newFakeHistory()
	service := testService(history, &fakeBrandStats{}, &fakeCatalog{}, &fakePublisher{})

	publishAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	assignments := []domain.Assignment{
		{
			Video:     domain.VideoItem{Path: "/ВИДЕО/Иван/авто/БрендА/clip.mp4", Name: "clip.mp4"},
			Username:  "acc1",
			Platform:  domain.PlatformInstagram,
			PublishAt: publishAt,
		},
	}

	inserted, err := service.EnqueueAssignments(context.Background(), testClassifier(), assignments)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("ожидали одну вставку, получили %d", inserted)
	}

	rec := history.records[1]
	if rec.Status != domain.StatusQueued {
		t.Fatalf("новая запись должна быть queued, получили %s", rec.Status)
	}
	if rec.Author != "Иван" {
		t.Fatalf("автор должен извлекаться из пути, получили %q", rec.Author)
	}
	if !rec.PostedAt.Equal(publishAt) {
		t.Fatalf("время публикации должно сохраняться, получили %s", rec.PostedAt)
	}
}

func TestPublishDueSuccess(t *testing.T) {
	history := newFakeHistory()
	stats := &fakeBrandStats{}
	catalog := &fakeCatalog{}
	publisher := &fakePublisher{}
	service := testService(history, stats, catalog, publisher)

	id, _ := history.InsertQueued(context.Background(), domain.PostRecord{
		ProfileUsername: "acc1",
		Platform:        domain.PlatformInstagram,
		VideoPath:       "/ВИДЕО/Иван/авто/БрендА/clip.mp4",
		VideoName:       "clip.mp4",
		Author:          "Иван",
		Status:          domain.StatusQueued,
		PostedAt:        time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	})
	history.due = []domain.PostRecord{*history.records[id]}

	if err := service.PublishDue(context.Background(), time.Now()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if got := history.status(id); got != domain.StatusSuccess {
		t.Fatalf("ожидали статус success, получили %s", got)
	}
	if len(publisher.requests) != 1 {
		t.Fatalf("ожидали один вызов публикации, получили %d", len(publisher.requests))
	}
	req := publisher.requests[0]
	if req.Username != "acc1" || req.Platform != domain.PlatformInstagram {
		t.Fatalf("неожиданный запрос публикации: %+v", req)
	}
	if req.VideoURL == "" || req.Caption == "" {
		t.Fatalf("запрос должен содержать ссылку и подпись: %+v", req)
	}

	if stats.published["авто/бренда/2026-08"] != 1 {
		t.Fatalf("успешная публикация должна увеличить счётчик бренда: %v", stats.published)
	}
	if len(catalog.deleted) != 1 {
		t.Fatalf("после единственной успешной публикации видео удаляется, удалено %d", len(catalog.deleted))
	}
}

func TestPublishDueFailure(t *testing.T) {
	history := newFakeHistory()
	stats := &fakeBrandStats{}
	catalog := &fakeCatalog{}
	publisher := &fakePublisher{err: errors.New("транспорт недоступен")}
	service := testService(history, stats, catalog, publisher)

	id, _ := history.InsertQueued(context.Background(), domain.PostRecord{
		ProfileUsername: "acc1",
		Platform:        domain.PlatformTikTok,
		VideoPath:       "/ВИДЕО/Иван/авто/БрендА/clip.mp4",
		Status:          domain.StatusQueued,
		PostedAt:        time.Now(),
	})
	history.due = []domain.PostRecord{*history.records[id]}

	if err := service.PublishDue(context.Background(), time.Now()); err != nil {
		t.Fatalf("сбой одной записи не должен ронять цикл: %v", err)
	}

	if got := history.status(id); got != domain.StatusFailed {
		t.Fatalf("ожидали статус failed, получили %s", got)
	}
	if history.records[id].Meta["error"] == nil {
		t.Fatalf("текст ошибки должен сохраняться в meta")
	}
	if len(stats.published) != 0 {
		t.Fatalf("неуспешная публикация не увеличивает счётчики: %v", stats.published)
	}
	if len(catalog.deleted) != 0 {
		t.Fatalf("без успешной публикации видео не удаляется")
	}
}

func TestCleanupWaitsForPending(t *testing.T) {
	history := newFakeHistory()
	catalog := &fakeCatalog{}
	service := testService(history, &fakeBrandStats{}, catalog, &fakePublisher{})

	path := "/ВИДЕО/Иван/авто/БрендА/clip.mp4"
	successID, _ := history.InsertQueued(context.Background(), domain.PostRecord{VideoPath: path, Status: domain.StatusQueued})
	_ = history.UpdateStatus(context.Background(), successID, domain.StatusSuccess, "")
	_, _ = history.InsertQueued(context.Background(), domain.PostRecord{VideoPath: path, Status: domain.StatusQueued})

	service.CleanupCheck(context.Background(), path)
	if len(catalog.deleted) != 0 {
		t.Fatalf("пока есть незавершённые записи, видео удалять нельзя")
	}
}

func TestCleanupRequiresSuccess(t *testing.T) {
	history := newFakeHistory()
	catalog := &fakeCatalog{}
	service := testService(history, &fakeBrandStats{}, catalog, &fakePublisher{})

	path := "/ВИДЕО/Иван/авто/БрендА/clip.mp4"
	id, _ := history.InsertQueued(context.Background(), domain.PostRecord{VideoPath: path, Status: domain.StatusQueued})
	_ = history.UpdateStatus(context.Background(), id, domain.StatusFailed, "ошибка")

	service.CleanupCheck(context.Background(), path)
	if len(catalog.deleted) != 0 {
		t.Fatalf("без единой успешной публикации видео остаётся в каталоге")
	}
}

func TestDownloadLinkRetries(t *testing.T) {
	history := newFakeHistory()
	catalog := &fakeCatalog{linkErr: errors.New("временная ошибка")}
	publisher := &fakePublisher{}
	service := testService(history, &fakeBrandStats{}, catalog, publisher)
	service.retryBase = time.Millisecond

	id, _ := history.InsertQueued(context.Background(), domain.PostRecord{
		ProfileUsername: "acc1",
		Platform:        domain.PlatformInstagram,
		VideoPath:       "/ВИДЕО/Иван/авто/БрендА/clip.mp4",
		Status:          domain.StatusQueued,
		PostedAt:        time.Now(),
	})
	history.due = []domain.PostRecord{*history.records[id]}

	if err := service.PublishDue(context.Background(), time.Now()); err != nil {
		t.Fatalf("не ожидали ошибку цикла: %v", err)
	}
	if catalog.linkCall != downloadLinkAttempts {
		t.Fatalf("ожидали %d попыток получить ссылку, было %d", downloadLinkAttempts, catalog.linkCall)
	}
	if got := history.status(id); got != domain.StatusFailed {
		t.Fatalf("после исчерпания попыток запись должна стать failed, получили %s", got)
	}
	if len(publisher.requests) != 0 {
		t.Fatalf("без ссылки публикация не вызывается")
	}
}
