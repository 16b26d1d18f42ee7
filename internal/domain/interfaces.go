package domain

import (
	"context"
	"time"
)

// QuotaSource отдаёт месячные счётчики публикаций по брендам категории.
type QuotaSource interface {
	MonthlyCounts(ctx context.Context, category Key, month string) (map[Key]int, error)
}

// HistorySource одним запросом загружает пары (получатель, путь), которые
// уже были отправлены или стоят в очереди.
type HistorySource interface {
	DeliveredPairs(ctx context.Context, usernames []string) (map[DeliveredPair]struct{}, error)
}

// Catalog — источник видеофайлов (Яндекс Диск).
type Catalog interface {
	ListVideos(ctx context.Context) ([]VideoItem, error)
	DownloadLink(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
}

// Publisher — внешний транспорт публикации (upload-post).
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) error
	Profiles(ctx context.Context) ([]RemoteProfile, error)
}

// Captioner генерирует текст поста для видео.
type Captioner interface {
	Generate(ctx context.Context, videoPath, platform string, client *ClientConfig, author string) (Caption, error)
}

// HistoryRepo управляет записями posting_history.
type HistoryRepo interface {
	InsertQueued(ctx context.Context, rec PostRecord) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status, errMsg string) error
	DueRecords(ctx context.Context, now time.Time) ([]PostRecord, error)
	RecordsByPath(ctx context.Context, path string) ([]PostRecord, error)
	RecentRecords(ctx context.Context, limit int) ([]PostRecord, error)
	OccupiedSlots(ctx context.Context, from time.Time) (map[string][]time.Time, error)
	CountsByDay(ctx context.Context, from time.Time) (map[string]map[string]map[string]int, error)
}

// BrandStatsRepo управляет месячной статистикой брендов.
type BrandStatsRepo interface {
	IncrementPublished(ctx context.Context, category, brand Key, month string) error
	ListBrandStats(ctx context.Context, month string) ([]BrandStat, error)
	SetQuota(ctx context.Context, category, brand Key, month string, quota int) error
}

// SettingsRepo хранит документ настроек.
type SettingsRepo interface {
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// RunQueue — очередь задач на запуск планирования.
type RunQueue interface {
	Enqueue(ctx context.Context, job RunJob) error
	Pop(ctx context.Context) (RunJob, error)
}

// RunGuard сериализует запуски: одновременно выполняется не больше одного.
type RunGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Notifier отправляет служебные уведомления администратору.
type Notifier interface {
	NotifyRun(ctx context.Context, report RunReport) error
	NotifyError(ctx context.Context, component string, err error) error
}
