package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/infra/metrics"
)

// Статусы, которые считаются "доставлено или в работе" для дедупликации и
// подсчёта занятых лимитов.
var deliveredStatuses = []string{domain.StatusQueued, domain.StatusProcessing, domain.StatusSuccess}

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.QuotaSource    = (*Postgres)(nil)
	_ domain.HistorySource  = (*Postgres)(nil)
	_ domain.HistoryRepo    = (*Postgres)(nil)
	_ domain.BrandStatsRepo = (*Postgres)(nil)
	_ domain.SettingsRepo   = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if _, ok := parent.Deadline(); ok {
		return parent, func() {}
	}
	return context.WithTimeout(parent, 5*time.Second)
}

// MonthlyCounts реализует domain.QuotaSource.
func (p *Postgres) MonthlyCounts(ctx context.Context, category domain.Key, month string) (map[domain.Key]int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT brand, published_count FROM brand_stats
WHERE category = $1 AND month = $2
`, category.String(), month)
	metrics.ObserveNetworkRequest("postgres", "monthly_counts", "brand_stats", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка brand_stats: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Key]int)
	for rows.Next() {
		var brand string
		var published int
		if err := rows.Scan(&brand, &published); err != nil {
			return nil, fmt.Errorf("скан brand_stats: %w", err)
		}
		counts[domain.NewKey(brand)] = published
	}
	return counts, rows.Err()
}

// IncrementPublished увеличивает месячный счётчик публикаций бренда.
func (p *Postgres) IncrementPublished(ctx context.Context, category, brand domain.Key, month string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO brand_stats (category, brand, month, published_count, quota, created_at, updated_at)
VALUES ($1, $2, $3, 1, 0, now(), now())
ON CONFLICT (category, brand, month)
DO UPDATE SET published_count = brand_stats.published_count + 1, updated_at = now()
`, category.String(), brand.String(), month)
	metrics.ObserveNetworkRequest("postgres", "increment_published", "brand_stats", start, err)
	return err
}

// SetQuota задаёт квоту бренда на месяц.
func (p *Postgres) SetQuota(ctx context.Context, category, brand domain.Key, month string, quota int) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO brand_stats (category, brand, month, published_count, quota, created_at, updated_at)
VALUES ($1, $2, $3, 0, $4, now(), now())
ON CONFLICT (category, brand, month)
DO UPDATE SET quota = EXCLUDED.quota, updated_at = now()
`, category.String(), brand.String(), month, quota)
	metrics.ObserveNetworkRequest("postgres", "set_quota", "brand_stats", start, err)
	return err
}

// ListBrandStats возвращает статистику брендов за месяц.
func (p *Postgres) ListBrandStats(ctx context.Context, month string) ([]domain.BrandStat, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT category, brand, month, quota, published_count FROM brand_stats
WHERE month = $1
ORDER BY category, brand
`, month)
	metrics.ObserveNetworkRequest("postgres", "list_brand_stats", "brand_stats", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка brand_stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.BrandStat
	for rows.Next() {
		var category, brand, monthValue string
		var stat domain.BrandStat
		if err := rows.Scan(&category, &brand, &monthValue, &stat.Quota, &stat.PublishedCount); err != nil {
			return nil, fmt.Errorf("скан brand_stats: %w", err)
		}
		stat.Category = domain.NewKey(category)
		stat.Brand = domain.NewKey(brand)
		stat.Month = monthValue
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// DeliveredPairs реализует domain.HistorySource: одним запросом отдаёт все
// пары (профиль, путь), которые нельзя отправлять повторно.
func (p *Postgres) DeliveredPairs(ctx context.Context, usernames []string) (map[domain.DeliveredPair]struct{}, error) {
	if len(usernames) == 0 {
		return map[domain.DeliveredPair]struct{}{}, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT profile_username, video_path FROM posting_history
WHERE profile_username = ANY($1) AND status = ANY($2) AND video_path IS NOT NULL
`, usernames, deliveredStatuses)
	metrics.ObserveNetworkRequest("postgres", "delivered_pairs", "posting_history", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка истории доставок: %w", err)
	}
	defer rows.Close()

	pairs := make(map[domain.DeliveredPair]struct{})
	for rows.Next() {
		var pair domain.DeliveredPair
		if err := rows.Scan(&pair.Username, &pair.Path); err != nil {
			return nil, fmt.Errorf("скан истории доставок: %w", err)
		}
		pairs[pair] = struct{}{}
	}
	return pairs, rows.Err()
}

// InsertQueued создаёт запись истории в статусе queued.
func (p *Postgres) InsertQueued(ctx context.Context, rec domain.PostRecord) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	meta := rec.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("marshal meta: %w", err)
	}

	start := time.Now()
	var id int64
	err = p.pool.QueryRow(ctx, `
INSERT INTO posting_history (posted_at, profile_username, platform, video_path, video_name, author, status, meta)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`, rec.PostedAt, rec.ProfileUsername, rec.Platform, rec.VideoPath, rec.VideoName, rec.Author, domain.StatusQueued, payload).Scan(&id)
	metrics.ObserveNetworkRequest("postgres", "insert_queued", "posting_history", start, err)
	if err != nil {
		return 0, fmt.Errorf("вставка posting_history: %w", err)
	}
	return id, nil
}

// UpdateStatus обновляет статус записи; непустой errMsg попадает в meta.
func (p *Postgres) UpdateStatus(ctx context.Context, id int64, status, errMsg string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	meta := map[string]any{}
	if errMsg != "" {
		meta["error"] = errMsg
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE posting_history SET status = $2, meta = posting_history.meta || $3 WHERE id = $1
`, id, status, payload)
	metrics.ObserveNetworkRequest("postgres", "update_status", "posting_history", start, err)
	if err != nil {
		return fmt.Errorf("обновление статуса #%d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("запись #%d не найдена", id)
	}
	return nil
}

// DueRecords возвращает записи в статусе queued с наступившим временем.
func (p *Postgres) DueRecords(ctx context.Context, now time.Time) ([]domain.PostRecord, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, posted_at, profile_username, platform, video_path, video_name, author, status, meta
FROM posting_history
WHERE status = $1 AND posted_at <= $2
ORDER BY posted_at
`, domain.StatusQueued, now)
	metrics.ObserveNetworkRequest("postgres", "due_records", "posting_history", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка очереди публикаций: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// RecordsByPath возвращает все записи по пути видео.
func (p *Postgres) RecordsByPath(ctx context.Context, path string) ([]domain.PostRecord, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, posted_at, profile_username, platform, video_path, video_name, author, status, meta
FROM posting_history
WHERE video_path = $1
`, path)
	metrics.ObserveNetworkRequest("postgres", "records_by_path", "posting_history", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка истории по пути: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// RecentRecords возвращает последние записи истории.
func (p *Postgres) RecentRecords(ctx context.Context, limit int) ([]domain.PostRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, posted_at, profile_username, platform, video_path, video_name, author, status, meta
FROM posting_history
ORDER BY posted_at DESC
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "recent_records", "posting_history", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка истории: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// OccupiedSlots возвращает занятые моменты публикаций по профилям начиная
// с from: всё, что стоит в очереди или уже обрабатывается.
func (p *Postgres) OccupiedSlots(ctx context.Context, from time.Time) (map[string][]time.Time, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT profile_username, posted_at FROM posting_history
WHERE posted_at >= $1 AND status = ANY($2)
`, from, []string{domain.StatusQueued, domain.StatusProcessing})
	metrics.ObserveNetworkRequest("postgres", "occupied_slots", "posting_history", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка занятых слотов: %w", err)
	}
	defer rows.Close()

	slots := make(map[string][]time.Time)
	for rows.Next() {
		var username string
		var at time.Time
		if err := rows.Scan(&username, &at); err != nil {
			return nil, fmt.Errorf("скан занятых слотов: %w", err)
		}
		slots[username] = append(slots[username], at)
	}
	return slots, rows.Err()
}

// CountsByDay возвращает счётчики публикаций: день → профиль → платформа.
// Кормит идемпотентный добор: повторный запуск доводит день до лимита.
// Границы дня считаются в таймзоне from, той же, в которой движок строит
// ключи дней, а не в таймзоне сессии Postgres.
func (p *Postgres) CountsByDay(ctx context.Context, from time.Time) (map[string]map[string]map[string]int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT posted_at, profile_username, platform FROM posting_history
WHERE posted_at >= $1 AND status = ANY($2)
`, from, deliveredStatuses)
	metrics.ObserveNetworkRequest("postgres", "counts_by_day", "posting_history", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка счётчиков: %w", err)
	}
	defer rows.Close()

	loc := from.Location()
	counts := make(map[string]map[string]map[string]int)
	for rows.Next() {
		var at time.Time
		var username, platform string
		if err := rows.Scan(&at, &username, &platform); err != nil {
			return nil, fmt.Errorf("скан счётчиков: %w", err)
		}
		day := dayKey(at, loc)
		if counts[day] == nil {
			counts[day] = make(map[string]map[string]int)
		}
		if counts[day][username] == nil {
			counts[day][username] = make(map[string]int)
		}
		counts[day][username][platform]++
	}
	return counts, rows.Err()
}

// dayKey возвращает ключ дня записи в заданной таймзоне.
func dayKey(at time.Time, loc *time.Location) string {
	return at.In(loc).Format("2006-01-02")
}

// LoadSettings читает документ настроек. Пустая таблица — документ по
// умолчанию, а не ошибка.
func (p *Postgres) LoadSettings(ctx context.Context) (domain.Settings, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var payload []byte
	err := p.pool.QueryRow(ctx, `SELECT document FROM app_settings WHERE id = 1`).Scan(&payload)
	metrics.ObserveNetworkRequest("postgres", "load_settings", "app_settings", start, err)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("чтение настроек: %w", err)
	}

	var settings domain.Settings
	if err := json.Unmarshal(payload, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("декодирование настроек: %w", err)
	}
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

// SaveSettings сохраняет документ настроек.
func (p *Postgres) SaveSettings(ctx context.Context, s domain.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal настроек: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO app_settings (id, document, updated_at)
VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = now()
`, payload)
	metrics.ObserveNetworkRequest("postgres", "save_settings", "app_settings", start, err)
	return err
}

func scanRecords(rows pgx.Rows) ([]domain.PostRecord, error) {
	var records []domain.PostRecord
	for rows.Next() {
		var rec domain.PostRecord
		var videoPath, videoName, author sql.NullString
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.PostedAt, &rec.ProfileUsername, &rec.Platform, &videoPath, &videoName, &author, &rec.Status, &payload); err != nil {
			return nil, fmt.Errorf("скан posting_history: %w", err)
		}
		rec.VideoPath = videoPath.String
		rec.VideoName = videoName.String
		rec.Author = author.String
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &rec.Meta)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
