package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"posting-scheduler/internal/domain"
	"posting-scheduler/internal/infra/events"
	"posting-scheduler/internal/usecase/profiles"
)

// Список профилей внешнего сервиса кэшируется ненадолго: он нужен фронту
// часто, а API upload-post медленный.
const profileCacheKey = "cache:remote_profiles"

const profileCacheTTL = 5 * time.Minute

// byteCache — TTL-хранилище для кэширования ответов внешних API.
type byteCache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Handler — HTTP API управления планировщиком.
type Handler struct {
	settings    domain.SettingsRepo
	history     domain.HistoryRepo
	brandStats  domain.BrandStatsRepo
	runs        domain.RunQueue
	publisher   domain.Publisher
	cache       byteCache
	syncer      *profiles.Syncer
	broadcaster *events.Broadcaster
	log         zerolog.Logger
}

// NewHandler создаёт обработчик API. cache может быть nil — тогда список
// профилей запрашивается напрямую.
func NewHandler(
	settings domain.SettingsRepo,
	history domain.HistoryRepo,
	brandStats domain.BrandStatsRepo,
	runs domain.RunQueue,
	publisher domain.Publisher,
	cache byteCache,
	syncer *profiles.Syncer,
	broadcaster *events.Broadcaster,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		settings:    settings,
		history:     history,
		brandStats:  brandStats,
		runs:        runs,
		publisher:   publisher,
		cache:       cache,
		syncer:      syncer,
		broadcaster: broadcaster,
		log:         log,
	}
}

// Register вешает маршруты API на роутер.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", h.triggerRun)
		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.putSettings)
		r.Get("/history", h.getHistory)
		r.Get("/stats/brands", h.getBrandStats)
		r.Put("/stats/brands/quota", h.putBrandQuota)
		r.Get("/profiles", h.getProfiles)
		r.Post("/profiles/sync", h.syncProfiles)
		r.Get("/events", h.streamEvents)
	})
}

// triggerRun ставит в очередь внеплановый запуск планирования.
func (h *Handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	job := domain.RunJob{
		ID:          uuid.NewString(),
		Reason:      "manual",
		RequestedAt: time.Now().UTC(),
	}
	if err := h.runs.Enqueue(r.Context(), job); err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("постановка запуска в очередь: %w", err))
		return
	}
	h.log.Info().Str("run_id", job.ID).Msg("api: запуск поставлен в очередь")
	h.writeJSON(w, http.StatusAccepted, map[string]any{"run_id": job.ID, "status": "queued"})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.LoadSettings(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("загрузка настроек: %w", err))
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("разбор тела запроса: %w", err))
		return
	}
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		if errors.Is(err, domain.ErrInvalidSettings) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := h.settings.SaveSettings(r.Context(), settings); err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("сохранение настроек: %w", err))
		return
	}
	h.log.Info().Msg("api: настройки обновлены")
	h.writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("limit должен быть числом 1..1000"))
			return
		}
		limit = parsed
	}
	records, err := h.history.RecentRecords(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("выборка истории: %w", err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": toHistoryItems(records)})
}

type historyItem struct {
	ID       int64          `json:"id"`
	Username string         `json:"username"`
	Platform string         `json:"platform"`
	Video    string         `json:"video"`
	Author   string         `json:"author,omitempty"`
	Status   string         `json:"status"`
	PostedAt time.Time      `json:"posted_at"`
	Meta     map[string]any `json:"meta,omitempty"`
}

func toHistoryItems(records []domain.PostRecord) []historyItem {
	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		items = append(items, historyItem{
			ID:       rec.ID,
			Username: rec.ProfileUsername,
			Platform: rec.Platform,
			Video:    rec.VideoName,
			Author:   rec.Author,
			Status:   rec.Status,
			PostedAt: rec.PostedAt,
			Meta:     rec.Meta,
		})
	}
	return items
}

func (h *Handler) getBrandStats(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month == "" {
		month = time.Now().UTC().Format("2006-01")
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("month должен иметь формат YYYY-MM"))
		return
	}
	stats, err := h.brandStats.ListBrandStats(r.Context(), month)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("статистика брендов: %w", err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"month": month, "items": stats})
}

type quotaRequest struct {
	Category string `json:"category"`
	Brand    string `json:"brand"`
	Month    string `json:"month"`
	Quota    int    `json:"quota"`
}

// putBrandQuota задаёт месячную квоту бренда.
func (h *Handler) putBrandQuota(w http.ResponseWriter, r *http.Request) {
	var req quotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("разбор тела запроса: %w", err))
		return
	}
	if req.Month == "" {
		req.Month = time.Now().UTC().Format("2006-01")
	}
	if _, err := time.Parse("2006-01", req.Month); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("month должен иметь формат YYYY-MM"))
		return
	}
	if req.Quota < 0 {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("quota не может быть отрицательной"))
		return
	}
	category := domain.NewKey(req.Category)
	brand := domain.NewKey(req.Brand)
	if category.IsUnknown() || brand.IsUnknown() {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("category и brand обязательны"))
		return
	}
	if err := h.brandStats.SetQuota(r.Context(), category, brand, req.Month, req.Quota); err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("сохранение квоты: %w", err))
		return
	}
	h.log.Info().Str("category", category.String()).Str("brand", brand.String()).Int("quota", req.Quota).Msg("api: квота обновлена")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"category": category.String(),
		"brand":    brand.String(),
		"month":    req.Month,
		"quota":    req.Quota,
	})
}

// getProfiles возвращает профили сервиса публикации с коротким кэшем.
func (h *Handler) getProfiles(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		if data, err := h.cache.Get(r.Context(), profileCacheKey); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
	}

	remote, err := h.publisher.Profiles(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadGateway, fmt.Errorf("профили внешнего сервиса: %w", err))
		return
	}
	payload, err := json.Marshal(map[string]any{"items": remote})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(r.Context(), profileCacheKey, payload, profileCacheTTL); err != nil {
			h.log.Warn().Err(err).Msg("api: не удалось закэшировать профили")
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) syncProfiles(w http.ResponseWriter, r *http.Request) {
	report, err := h.syncer.Sync(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadGateway, fmt.Errorf("синхронизация профилей: %w", err))
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// streamEvents отдаёт поток событий через Server-Sent Events.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("поток событий не поддерживается"))
		return
	}
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = events.ChannelAll
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": connected to %s\n\n", channel)
	flusher.Flush()

	ch := h.broadcaster.Subscribe(channel)
	defer h.broadcaster.Unsubscribe(channel, ch)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("api: не удалось сериализовать ответ")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		h.log.Error().Err(err).Msg("api: внутренняя ошибка")
	} else {
		h.log.Warn().Err(err).Msg("api: ошибка запроса")
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
