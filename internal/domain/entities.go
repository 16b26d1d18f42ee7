package domain

import "time"

// Платформы публикации, которые поддерживает upload-post.
const (
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformYouTube   = "youtube"
)

// KnownPlatforms перечисляет допустимые платформы.
var KnownPlatforms = []string{PlatformInstagram, PlatformTikTok, PlatformYouTube}

// IsKnownPlatform проверяет имя платформы.
func IsKnownPlatform(name string) bool {
	for _, p := range KnownPlatforms {
		if p == name {
			return true
		}
	}
	return false
}

// VideoItem описывает видеофайл из каталога на Яндекс Диске.
type VideoItem struct {
	Path      string
	Name      string
	MD5       string
	Size      int64
	CreatedAt time.Time
}

// Identity возвращает стабильный идентификатор контента: md5, либо путь,
// если диск не отдал хеш.
func (v VideoItem) Identity() string {
	if v.MD5 != "" {
		return v.MD5
	}
	return v.Path
}

// Profile — аккаунт получателя с подключёнными платформами.
type Profile struct {
	Username  string   `json:"username"`
	ThemeKey  string   `json:"theme_key"`
	Platforms []string `json:"platforms"`
	Enabled   bool     `json:"enabled"`

	// Лимиты постов в день по платформам. nil — не задан, явный 0 означает
	// "платформа выключена для этого профиля".
	InstagramLimit *int `json:"instagramLimit,omitempty"`
	TikTokLimit    *int `json:"tiktokLimit,omitempty"`
	YouTubeLimit   *int `json:"youtubeLimit,omitempty"`

	// Deprecated: единый лимит на все платформы, оставлен для старых конфигов.
	Limit *int `json:"limit,omitempty"`
}

// Active сообщает, участвует ли профиль в планировании.
func (p Profile) Active() bool {
	return p.Enabled && len(p.Platforms) > 0
}

// DailyLimit возвращает лимит профиля для платформы. Порядок:
// платформенный лимит → устаревший общий limit → глобальный лимит.
func (p Profile) DailyLimit(platform string, global GlobalLimits) int {
	var override *int
	switch platform {
	case PlatformInstagram:
		override = p.InstagramLimit
	case PlatformTikTok:
		override = p.TikTokLimit
	case PlatformYouTube:
		override = p.YouTubeLimit
	}
	if override != nil {
		return *override
	}
	if p.Limit != nil {
		return *p.Limit
	}
	return global.For(platform)
}

// GlobalLimits — лимиты постов в день по умолчанию.
type GlobalLimits struct {
	Instagram int `json:"instagram"`
	TikTok    int `json:"tiktok"`
	YouTube   int `json:"youtube"`
}

// For возвращает лимит для платформы.
func (g GlobalLimits) For(platform string) int {
	switch platform {
	case PlatformInstagram:
		return g.Instagram
	case PlatformTikTok:
		return g.TikTok
	case PlatformYouTube:
		return g.YouTube
	}
	return 0
}

// Max возвращает наибольший из глобальных лимитов.
func (g GlobalLimits) Max() int {
	m := g.Instagram
	if g.TikTok > m {
		m = g.TikTok
	}
	if g.YouTube > m {
		m = g.YouTube
	}
	return m
}

// ClientConfig описывает бренд из реестра клиентов: имя, регулярное
// выражение для сопоставления папки и промпт генерации описаний.
type ClientConfig struct {
	Name   string `json:"name"`
	Regex  string `json:"regex"`
	Prompt string `json:"prompt"`
	Quota  int    `json:"quota,omitempty"`
}

// Assignment — результат планировщика: какое видео, кому, куда и когда.
type Assignment struct {
	Video     VideoItem
	Username  string
	Platform  string
	PublishAt time.Time
}

// BrandStat — строка месячной статистики публикаций бренда.
type BrandStat struct {
	Category       Key
	Brand          Key
	Month          string // YYYY-MM
	Quota          int
	PublishedCount int
}

// Статусы записи истории публикаций.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
)

// PostRecord — запись posting_history.
type PostRecord struct {
	ID              int64
	ProfileUsername string
	Platform        string
	VideoPath       string
	VideoName       string
	Author          string
	Status          string
	PostedAt        time.Time
	Meta            map[string]any
}

// DeliveredPair — пара (получатель, путь), уже отправленная или ожидающая
// отправки. Используется проверкой истории в дедупликации.
type DeliveredPair struct {
	Username string
	Path     string
}

// RunJob — задача на запуск планирования в очереди.
type RunJob struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// PublishRequest — запрос на публикацию одного поста через транспорт.
type PublishRequest struct {
	Username string
	Platform string
	VideoURL string
	Caption  string
	Title    string
}

// RemoteProfile — профиль из внешнего API публикации.
type RemoteProfile struct {
	Username  string
	Platforms []string
}

// Caption — сгенерированный текст поста. Title заполняется только для
// YouTube.
type Caption struct {
	Title string
	Body  string
}

// RunReport — итог одного запуска планирования.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Videos     int
	Profiles   int
	Planned    int
	Err        error
}
