package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// Значения по умолчанию для документа настроек.
const (
	DefaultDaysToGenerate = 7
	DefaultStartHour      = 8
	DefaultEndHour        = 23
	DefaultMinGapMinutes  = 45
	DefaultCronSchedule   = "1 0 * * *"
	DefaultTimezone       = "Europe/Moscow"
)

// ErrInvalidSettings возвращается при непроходящем валидацию документе.
var ErrInvalidSettings = errors.New("некорректные настройки")

// ScheduleWindow задаёт дневное окно публикаций.
type ScheduleWindow struct {
	Enabled      bool   `json:"enabled"`
	Timezone     string `json:"timezone"`
	DailyRunTime string `json:"dailyRunTime"`
	StartHour    int    `json:"start_hour"`
	EndHour      int    `json:"end_hour"`
}

// Settings — документ конфигурации планировщика. Хранится одной JSONB-строкой
// в app_settings и валидируется при загрузке, а не в точке использования.
type Settings struct {
	CronSchedule    string                    `json:"cronSchedule"`
	YandexFolders   []string                  `json:"yandexFolders"`
	DaysToGenerate  int                       `json:"daysToGenerate"`
	ThemeAliases    map[string][]string       `json:"themeAliases"`
	BrandQuotas     map[string]map[string]int `json:"brandQuotas"`
	Limits          GlobalLimits              `json:"limits"`
	Profiles        []Profile                 `json:"profiles"`
	Clients         []ClientConfig            `json:"clients"`
	Schedule        ScheduleWindow            `json:"schedule"`
	AllowVideoReuse bool                      `json:"allowVideoReuse"`
	HistoryCheck    *bool                     `json:"historyCheck,omitempty"`
	MinGapMinutes   int                       `json:"minGapMinutes"`
}

// DefaultSettings возвращает документ с безопасными значениями.
func DefaultSettings() Settings {
	return Settings{
		CronSchedule:   DefaultCronSchedule,
		DaysToGenerate: DefaultDaysToGenerate,
		Limits:         GlobalLimits{Instagram: 10, TikTok: 10, YouTube: 2},
		Schedule: ScheduleWindow{
			Enabled:      true,
			Timezone:     DefaultTimezone,
			DailyRunTime: "00:01",
			StartHour:    DefaultStartHour,
			EndHour:      DefaultEndHour,
		},
		MinGapMinutes: DefaultMinGapMinutes,
	}
}

// HistoryCheckEnabled: проверка истории включена, пока её явно не выключили.
func (s Settings) HistoryCheckEnabled() bool {
	if s.HistoryCheck == nil {
		return true
	}
	return *s.HistoryCheck
}

// Normalize заполняет нулевые поля значениями по умолчанию.
func (s *Settings) Normalize() {
	if s.CronSchedule == "" {
		s.CronSchedule = DefaultCronSchedule
	}
	if s.DaysToGenerate <= 0 {
		s.DaysToGenerate = DefaultDaysToGenerate
	}
	if s.Schedule.Timezone == "" {
		s.Schedule.Timezone = DefaultTimezone
	}
	if s.Schedule.StartHour == 0 && s.Schedule.EndHour == 0 {
		s.Schedule.StartHour = DefaultStartHour
		s.Schedule.EndHour = DefaultEndHour
	}
	if s.MinGapMinutes <= 0 {
		s.MinGapMinutes = DefaultMinGapMinutes
	}
}

// Validate проверяет документ целиком. Неисправное регулярное выражение
// клиента не считается фатальным: его отбрасывает классификатор с warning.
func (s Settings) Validate() error {
	if s.Schedule.StartHour < 0 || s.Schedule.StartHour > 23 {
		return fmt.Errorf("%w: start_hour=%d вне диапазона 0..23", ErrInvalidSettings, s.Schedule.StartHour)
	}
	if s.Schedule.EndHour < 0 || s.Schedule.EndHour > 23 {
		return fmt.Errorf("%w: end_hour=%d вне диапазона 0..23", ErrInvalidSettings, s.Schedule.EndHour)
	}
	if s.Schedule.StartHour >= s.Schedule.EndHour {
		return fmt.Errorf("%w: окно публикаций пустое (%d..%d)", ErrInvalidSettings, s.Schedule.StartHour, s.Schedule.EndHour)
	}
	if s.Limits.Instagram < 0 || s.Limits.TikTok < 0 || s.Limits.YouTube < 0 {
		return fmt.Errorf("%w: глобальные лимиты не могут быть отрицательными", ErrInvalidSettings)
	}
	if s.DaysToGenerate < 1 || s.DaysToGenerate > 31 {
		return fmt.Errorf("%w: daysToGenerate=%d вне диапазона 1..31", ErrInvalidSettings, s.DaysToGenerate)
	}
	for _, p := range s.Profiles {
		if p.Username == "" {
			return fmt.Errorf("%w: профиль без username", ErrInvalidSettings)
		}
		for _, platform := range p.Platforms {
			if !IsKnownPlatform(platform) {
				return fmt.Errorf("%w: профиль %s: неизвестная платформа %q", ErrInvalidSettings, p.Username, platform)
			}
		}
		for _, limit := range []*int{p.InstagramLimit, p.TikTokLimit, p.YouTubeLimit, p.Limit} {
			if limit != nil && *limit < 0 {
				return fmt.Errorf("%w: профиль %s: отрицательный лимит", ErrInvalidSettings, p.Username)
			}
		}
	}
	for _, c := range s.Clients {
		if c.Name == "" {
			return fmt.Errorf("%w: клиент без имени", ErrInvalidSettings)
		}
	}
	return nil
}

// QuotasFor возвращает квоты категории с нормализацией ключей брендов.
// Квота из карточки клиента задаёт значение по умолчанию для всех категорий;
// запись в brandQuotas перекрывает его, в том числе явным нулём.
func (s Settings) QuotasFor(category Key) map[Key]int {
	out := make(map[Key]int)
	for _, c := range s.Clients {
		if c.Quota > 0 {
			out[NewKey(c.Name)] = c.Quota
		}
	}
	for rawCategory, brands := range s.BrandQuotas {
		if NewKey(rawCategory) != category {
			continue
		}
		for rawBrand, quota := range brands {
			out[NewKey(rawBrand)] = quota
		}
	}
	return out
}

// CompileRegex компилирует регулярное выражение клиента. Ошибка не фатальна.
func (c ClientConfig) CompileRegex() (*regexp.Regexp, error) {
	if c.Regex == "" {
		return nil, nil
	}
	return regexp.Compile(c.Regex)
}
