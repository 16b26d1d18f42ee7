package domain

import (
	"errors"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestDailyLimitFallback(t *testing.T) {
	global := GlobalLimits{Instagram: 10, TikTok: 10, YouTube: 2}

	p := Profile{Username: "acc", Platforms: KnownPlatforms}
	if got := p.DailyLimit(PlatformYouTube, global); got != 2 {
		t.Fatalf("без переопределений ожидали глобальный лимит 2, получили %d", got)
	}

	p.Limit = intPtr(5)
	if got := p.DailyLimit(PlatformInstagram, global); got != 5 {
		t.Fatalf("устаревший limit должен перекрывать глобальный: ожидали 5, получили %d", got)
	}

	p.InstagramLimit = intPtr(0)
	if got := p.DailyLimit(PlatformInstagram, global); got != 0 {
		t.Fatalf("явный 0 выключает платформу: ожидали 0, получили %d", got)
	}
	if got := p.DailyLimit(PlatformTikTok, global); got != 5 {
		t.Fatalf("лимит другой платформы не должен меняться: ожидали 5, получили %d", got)
	}
}

func TestSettingsNormalize(t *testing.T) {
	var s Settings
	s.Normalize()
	if s.CronSchedule != DefaultCronSchedule {
		t.Fatalf("ожидали cron по умолчанию, получили %q", s.CronSchedule)
	}
	if s.Schedule.StartHour != DefaultStartHour || s.Schedule.EndHour != DefaultEndHour {
		t.Fatalf("ожидали окно %d..%d, получили %d..%d", DefaultStartHour, DefaultEndHour, s.Schedule.StartHour, s.Schedule.EndHour)
	}
	if s.MinGapMinutes != DefaultMinGapMinutes {
		t.Fatalf("ожидали minGap %d, получили %d", DefaultMinGapMinutes, s.MinGapMinutes)
	}
}

func TestSettingsValidate(t *testing.T) {
	valid := DefaultSettings()
	valid.Profiles = []Profile{{Username: "acc", Platforms: []string{PlatformInstagram}}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("корректный документ не должен падать: %v", err)
	}

	broken := []func(*Settings){
		func(s *Settings) { s.Schedule.StartHour = 20; s.Schedule.EndHour = 8 },
		func(s *Settings) { s.Schedule.EndHour = 25 },
		func(s *Settings) { s.DaysToGenerate = 0 },
		func(s *Settings) { s.Limits.TikTok = -1 },
		func(s *Settings) { s.Profiles = []Profile{{Username: ""}} },
		func(s *Settings) { s.Profiles = []Profile{{Username: "acc", Platforms: []string{"vk"}}} },
		func(s *Settings) { s.Profiles = []Profile{{Username: "acc", Limit: intPtr(-1)}} },
		func(s *Settings) { s.Clients = []ClientConfig{{Name: ""}} },
	}
	for i, mutate := range broken {
		s := DefaultSettings()
		mutate(&s)
		err := s.Validate()
		if err == nil {
			t.Fatalf("кейс %d: ожидали ошибку валидации", i)
		}
		if !errors.Is(err, ErrInvalidSettings) {
			t.Fatalf("кейс %d: ожидали ErrInvalidSettings, получили %v", i, err)
		}
	}
}

func TestHistoryCheckEnabledDefault(t *testing.T) {
	var s Settings
	if !s.HistoryCheckEnabled() {
		t.Fatalf("без явного значения проверка истории должна быть включена")
	}
	off := false
	s.HistoryCheck = &off
	if s.HistoryCheckEnabled() {
		t.Fatalf("явное false должно выключать проверку истории")
	}
}

func TestQuotasForNormalizesKeys(t *testing.T) {
	s := Settings{BrandQuotas: map[string]map[string]int{
		"Мёд": {"Бренд А": 3, "БрендБ": 1},
	}}
	quotas := s.QuotasFor(NewKey("мед"))
	if len(quotas) != 2 {
		t.Fatalf("ожидали 2 бренда, получили %d", len(quotas))
	}
	if quotas[NewKey("бренд а")] != 3 {
		t.Fatalf("квота бренда должна находиться по нормализованному ключу")
	}
}

func TestQuotasForSeedsClientQuota(t *testing.T) {
	s := Settings{
		Clients: []ClientConfig{
			{Name: "БрендА", Quota: 5},
			{Name: "БрендБ"},
		},
		BrandQuotas: map[string]map[string]int{
			"авто": {"БрендВ": 2, "БрендА": 0},
		},
	}

	quotas := s.QuotasFor(NewKey("авто"))
	if quotas[NewKey("БрендВ")] != 2 {
		t.Fatalf("явная квота категории должна читаться, получили %d", quotas[NewKey("БрендВ")])
	}
	if quotas[NewKey("БрендА")] != 0 {
		t.Fatalf("явный ноль в brandQuotas перекрывает квоту клиента, получили %d", quotas[NewKey("БрендА")])
	}
	if _, ok := quotas[NewKey("БрендБ")]; ok {
		t.Fatalf("клиент без квоты не должен давать запись")
	}

	// Категория без явных записей получает клиентские значения по умолчанию.
	other := s.QuotasFor(NewKey("мёд"))
	if other[NewKey("БрендА")] != 5 {
		t.Fatalf("квота клиента должна работать как значение по умолчанию, получили %d", other[NewKey("БрендА")])
	}
}

func TestVideoIdentityFallback(t *testing.T) {
	withHash := VideoItem{Path: "/a", MD5: "abc"}
	if withHash.Identity() != "abc" {
		t.Fatalf("при наличии md5 идентичность — это md5")
	}
	noHash := VideoItem{Path: "/a"}
	if noHash.Identity() != "/a" {
		t.Fatalf("без md5 идентичность — это путь")
	}
}
