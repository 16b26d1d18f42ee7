package profiles

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"posting-scheduler/internal/domain"
)

// SyncReport — итог синхронизации профилей с внешним сервисом.
type SyncReport struct {
	Total    int `json:"total"`
	Added    int `json:"added"`
	Updated  int `json:"updated"`
	Disabled int `json:"disabled"`
}

// Syncer сверяет профили настроек со списком аккаунтов сервиса публикации.
type Syncer struct {
	settings  domain.SettingsRepo
	publisher domain.Publisher
	log       zerolog.Logger
}

// NewSyncer создаёт синхронизатор.
func NewSyncer(settings domain.SettingsRepo, publisher domain.Publisher, log zerolog.Logger) *Syncer {
	return &Syncer{settings: settings, publisher: publisher, log: log}
}

// Sync подтягивает актуальный список профилей: обновляет платформы
// существующих, добавляет новые выключенными и выключает пропавшие.
// Пустой ответ сервиса считаем сбоем и ничего не трогаем.
func (s *Syncer) Sync(ctx context.Context) (SyncReport, error) {
	remote, err := s.publisher.Profiles(ctx)
	if err != nil {
		return SyncReport{}, fmt.Errorf("профили внешнего сервиса: %w", err)
	}
	if len(remote) == 0 {
		return SyncReport{}, fmt.Errorf("внешний сервис вернул пустой список профилей, синхронизация отменена")
	}

	settings, err := s.settings.LoadSettings(ctx)
	if err != nil {
		return SyncReport{}, fmt.Errorf("загрузка настроек: %w", err)
	}

	remoteByName := make(map[string]domain.RemoteProfile, len(remote))
	for _, p := range remote {
		remoteByName[p.Username] = p
	}

	report := SyncReport{Total: len(remote)}
	seen := make(map[string]struct{}, len(settings.Profiles))

	for i := range settings.Profiles {
		profile := &settings.Profiles[i]
		seen[profile.Username] = struct{}{}
		rp, ok := remoteByName[profile.Username]
		if !ok {
			if profile.Enabled {
				profile.Enabled = false
				report.Disabled++
				s.log.Warn().Str("username", profile.Username).Msg("profiles: аккаунт пропал из сервиса, выключаем")
			}
			continue
		}
		if !samePlatforms(profile.Platforms, rp.Platforms) {
			profile.Platforms = rp.Platforms
			report.Updated++
			s.log.Info().Str("username", profile.Username).Strs("platforms", rp.Platforms).Msg("profiles: платформы обновлены")
		}
	}

	// Новые аккаунты добавляем выключенными: тему им назначают вручную.
	names := make([]string, 0, len(remoteByName))
	for name := range remoteByName {
		if _, ok := seen[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		rp := remoteByName[name]
		settings.Profiles = append(settings.Profiles, domain.Profile{
			Username:  rp.Username,
			Platforms: rp.Platforms,
			Enabled:   false,
		})
		report.Added++
		s.log.Info().Str("username", rp.Username).Msg("profiles: добавлен новый аккаунт")
	}

	if report.Added+report.Updated+report.Disabled == 0 {
		return report, nil
	}
	if err := s.settings.SaveSettings(ctx, settings); err != nil {
		return SyncReport{}, fmt.Errorf("сохранение настроек: %w", err)
	}
	return report, nil
}

func samePlatforms(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	for _, p := range b {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}
