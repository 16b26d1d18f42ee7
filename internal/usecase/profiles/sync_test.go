package profiles

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"posting-scheduler/internal/domain"
)

type fakeSettingsRepo struct {
	settings domain.Settings
	saved    bool
}

func (f *fakeSettingsRepo) LoadSettings(context.Context) (domain.Settings, error) {
	return f.settings, nil
}

func (f *fakeSettingsRepo) SaveSettings(_ context.Context, s domain.Settings) error {
	f.settings = s
	f.saved = true
	return nil
}

type fakePublisher struct {
	profiles []domain.RemoteProfile
	err      error
}

func (f *fakePublisher) Publish(context.Context, domain.PublishRequest) error { return nil }

func (f *fakePublisher) Profiles(context.Context) ([]domain.RemoteProfile, error) {
	return f.profiles, f.err
}

func TestSyncUpdatesAddsAndDisables(t *testing.T) {
	repo := &fakeSettingsRepo{settings: domain.Settings{Profiles: []domain.Profile{
		{Username: "known", ThemeKey: "авто", Platforms: []string{domain.PlatformInstagram}, Enabled: true},
		{Username: "gone", ThemeKey: "авто", Platforms: []string{domain.PlatformTikTok}, Enabled: true},
	}}}
	publisher := &fakePublisher{profiles: []domain.RemoteProfile{
		{Username: "known", Platforms: []string{domain.PlatformInstagram, domain.PlatformTikTok}},
		{Username: "fresh", Platforms: []string{domain.PlatformYouTube}},
	}}

	syncer := NewSyncer(repo, publisher, zerolog.Nop())
	report, err := syncer.Sync(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if report.Updated != 1 || report.Added != 1 || report.Disabled != 1 {
		t.Fatalf("неожиданный отчёт: %+v", report)
	}
	if !repo.saved {
		t.Fatalf("изменения должны сохраняться")
	}

	byName := make(map[string]domain.Profile)
	for _, p := range repo.settings.Profiles {
		byName[p.Username] = p
	}
	if len(byName["known"].Platforms) != 2 {
		t.Fatalf("платформы known должны обновиться: %v", byName["known"].Platforms)
	}
	if byName["gone"].Enabled {
		t.Fatalf("пропавший аккаунт должен выключиться")
	}
	fresh, ok := byName["fresh"]
	if !ok {
		t.Fatalf("новый аккаунт должен добавиться")
	}
	if fresh.Enabled {
		t.Fatalf("новый аккаунт добавляется выключенным, тему назначают вручную")
	}
}

func TestSyncAbortsOnEmptyRemote(t *testing.T) {
	repo := &fakeSettingsRepo{settings: domain.Settings{Profiles: []domain.Profile{
		{Username: "known", Enabled: true, Platforms: []string{domain.PlatformInstagram}},
	}}}
	syncer := NewSyncer(repo, &fakePublisher{}, zerolog.Nop())

	if _, err := syncer.Sync(context.Background()); err == nil {
		t.Fatalf("пустой список профилей должен отменять синхронизацию")
	}
	if repo.saved {
		t.Fatalf("при отмене настройки не трогаем")
	}
}

func TestSyncPropagatesPublisherError(t *testing.T) {
	srcErr := errors.New("api недоступен")
	syncer := NewSyncer(&fakeSettingsRepo{}, &fakePublisher{err: srcErr}, zerolog.Nop())

	_, err := syncer.Sync(context.Background())
	if !errors.Is(err, srcErr) {
		t.Fatalf("ожидали обёрнутую ошибку транспорта, получили %v", err)
	}
}

func TestSyncNoChangesSkipsSave(t *testing.T) {
	repo := &fakeSettingsRepo{settings: domain.Settings{Profiles: []domain.Profile{
		{Username: "known", Platforms: []string{domain.PlatformInstagram}, Enabled: true},
	}}}
	publisher := &fakePublisher{profiles: []domain.RemoteProfile{
		{Username: "known", Platforms: []string{domain.PlatformInstagram}},
	}}

	syncer := NewSyncer(repo, publisher, zerolog.Nop())
	report, err := syncer.Sync(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if report.Added+report.Updated+report.Disabled != 0 {
		t.Fatalf("изменений быть не должно: %+v", report)
	}
	if repo.saved {
		t.Fatalf("без изменений сохранение не вызывается")
	}
}
