package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bigkaa/chanstore/internal/config"
	"github.com/bigkaa/chanstore/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSettingsRepo — репозиторий настроек для тестов со счётчиком обращений.
type fakeSettingsRepo struct {
	values map[string]string
	calls  int
}

func (f *fakeSettingsRepo) Get(_ context.Context, key string) (string, error) {
	f.calls++
	v, ok := f.values[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	return v, nil
}

func settingsTestConfig() *config.Config {
	return &config.Config{
		SettingsCacheSize: 8,
		SettingsCacheTTL:  time.Minute,
	}
}

func TestSettingsService_CachesValues(t *testing.T) {
	repo := &fakeSettingsRepo{values: map[string]string{"channel_id": "42"}}
	svc := NewSettingsService(repo, settingsTestConfig(), testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := svc.Get(ctx, "channel_id")
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		if v != "42" {
			t.Errorf("Get #%d: хотели %q, получили %q", i, "42", v)
		}
	}

	if repo.calls != 1 {
		t.Errorf("Обращения к базе: хотели 1, получили %d", repo.calls)
	}
}

func TestSettingsService_ErrorsNotCached(t *testing.T) {
	repo := &fakeSettingsRepo{values: map[string]string{}}
	svc := NewSettingsService(repo, settingsTestConfig(), testLogger())
	ctx := context.Background()

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Get: хотели ErrNotFound, получили %v", err)
	}

	// Настройка появилась — следующий Get должен её увидеть
	repo.values["missing"] = "now-present"
	v, err := svc.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get после появления: %v", err)
	}
	if v != "now-present" {
		t.Errorf("Get: хотели %q, получили %q", "now-present", v)
	}
}

func TestSettingsService_Invalidate(t *testing.T) {
	repo := &fakeSettingsRepo{values: map[string]string{"token": "old"}}
	svc := NewSettingsService(repo, settingsTestConfig(), testLogger())
	ctx := context.Background()

	if _, err := svc.Get(ctx, "token"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	repo.values["token"] = "new"
	svc.Invalidate("token")

	v, err := svc.Get(ctx, "token")
	if err != nil {
		t.Fatalf("Get после Invalidate: %v", err)
	}
	if v != "new" {
		t.Errorf("Get: хотели %q, получили %q", "new", v)
	}
	if repo.calls != 2 {
		t.Errorf("Обращения к базе: хотели 2, получили %d", repo.calls)
	}
}
