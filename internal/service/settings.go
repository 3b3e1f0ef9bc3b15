// Пакет service — бизнес-логика Channel Store: управление файлами
// (chunked upload/download через канал платформы сообщений) и
// кешированный доступ к настройкам.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/chanstore/internal/config"
	"github.com/bigkaa/chanstore/internal/repository"
)

// Метрики кеша настроек.
var (
	settingsCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cs_settings_cache_hits_total",
		Help: "Количество попаданий в кеш настроек",
	})
	settingsCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cs_settings_cache_misses_total",
		Help: "Количество промахов кеша настроек",
	})
)

// SettingsService — доступ к настройкам с in-memory кешем.
// Настройки (token, token_key, channel_id) читаются на каждом запросе,
// поэтому кешируются с TTL: изменение настройки в базе становится
// видимым не позднее CS_SETTINGS_CACHE_TTL.
type SettingsService struct {
	repo   repository.SettingsRepository
	cache  *expirable.LRU[string, string]
	logger *slog.Logger
}

// NewSettingsService создаёт сервис настроек с кешем
// размера CS_SETTINGS_CACHE_SIZE и TTL CS_SETTINGS_CACHE_TTL.
func NewSettingsService(repo repository.SettingsRepository, cfg *config.Config, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		cache:  expirable.NewLRU[string, string](cfg.SettingsCacheSize, nil, cfg.SettingsCacheTTL),
		logger: logger.With(slog.String("component", "settings_service")),
	}
}

// Get возвращает значение настройки по ключу.
// Сначала проверяется кеш; промах приводит к чтению из базы
// и записи значения в кеш. Ошибки не кешируются.
func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	if value, ok := s.cache.Get(key); ok {
		settingsCacheHits.Inc()
		return value, nil
	}
	settingsCacheMisses.Inc()

	value, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("чтение настройки %q: %w", key, err)
	}

	s.cache.Add(key, value)
	s.logger.Debug("Настройка загружена из базы", slog.String("key", key))

	return value, nil
}

// Invalidate удаляет настройку из кеша.
func (s *SettingsService) Invalidate(key string) {
	s.cache.Remove(key)
}
