package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SettingsRepository — чтение конфигурационных пар ключ/значение.
// Записи принадлежат внешнему хранилищу, сервис их не изменяет.
type SettingsRepository interface {
	// Get возвращает значение настройки по ключу или ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
}

// settingsRepo — реализация SettingsRepository через pgx.
type settingsRepo struct {
	db DBTX
}

// NewSettingsRepository создаёт репозиторий настроек.
func NewSettingsRepository(db DBTX) SettingsRepository {
	return &settingsRepo{db: db}
}

func (r *settingsRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка чтения настройки %q: %w", key, err)
	}
	return value, nil
}
