// Пакет config — загрузка и валидация конфигурации Channel Store
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые значения приоритетного источника токена.
const (
	SourceCookie = "cookie"
	SourceHeader = "header"
	SourceQuery  = "query"
)

// Config содержит все параметры конфигурации Channel Store.
type Config struct {
	// Порт основного HTTP API
	Port int
	// Порт служебного сервера (metrics, health)
	OpsPort int

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Пользователь PostgreSQL
	DBUser string
	// Пароль PostgreSQL
	DBPassword string
	// Имя базы данных
	DBName string
	// Режим SSL подключения к PostgreSQL
	DBSSLMode string

	// Базовый URL REST API платформы каналов
	ChannelAPIURL string
	// Bot-токен для авторизации запросов к платформе каналов
	ChannelBotToken string
	// Таймаут HTTP-клиента платформы каналов
	ChannelTimeout time.Duration

	// Приоритетный источник токена при проверке (cookie, header, query)
	TokenPrioritySource string
	// Отдавать setup-cookie только loopback-клиентам
	LocalOnly bool

	// Количество accept-разрешений на один процессор
	AcceptPermitsPerCPU int
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Максимальный размер кэша настроек
	SettingsCacheSize int
	// TTL записи кэша настроек
	SettingsCacheTTL time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// CS_PORT — порт основного API (по умолчанию 8020)
	cfg.Port, err = getEnvInt("CS_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("CS_PORT: %w", err)
	}

	// CS_OPS_PORT — порт служебного сервера (по умолчанию 8021)
	cfg.OpsPort, err = getEnvInt("CS_OPS_PORT", 8021)
	if err != nil {
		return nil, fmt.Errorf("CS_OPS_PORT: %w", err)
	}
	if cfg.OpsPort == cfg.Port {
		return nil, fmt.Errorf("CS_OPS_PORT: не может совпадать с CS_PORT (%d)", cfg.Port)
	}

	// --- PostgreSQL ---

	// CS_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("CS_DB_HOST")
	if err != nil {
		return nil, err
	}

	// CS_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("CS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CS_DB_PORT: %w", err)
	}

	// CS_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("CS_DB_USER")
	if err != nil {
		return nil, err
	}

	// CS_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("CS_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// CS_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("CS_DB_NAME")
	if err != nil {
		return nil, err
	}

	// CS_DB_SSLMODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("CS_DB_SSLMODE", "disable")

	// --- Платформа каналов ---

	// CS_CHANNEL_API_URL — обязательный
	cfg.ChannelAPIURL, err = getEnvRequired("CS_CHANNEL_API_URL")
	if err != nil {
		return nil, err
	}
	cfg.ChannelAPIURL = strings.TrimRight(cfg.ChannelAPIURL, "/")

	// CS_CHANNEL_BOT_TOKEN — обязательный
	cfg.ChannelBotToken, err = getEnvRequired("CS_CHANNEL_BOT_TOKEN")
	if err != nil {
		return nil, err
	}

	// CS_CHANNEL_TIMEOUT — таймаут запросов к платформе (по умолчанию 60s).
	// Должен покрывать загрузку 8 MiB вложения на медленном аплинке.
	cfg.ChannelTimeout, err = getEnvDuration("CS_CHANNEL_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CS_CHANNEL_TIMEOUT: %w", err)
	}

	// --- Проверка токена ---

	// CS_TOKEN_PRIORITY_SOURCE — приоритетный источник (по умолчанию header)
	cfg.TokenPrioritySource = getEnvDefault("CS_TOKEN_PRIORITY_SOURCE", SourceHeader)
	switch cfg.TokenPrioritySource {
	case SourceCookie, SourceHeader, SourceQuery:
	default:
		return nil, fmt.Errorf("CS_TOKEN_PRIORITY_SOURCE: недопустимое значение %q, допустимые: cookie, header, query",
			cfg.TokenPrioritySource)
	}

	// CS_LOCAL_ONLY — ограничить setup-cookie loopback-клиентами (по умолчанию false)
	cfg.LocalOnly, err = getEnvBool("CS_LOCAL_ONLY", false)
	if err != nil {
		return nil, fmt.Errorf("CS_LOCAL_ONLY: %w", err)
	}

	// --- HTTP-сервер ---

	// CS_ACCEPT_PERMITS_PER_CPU — accept-разрешений на процессор (по умолчанию 8)
	cfg.AcceptPermitsPerCPU, err = getEnvInt("CS_ACCEPT_PERMITS_PER_CPU", 8)
	if err != nil {
		return nil, fmt.Errorf("CS_ACCEPT_PERMITS_PER_CPU: %w", err)
	}
	if cfg.AcceptPermitsPerCPU <= 0 {
		return nil, fmt.Errorf("CS_ACCEPT_PERMITS_PER_CPU: значение должно быть положительным")
	}

	// CS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("CS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Кэш настроек ---

	// CS_SETTINGS_CACHE_SIZE — размер LRU-кэша настроек (по умолчанию 64)
	cfg.SettingsCacheSize, err = getEnvInt("CS_SETTINGS_CACHE_SIZE", 64)
	if err != nil {
		return nil, fmt.Errorf("CS_SETTINGS_CACHE_SIZE: %w", err)
	}
	if cfg.SettingsCacheSize <= 0 {
		return nil, fmt.Errorf("CS_SETTINGS_CACHE_SIZE: значение должно быть положительным")
	}

	// CS_SETTINGS_CACHE_TTL — TTL записи кэша настроек (по умолчанию 1m)
	cfg.SettingsCacheTTL, err = getEnvDuration("CS_SETTINGS_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CS_SETTINGS_CACHE_TTL: %w", err)
	}

	// --- Логирование ---

	// CS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CS_LOG_LEVEL: %w", err)
	}

	// CS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1m, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
