// Точка входа Channel Store — сервиса хранения файлов
// поверх канала платформы сообщений.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bigkaa/chanstore/internal/api/handlers"
	"github.com/bigkaa/chanstore/internal/api/middleware"
	"github.com/bigkaa/chanstore/internal/auth"
	"github.com/bigkaa/chanstore/internal/chanclient"
	"github.com/bigkaa/chanstore/internal/config"
	"github.com/bigkaa/chanstore/internal/database"
	"github.com/bigkaa/chanstore/internal/httpd"
	"github.com/bigkaa/chanstore/internal/repository"
	"github.com/bigkaa/chanstore/internal/server"
	"github.com/bigkaa/chanstore/internal/service"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Channel Store запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.Int("ops_port", cfg.OpsPort),
		slog.String("token_priority_source", cfg.TokenPrioritySource),
		slog.Bool("local_only", cfg.LocalOnly),
	)

	// --- Инициализация компонентов ---

	// 1. PostgreSQL: миграции, пул подключений
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 2. Репозитории и транзакции
	fileRepo := repository.NewFileRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool)
	completer := repository.NewUploadCompleter(repository.NewTxRunner(pool))

	// 3. Клиент API платформы сообщений
	channel := chanclient.New(cfg.ChannelAPIURL, cfg.ChannelBotToken, cfg.ChannelTimeout, logger)

	// 4. Сервисы
	settings := service.NewSettingsService(settingsRepo, cfg, logger)
	storage := service.NewStorageService(fileRepo, completer, channel, settings, logger)

	// 5. Проверка токенов
	verifier := auth.NewVerifier(settings, cfg.TokenPrioritySource, logger)

	// 6. Цепочка gatekeeper'ов: порядок регистрации = порядок выполнения
	chain := httpd.NewChain()
	chain.Use(middleware.LocalityGate(cfg.LocalOnly, logger))
	chain.Use(middleware.TokenGate(verifier, logger))

	// 7. Роутер: статическая регистрация контроллеров
	router := httpd.NewRouter(chain, logger)
	controllers := []httpd.Controller{
		handlers.NewFilesController(storage, logger),
		handlers.NewAuthController(settings, logger),
	}
	for _, c := range controllers {
		if err := router.Register(c); err != nil {
			logger.Error("Ошибка регистрации контроллера", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 8. Внешние обёртки: логирование и метрики видят каждый запрос
	var handler http.Handler = router
	handler = middleware.Metrics()(handler)
	handler = middleware.RequestLogger(logger)(handler)

	// 9. Служебный сервер: health probes и метрики
	ops := server.NewOpsServer(cfg, database.NewReadinessChecker(pool), channel, logger)
	ops.Start()

	// 10. Основной сервер; при shutdown дожидаемся фоновых загрузок
	srv := httpd.NewServer(cfg, handler, logger, func() {
		logger.Info("Ожидание завершения фоновых загрузок")
		storage.Wait()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			logger.Error("Ошибка остановки служебного сервера", slog.String("error", err.Error()))
		}
	})

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Channel Store остановлен")
}
