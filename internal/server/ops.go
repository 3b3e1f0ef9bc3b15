// Пакет server — служебный HTTP-сервер Channel Store.
// Отдельный порт для health probes и Prometheus метрик: эти endpoints
// не проходят через собственный фреймворк и не требуют токена.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/chanstore/internal/config"
)

// ReadinessChecker — проверка готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// Pinger — проверка достижимости внешнего API.
type Pinger interface {
	Ping(ctx context.Context) error
}

// channelChecker адаптирует Pinger канала к ReadinessChecker.
type channelChecker struct {
	pinger Pinger
}

func (c *channelChecker) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.pinger.Ping(ctx); err != nil {
		return "fail", err.Error()
	}
	return "ok", "API платформы достижим"
}

// OpsServer — сервер health/metrics на CS_OPS_PORT.
type OpsServer struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// checkResult — результат проверки одной зависимости.
type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewOpsServer создаёт служебный сервер.
// dbChecker — проверка PostgreSQL, channelPinger — проверка API платформы.
func NewOpsServer(cfg *config.Config, dbChecker ReadinessChecker, channelPinger Pinger, logger *slog.Logger) *OpsServer {
	chChecker := &channelChecker{pinger: channelPinger}

	router := chi.NewRouter()
	router.Get("/health/live", handleLive)
	router.Get("/health/ready", handleReady(dbChecker, chChecker))
	router.Handle("/metrics", promhttp.Handler())

	return &OpsServer{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.OpsPort),
			Handler: router,
		},
		logger: logger.With(slog.String("component", "ops_server")),
	}
}

// Start запускает служебный сервер в фоне.
// Ошибки запуска логируются: падение служебного сервера
// не должно останавливать обслуживание файлов.
func (s *OpsServer) Start() {
	go func() {
		s.logger.Info("Служебный сервер запущен", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Ошибка служебного сервера", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown останавливает служебный сервер.
func (s *OpsServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleLive — liveness probe: процесс жив.
func handleLive(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   config.Version,
		"service":   "chanstore",
	})
}

// handleReady — readiness probe: PostgreSQL и API платформы доступны.
// Возвращает 200 при полной готовности, 503 при сбое любой зависимости.
func handleReady(dbChecker, chChecker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus, dbMsg := dbChecker.CheckReady()
		chStatus, chMsg := chChecker.CheckReady()

		status := "ok"
		httpStatus := http.StatusOK
		if dbStatus != "ok" || chStatus != "ok" {
			status = "fail"
			httpStatus = http.StatusServiceUnavailable
		}

		writeHealth(w, httpStatus, map[string]any{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   config.Version,
			"service":   "chanstore",
			"checks": map[string]checkResult{
				"postgresql": {Status: dbStatus, Message: dbMsg},
				"channel":    {Status: chStatus, Message: chMsg},
			},
		})
	}
}

func writeHealth(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
