package httpd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/net/netutil"

	"github.com/bigkaa/chanstore/internal/config"
)

// Server — HTTP-сервер хранилища с ограничением числа одновременных
// подключений. Лимит вычисляется как CS_ACCEPT_PERMITS_PER_CPU,
// умноженное на число доступных процессоров.
type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	logger     *slog.Logger
	// onShutdown вызывается после остановки сервера, до выхода из Run.
	// Используется для ожидания фоновых upload-горутин.
	onShutdown func()
}

// NewServer создаёт сервер поверх роутера.
// handler — Router, обёрнутый middleware логирования и метрик.
func NewServer(cfg *config.Config, handler http.Handler, logger *slog.Logger, onShutdown func()) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: handler,
		},
		cfg:        cfg,
		logger:     logger,
		onShutdown: onShutdown,
	}
}

// Run запускает сервер и блокируется до SIGINT/SIGTERM.
// При получении сигнала выполняет graceful shutdown с таймаутом
// CS_SHUTDOWN_TIMEOUT, затем дожидается фоновых задач.
func (s *Server) Run() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("ошибка открытия порта %d: %w", s.cfg.Port, err)
	}

	// Семафор одновременных подключений: лишние соединения
	// ждут в очереди accept, а не отклоняются
	maxConns := s.cfg.AcceptPermitsPerCPU * runtime.GOMAXPROCS(0)
	listener = netutil.LimitListener(listener, maxConns)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.Int("port", s.cfg.Port),
			slog.Int("max_connections", maxConns),
			slog.String("version", config.Version),
		)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("ошибка HTTP-сервера: %w", err)
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Ошибка graceful shutdown", slog.String("error", err.Error()))
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("принудительная остановка сервера: %w", closeErr)
		}
	}

	if s.onShutdown != nil {
		s.onShutdown()
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
