// locality.go — gatekeeper локальности для маршрутов /api/v1/auth.
package middleware

import (
	"log/slog"
	"net"
	"net/http"

	apierrors "github.com/bigkaa/chanstore/internal/api/errors"
	"github.com/bigkaa/chanstore/internal/httpd"
)

// LocalityGate возвращает gatekeeper, ограничивающий выдачу cookie
// локальными вызовами: при CS_LOCAL_ONLY=true запросы к /api/v1/auth
// принимаются только с loopback-адресов.
func LocalityGate(localOnly bool, logger *slog.Logger) httpd.Gatekeeper {
	return httpd.Gatekeeper{
		Pattern: "/api/v1/auth",
		Handle: func(w http.ResponseWriter, r *http.Request) bool {
			if !localOnly {
				return true
			}

			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			ip := net.ParseIP(host)
			if ip != nil && ip.IsLoopback() {
				return true
			}

			logger.Warn("Запрос к auth не с loopback-адреса отклонён",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("path", r.URL.Path),
			)
			apierrors.Forbidden(w, apierrors.CodeForbidden, "Выдача cookie доступна только локально")
			return false
		},
	}
}
