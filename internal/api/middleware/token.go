// token.go — gatekeeper проверки токена для защищённых маршрутов.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/chanstore/internal/api/errors"
	"github.com/bigkaa/chanstore/internal/auth"
	"github.com/bigkaa/chanstore/internal/httpd"
)

// TokenGate возвращает gatekeeper, пропускающий только запросы
// с действительным токеном. Область действия — /api/v1.
func TokenGate(verifier *auth.Verifier, logger *slog.Logger) httpd.Gatekeeper {
	return httpd.Gatekeeper{
		Pattern: "/api/v1",
		Handle: func(w http.ResponseWriter, r *http.Request) bool {
			err := verifier.Verify(w, r)
			if err == nil {
				return true
			}

			switch {
			case errors.Is(err, auth.ErrMissingToken):
				apierrors.MissingToken(w)
			case errors.Is(err, auth.ErrInvalidToken):
				apierrors.InvalidToken(w)
			default:
				// Сбой настроек token/token_key — вина сервера
				logger.Error("Сбой проверки токена",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.InternalError(w, "Ошибка проверки токена")
			}
			return false
		},
	}
}
