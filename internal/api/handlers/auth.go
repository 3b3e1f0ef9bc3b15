// auth.go — контроллер выдачи cookie с токеном.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/chanstore/internal/api/errors"
	"github.com/bigkaa/chanstore/internal/auth"
	"github.com/bigkaa/chanstore/internal/domain/model"
	"github.com/bigkaa/chanstore/internal/httpd"
)

// AuthController — маршруты /api/v1/auth.
// Единственный маршрут setup-cookie устанавливает долгоживущий cookie
// с настроенным секретом; доступ к нему контролируют gatekeeper'ы
// токена и локальности.
type AuthController struct {
	settings auth.SettingsSource
	logger   *slog.Logger
}

// NewAuthController создаёт контроллер выдачи cookie.
func NewAuthController(settings auth.SettingsSource, logger *slog.Logger) *AuthController {
	return &AuthController{
		settings: settings,
		logger:   logger.With(slog.String("component", "auth_controller")),
	}
}

// BasePath возвращает базовый путь контроллера.
func (c *AuthController) BasePath() string {
	return "/api/v1/auth"
}

// Routes возвращает маршруты контроллера.
func (c *AuthController) Routes() []httpd.Route {
	return []httpd.Route{
		{Method: http.MethodGet, SubPath: "setup-cookie", Handler: c.SetupCookie},
	}
}

// SetupCookie обрабатывает GET /api/v1/auth/setup-cookie.
// Запечатывает настроенный секрет в cookie со сроком действия
// auth.TokenCookieTTL и возвращает время истечения.
func (c *AuthController) SetupCookie(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	secret, err := c.settings.Get(ctx, model.SettingToken)
	if err != nil {
		c.logger.Error("Настройка token недоступна", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Секрет не настроен")
		return
	}
	tokenKey, err := c.settings.Get(ctx, model.SettingTokenKey)
	if err != nil {
		c.logger.Error("Настройка token_key недоступна", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ключ токена не настроен")
		return
	}

	cipher, err := auth.NewTokenCipher(tokenKey)
	if err != nil {
		c.logger.Error("Ошибка создания cipher", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка выдачи cookie")
		return
	}
	if err := cipher.SetTokenCookie(w, secret); err != nil {
		c.logger.Error("Ошибка установки cookie", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка выдачи cookie")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"expires_at": time.Now().Add(auth.TokenCookieTTL).Unix(),
	})
}
