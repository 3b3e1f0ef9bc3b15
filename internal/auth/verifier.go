package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bigkaa/chanstore/internal/config"
	"github.com/bigkaa/chanstore/internal/domain/model"
)

// Ошибки проверки токена.
var (
	// ErrMissingToken — ни один источник не представил токен.
	ErrMissingToken = errors.New("токен не представлен")
	// ErrInvalidToken — ни один кандидат не совпал с секретом.
	ErrInvalidToken = errors.New("недействительный токен")
)

// SettingsSource — источник настроек для проверки токенов.
// Реализуется service.SettingsService.
type SettingsSource interface {
	Get(ctx context.Context, key string) (string, error)
}

// candidate — кандидат токена от одного источника,
// уже в преобразованном виде.
type candidate struct {
	source string
	value  string
}

// Verifier проверяет токены входящих запросов.
// Кандидаты собираются из трёх источников: cookie, заголовок
// Authorization (Bearer) и query-параметр token. Источник из
// CS_TOKEN_PRIORITY_SOURCE проверяется первым, остальные — в
// фиксированном порядке cookie, header, query.
type Verifier struct {
	settings       SettingsSource
	prioritySource string
	logger         *slog.Logger
}

// NewVerifier создаёт проверку токенов.
func NewVerifier(settings SettingsSource, prioritySource string, logger *slog.Logger) *Verifier {
	return &Verifier{
		settings:       settings,
		prioritySource: prioritySource,
		logger:         logger.With(slog.String("component", "token_verifier")),
	}
}

// Verify проверяет токен запроса.
// Возвращает nil при совпадении любого кандидата с секретом,
// ErrMissingToken при отсутствии кандидатов, ErrInvalidToken
// при несовпадении всех кандидатов; прочие ошибки — сбой сервера
// (недоступные настройки token/token_key).
//
// Побочные эффекты на w: истёкший или нечитаемый cookie удаляется;
// действительный cookie переустанавливается с новым сроком действия,
// даже если совпадение дал другой источник.
func (v *Verifier) Verify(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	secret, err := v.settings.Get(ctx, model.SettingToken)
	if err != nil {
		return fmt.Errorf("загрузка настройки token: %w", err)
	}
	tokenKey, err := v.settings.Get(ctx, model.SettingTokenKey)
	if err != nil {
		return fmt.Errorf("загрузка настройки token_key: %w", err)
	}

	candidates := v.collect(w, r, tokenKey)
	if len(candidates) == 0 {
		return ErrMissingToken
	}

	matched := ""
	for _, c := range candidates {
		if subtle.ConstantTimeCompare([]byte(c.value), []byte(secret)) == 1 {
			matched = c.source
			break
		}
	}
	if matched == "" {
		v.logger.Debug("Ни один кандидат не совпал с секретом",
			slog.Int("candidates", len(candidates)),
		)
		return ErrInvalidToken
	}

	// Продление действительного cookie независимо от источника совпадения
	for _, c := range candidates {
		if c.source != config.SourceCookie {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(c.value), []byte(secret)) == 1 {
			if err := v.refreshCookie(w, tokenKey, c.value); err != nil {
				v.logger.Warn("Не удалось продлить cookie", slog.String("error", err.Error()))
			}
		}
		break
	}

	v.logger.Debug("Токен принят", slog.String("source", matched))
	return nil
}

// collect собирает кандидатов от всех источников в порядке проверки:
// приоритетный источник первым, остальные — cookie, header, query.
func (v *Verifier) collect(w http.ResponseWriter, r *http.Request, tokenKey string) []candidate {
	bySource := map[string]*candidate{}

	if c := v.fromCookie(w, r, tokenKey); c != nil {
		bySource[config.SourceCookie] = c
	}
	if c := v.fromHeader(r, tokenKey); c != nil {
		bySource[config.SourceHeader] = c
	}
	if c := v.fromQuery(r, tokenKey); c != nil {
		bySource[config.SourceQuery] = c
	}

	order := []string{v.prioritySource}
	for _, s := range []string{config.SourceCookie, config.SourceHeader, config.SourceQuery} {
		if s != v.prioritySource {
			order = append(order, s)
		}
	}

	var candidates []candidate
	for _, s := range order {
		if c := bySource[s]; c != nil {
			candidates = append(candidates, *c)
		}
	}
	return candidates
}

// fromCookie извлекает кандидата из cookie.
// Нечитаемый или истёкший конверт удаляет cookie и не даёт кандидата.
// Значение внутри конверта уже преобразовано и сравнивается как есть.
func (v *Verifier) fromCookie(w http.ResponseWriter, r *http.Request, tokenKey string) *candidate {
	cookie, err := r.Cookie(TokenCookieName)
	if err != nil {
		return nil
	}

	cipher, err := NewTokenCipher(tokenKey)
	if err != nil {
		v.logger.Error("Не удалось создать cipher для cookie", slog.String("error", err.Error()))
		return nil
	}

	session, err := cipher.Open(cookie.Value)
	if err != nil {
		v.logger.Debug("Нечитаемый cookie удалён", slog.String("error", err.Error()))
		ClearTokenCookie(w)
		return nil
	}

	if session.IsExpired() {
		v.logger.Debug("Истёкший cookie удалён")
		ClearTokenCookie(w)
		return nil
	}

	return &candidate{source: config.SourceCookie, value: session.Token}
}

// fromHeader извлекает кандидата из заголовка Authorization (Bearer).
// Открытое значение преобразуется перед сравнением.
func (v *Verifier) fromHeader(r *http.Request, tokenKey string) *candidate {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil
	}
	return &candidate{source: config.SourceHeader, value: Transform(token, tokenKey)}
}

// fromQuery извлекает кандидата из query-параметра token.
// Открытое значение преобразуется перед сравнением.
func (v *Verifier) fromQuery(r *http.Request, tokenKey string) *candidate {
	token := r.URL.Query().Get("token")
	if token == "" {
		return nil
	}
	return &candidate{source: config.SourceQuery, value: Transform(token, tokenKey)}
}

// refreshCookie переустанавливает cookie с новым сроком действия.
func (v *Verifier) refreshCookie(w http.ResponseWriter, tokenKey, token string) error {
	cipher, err := NewTokenCipher(tokenKey)
	if err != nil {
		return err
	}
	return cipher.SetTokenCookie(w, token)
}
