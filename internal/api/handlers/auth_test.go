package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/chanstore/internal/auth"
	"github.com/bigkaa/chanstore/internal/domain/model"
	"github.com/bigkaa/chanstore/internal/httpd"
)

func authRouter(t *testing.T, settings auth.SettingsSource) *httpd.Router {
	t.Helper()
	router := httpd.NewRouter(httpd.NewChain(), testLogger())
	if err := router.Register(NewAuthController(settings, testLogger())); err != nil {
		t.Fatalf("Register AuthController: %v", err)
	}
	return router
}

func TestSetupCookie(t *testing.T) {
	secret := auth.Transform("plain-token", "key-1")
	router := authRouter(t, &memSettings{values: map[string]string{
		model.SettingToken:    secret,
		model.SettingTokenKey: "key-1",
	}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/setup-cookie", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Статус: хотели 200, получили %d: %s", rec.Code, rec.Body.String())
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("Cookie: хотели 1, получили %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != auth.TokenCookieName {
		t.Errorf("Имя cookie: получили %q", cookie.Name)
	}
	if !cookie.HttpOnly {
		t.Error("Cookie должен быть HttpOnly")
	}
	if cookie.MaxAge != int(auth.TokenCookieTTL.Seconds()) {
		t.Errorf("MaxAge: хотели %d, получили %d", int(auth.TokenCookieTTL.Seconds()), cookie.MaxAge)
	}
}

func TestSetupCookie_MissingSettings(t *testing.T) {
	router := authRouter(t, &memSettings{values: map[string]string{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/setup-cookie", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Статус: хотели 500, получили %d", rec.Code)
	}
}
