package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeChecker struct {
	status  string
	message string
}

func (f *fakeChecker) CheckReady() (string, string) { return f.status, f.message }

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func TestHandleLive(t *testing.T) {
	rec := httptest.NewRecorder()
	handleLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Статус: хотели 200, получили %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Разбор ответа: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "chanstore" {
		t.Errorf("Тело ответа: %v", body)
	}
}

func TestHandleReady(t *testing.T) {
	tests := []struct {
		name       string
		db         ReadinessChecker
		channel    ReadinessChecker
		wantStatus int
	}{
		{
			"все зависимости доступны",
			&fakeChecker{status: "ok"},
			&fakeChecker{status: "ok"},
			http.StatusOK,
		},
		{
			"PostgreSQL недоступен",
			&fakeChecker{status: "fail", message: "нет подключения"},
			&fakeChecker{status: "ok"},
			http.StatusServiceUnavailable,
		},
		{
			"канал недоступен",
			&fakeChecker{status: "ok"},
			&fakeChecker{status: "fail", message: "таймаут"},
			http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleReady(tt.db, tt.channel)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("Статус: хотели %d, получили %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestChannelChecker(t *testing.T) {
	t.Run("достижимый API", func(t *testing.T) {
		checker := &channelChecker{pinger: &fakePinger{}}
		if status, _ := checker.CheckReady(); status != "ok" {
			t.Errorf("Статус: хотели ok, получили %s", status)
		}
	})

	t.Run("недостижимый API", func(t *testing.T) {
		checker := &channelChecker{pinger: &fakePinger{err: errors.New("connection refused")}}
		if status, _ := checker.CheckReady(); status != "fail" {
			t.Errorf("Статус: хотели fail, получили %s", status)
		}
	})
}
