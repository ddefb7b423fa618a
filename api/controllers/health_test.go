package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	HealthLive(cfg)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if got := resp.Header().Get("X-Sweetshop-Env"); got != "dev" {
		t.Fatalf("unexpected env header %q", got)
	}
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	cases := []struct {
		name   string
		deps   map[string]Pinger
		status int
	}{
		{name: "all up", deps: map[string]Pinger{"db": ok, "redis": ok}, status: http.StatusOK},
		{name: "redis down", deps: map[string]Pinger{"db": ok, "redis": down}, status: http.StatusServiceUnavailable},
		{name: "db missing", deps: map[string]Pinger{"db": nil, "redis": ok}, status: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
			resp := httptest.NewRecorder()
			HealthReady(cfg, testLogger(), tc.deps)(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("unexpected status %d", resp.Code)
			}
			if tc.status != http.StatusOK {
				if apiErr := decodeError(t, resp); apiErr.Code != string(pkgerrors.CodeDependency) {
					t.Fatalf("unexpected code %s", apiErr.Code)
				}
			}
		})
	}
}
