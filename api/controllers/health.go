package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/sweetshop-backend/api/responses"
	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is satisfied by the database and redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Sweetshop-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every dependency answers a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Sweetshop-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		var cause error
		for name, dep := range deps {
			if dep == nil {
				checks[name] = "missing"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "down"
				cause = err
				continue
			}
			checks[name] = "ok"
		}
		for _, state := range checks {
			if state == "ok" {
				continue
			}
			err := pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable")
			if cause != nil {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "dependencies unavailable")
			}
			responses.WriteError(r.Context(), logg, w, err.WithDetails(map[string]any{"checks": checks}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
