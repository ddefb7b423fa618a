package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/sweetshop-backend/api/controllers"
	"github.com/angelmondragon/sweetshop-backend/api/middleware"
	"github.com/angelmondragon/sweetshop-backend/internal/alerts"
	"github.com/angelmondragon/sweetshop-backend/internal/auth"
	"github.com/angelmondragon/sweetshop-backend/internal/checkout"
	"github.com/angelmondragon/sweetshop-backend/internal/orders"
	"github.com/angelmondragon/sweetshop-backend/internal/sweets"
	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/metrics"
	"github.com/angelmondragon/sweetshop-backend/pkg/redis"
)

const (
	replayTTL         = 24 * time.Hour
	checkoutReplayTTL = 7 * 24 * time.Hour
)

// RouterParams groups everything the HTTP surface depends on.
type RouterParams struct {
	Config *config.Config
	Logger *logger.Logger

	DB    db.Pinger
	Redis *redis.Client

	Registry    *prometheus.Registry
	HTTPMetrics *metrics.HTTPMetrics

	Auth          auth.Service
	Register      auth.RegisterService
	AdminRegister auth.AdminRegisterService
	Sweets        sweets.Service
	Checkout      checkout.Service
	Orders        orders.Service
	Alerts        alerts.Service
	DeadLetters   controllers.DeadLetters
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	var (
		replay    middleware.ReplayStore
		limiter   middleware.Limiter
		redisPing controllers.Pinger
	)
	if p.Redis != nil {
		replay = p.Redis
		limiter = p.Redis
		redisPing = p.Redis
	}
	var dbPing controllers.Pinger
	if p.DB != nil {
		dbPing = p.DB
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	replayable := middleware.Idempotent(replay, logg, middleware.Replay{TTL: replayTTL})
	checkoutOnce := middleware.Idempotent(replay, logg, middleware.Replay{TTL: checkoutReplayTTL, Required: true})

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbPing,
			"redis": redisPing,
		}))
	})

	if p.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.With(middleware.Throttle(middleware.LoginThrottle(cfg.AuthRateLimit), limiter, logg)).
			Post("/login", controllers.AuthLogin(p.Auth, logg))
		r.With(middleware.Throttle(middleware.RegisterThrottle(cfg.AuthRateLimit), limiter, logg)).
			Post("/register", controllers.AuthRegister(p.Register, logg))
		if !cfg.App.IsProd() {
			r.Post("/admin/register", controllers.AdminAuthRegister(p.AdminRegister, logg))
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/sweets", func(r chi.Router) {
			r.Get("/", controllers.SweetsList(p.Sweets, logg))
			r.With(middleware.RequireAdmin(logg)).Get("/stats", controllers.SweetsStats(p.Sweets, logg))
			r.With(middleware.RequireAdmin(logg), replayable).Post("/", controllers.SweetsCreate(p.Sweets, logg))

			r.Route("/{sweetId}", func(r chi.Router) {
				r.Get("/", controllers.SweetsGet(p.Sweets, logg))
				r.Post("/purchase", controllers.SweetsPurchase(p.Sweets, logg))

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAdmin(logg))
					r.Put("/", controllers.SweetsUpdate(p.Sweets, logg))
					r.Delete("/", controllers.SweetsDelete(p.Sweets, logg))
					r.With(replayable).Post("/restock", controllers.SweetsRestock(p.Sweets, logg))
					r.Get("/history", controllers.SweetsHistory(p.Sweets, logg))
				})
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(checkoutOnce).Post("/", controllers.OrdersCheckout(p.Checkout, logg))
			r.Get("/my", controllers.OrdersMine(p.Orders, logg))
			r.Get("/{orderId}", controllers.OrdersGet(p.Orders, logg))
		})

		r.Route("/admin/alerts", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))
			r.Get("/", controllers.AlertsList(p.Alerts, logg))
			r.Post("/{alertId}/ack", controllers.AlertsAcknowledge(p.Alerts, logg))
		})

		r.Route("/admin/outbox/dead-letters", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))
			r.Get("/", controllers.DeadLettersList(p.DeadLetters, logg))
			r.Post("/{eventId}/requeue", controllers.DeadLettersRequeue(p.DeadLetters, logg))
		})
	})

	return r
}
