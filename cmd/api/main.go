package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/sweetshop-backend/api/routes"
	"github.com/angelmondragon/sweetshop-backend/internal/alerts"
	"github.com/angelmondragon/sweetshop-backend/internal/auth"
	"github.com/angelmondragon/sweetshop-backend/internal/checkout"
	"github.com/angelmondragon/sweetshop-backend/internal/ledger"
	"github.com/angelmondragon/sweetshop-backend/internal/orders"
	"github.com/angelmondragon/sweetshop-backend/internal/sweets"
	"github.com/angelmondragon/sweetshop-backend/internal/users"
	"github.com/angelmondragon/sweetshop-backend/pkg/bootstrap"
	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/metrics"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox"
)

const shutdownGrace = 15 * time.Second

func main() {
	os.Exit(bootstrap.Main("api", run))
}

func run(ctx context.Context, p *bootstrap.Process) error {
	cfg, logg := p.Config, p.Logger
	dbClient, err := p.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := p.Redis(ctx)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	params, err := buildServices(cfg, logg, dbClient, metrics.NewInventoryMetrics(registry))
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	params.Config = cfg
	params.Logger = logg
	params.DB = dbClient
	params.Redis = redisClient
	params.Registry = registry
	params.HTTPMetrics = metrics.NewHTTPMetrics(registry)

	server := &http.Server{
		Addr:              listenAddr(cfg.App.Port),
		Handler:           routes.NewRouter(params),
		ReadTimeout:       cfg.App.ReadTimeout,
		ReadHeaderTimeout: cfg.App.ReadTimeout,
		WriteTimeout:      cfg.App.WriteTimeout,
	}
	return serve(logg.WithField(ctx, "addr", server.Addr), logg, server)
}

// serve runs server until ctx is canceled, then drains in-flight requests for up to shutdownGrace.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server) error {
	failed := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
		close(failed)
	}()
	logg.Info(ctx, "api server listening")

	select {
	case err := <-failed:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return ctx.Err()
}

// listenAddr prefers the platform's PORT over the configured one.
func listenAddr(configured string) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + configured
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, inventoryMetrics *metrics.InventoryMetrics) (routes.RouterParams, error) {
	var params routes.RouterParams

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return params, err
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		return params, err
	}
	adminRegisterService, err := auth.NewAdminRegisterService(auth.AdminRegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return params, err
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return params, err
	}
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	sweetsRepo := sweets.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())

	sweetsService, err := sweets.NewService(sweets.ServiceParams{
		Repo:              sweetsRepo,
		Ledger:            ledgerService,
		Outbox:            outboxService,
		TxRunner:          dbClient,
		Metrics:           inventoryMetrics,
		Logger:            logg,
		LowStockThreshold: cfg.Inventory.LowStockThreshold,
	})
	if err != nil {
		return params, err
	}
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		TxRunner:   dbClient,
		SweetsRepo: sweetsRepo,
		OrdersRepo: ordersRepo,
		Ledger:     ledgerService,
		Outbox:     outboxService,
		Metrics:    inventoryMetrics,
		Logger:     logg,
	})
	if err != nil {
		return params, err
	}
	ordersService, err := orders.NewService(ordersRepo)
	if err != nil {
		return params, err
	}
	alertsService, err := alerts.NewService(alerts.NewRepository(dbClient.DB()))
	if err != nil {
		return params, err
	}

	params.Auth = authService
	params.Register = registerService
	params.AdminRegister = adminRegisterService
	params.Sweets = sweetsService
	params.Checkout = checkoutService
	params.Orders = ordersService
	params.Alerts = alertsService
	params.DeadLetters = outbox.NewDeadLetterService(dbClient.DB(), logg)
	return params, nil
}
