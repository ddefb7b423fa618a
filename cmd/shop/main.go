// Command shop is a terminal storefront. The cart lives on disk under the sweetshop_cart key and
// every stock decision is made by the API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/sweetshop-backend/internal/cart"
	"github.com/angelmondragon/sweetshop-backend/pkg/client"
	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logg := logger.New(logger.Options{ServiceName: "shop", Level: logger.ParseLevel("warn"), Output: os.Stderr})
	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		logg.Error(context.Background(), "failed to load client config", err)
		return 1
	}

	dir := cfg.CartDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			logg.Error(context.Background(), "cannot resolve cart directory", err)
			return 1
		}
		dir = filepath.Join(base, "sweetshop")
	}
	store, err := cart.NewFileStore(dir)
	if err != nil {
		logg.Error(context.Background(), "failed to open cart store", err)
		return 1
	}

	api, err := client.New(client.Options{BaseURL: cfg.BaseURL, Token: cfg.Token, Timeout: cfg.Timeout})
	if err != nil {
		logg.Error(context.Background(), "failed to create api client", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &shop{api: api, store: store, out: os.Stdout}
	if err := s.dispatch(ctx, args); err != nil {
		return report(err)
	}
	return 0
}

func report(err error) int {
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "commands:")
		for _, name := range commandNames() {
			fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
		}
		return 2
	}
	if typed := pkgerrors.As(err); typed != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", typed.Code(), typed.Message())
		return 1
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}
