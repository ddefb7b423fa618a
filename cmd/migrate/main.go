package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/migrate"
)

const usage = `usage: migrate -cmd <up|down|status|version|create|validate> [flags]

  -dir      read migrations from this directory instead of the embedded set
  -name     migration name, for create
  -version  target version YYYYMMDDHHMMSS, for version`

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory (default: embedded; create uses "+migrate.DefaultDir+")")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version for -cmd=version")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	if err := run(*cmd, *dir, *name, *version); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", *cmd, err)
		os.Exit(1)
	}
}

func run(cmd, dir, name, version string) error {
	switch cmd {
	case "create":
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, name)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.Validate(source(dir)); err != nil {
			return err
		}
		fmt.Println("migrations valid")
		return nil
	case "up", "down", "status":
	case "version":
		if version == "" {
			return fmt.Errorf("-version is required")
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": cmd})
	if cfg.DB.IsSQLite() {
		return fmt.Errorf("goose migrations target postgres; sqlite schemas are created by auto-migrate")
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return err
	}
	m, err := migrate.NewMigrator(sqlDB, source(dir), logg)
	if err != nil {
		return err
	}

	switch cmd {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "version":
		return m.To(ctx, version)
	default:
		pending, err := m.Status(ctx)
		if err == nil {
			fmt.Printf("%d pending migration(s)\n", pending)
		}
		return err
	}
}

func source(dir string) fs.FS {
	if dir == "" {
		return migrate.Migrations()
	}
	return os.DirFS(dir)
}
