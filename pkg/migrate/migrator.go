package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
)

// DefaultDir is where new migration files are created in the source tree.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations is the SQL migration set compiled into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrator applies goose SQL migrations to Postgres. sqlite schemas come from the gorm models
// instead, see MaybeRunDev.
type Migrator struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewMigrator(db *sql.DB, fsys fs.FS, logg *logger.Logger) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if err := Validate(fsys); err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider, logg: logg}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	m.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	result, err := m.provider.Down(ctx)
	if result != nil {
		m.report(ctx, result)
	}
	if err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// To moves the schema up or down until target (YYYYMMDDHHMMSS) is the current version.
func (m *Migrator) To(ctx context.Context, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || version < 0 {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", target)
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		m.logg.Info(m.logg.WithField(ctx, "version", version), "schema already at target version")
		return nil
	case current < version:
		results, err = m.provider.UpTo(ctx, version)
	default:
		results, err = m.provider.DownTo(ctx, version)
	}
	m.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, version, err)
	}
	return nil
}

// Status logs each known migration with its applied state and returns the pending count.
func (m *Migrator) Status(ctx context.Context) (int, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("goose status: %w", err)
	}
	pending := 0
	for _, s := range statuses {
		fields := map[string]any{"version": s.Source.Version, "file": s.Source.Path, "state": string(s.State)}
		if s.State == goose.StateApplied {
			fields["applied_at"] = s.AppliedAt
		} else {
			pending++
		}
		m.logg.Info(m.logg.WithFields(ctx, fields), "migration")
	}
	return pending, nil
}

func (m *Migrator) report(ctx context.Context, results ...*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		logCtx := m.logg.WithFields(ctx, map[string]any{
			"version":     r.Source.Version,
			"file":        r.Source.Path,
			"direction":   r.Direction,
			"duration_ms": r.Duration.Milliseconds(),
		})
		if r.Error != nil {
			m.logg.Error(logCtx, "migration failed", r.Error)
			continue
		}
		m.logg.Info(logCtx, "migration applied")
	}
}
