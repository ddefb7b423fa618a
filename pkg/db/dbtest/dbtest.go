// Package dbtest opens throwaway sqlite databases carrying the full model schema.
package dbtest

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
)

// New returns a migrated in-memory database that is closed when the test ends.
func New(t testing.TB) *db.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := config.DBConfig{
		Driver: config.DBDriverSQLite,
		DSN:    "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared",
	}
	client, err := db.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	if err := client.DB().AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return client
}
