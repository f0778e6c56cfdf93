package testhelpers

import (
	"context"
	"database/sql"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/database"
)

// NewSQLiteDB returns a private in-memory SQLite database with migrations applied.
// It is closed when the test finishes.
func NewSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(db, database.TypeSQLite, zap.NewNop()); err != nil {
		t.Fatalf("failed to run sqlite migrations: %v", err)
	}
	return db
}
