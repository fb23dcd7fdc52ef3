package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dbpkg "github.com/mfeltz/guardhouse/internal/db"
)

// openTestDB opens a migrated throwaway database plus its write worker.
// Everything is cleaned up with the test's temp dir.
func openTestDB(t *testing.T) (*dbpkg.DB, *dbpkg.Worker) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := dbpkg.Open(ctx, dbpkg.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	require.NoError(t, dbpkg.Migrate(db.Writer))

	worker := dbpkg.NewWorker(db.Writer)
	t.Cleanup(func() {
		worker.Close()
		_ = db.Close()
	})
	return db, worker
}
