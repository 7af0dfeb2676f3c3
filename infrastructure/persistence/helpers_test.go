package persistence

import (
	"context"
	"testing"

	"github.com/helixml/codeframe/domain/cluster"
	"github.com/helixml/codeframe/domain/generation"
	"github.com/helixml/codeframe/internal/database"
	"github.com/stretchr/testify/require"
)

// newTestDB creates a migrated in-memory SQLite database.
// Cannot use testdb package here due to import cycle (testdb imports persistence).
func newTestDB(t *testing.T) database.Database {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewDatabase(ctx, "sqlite:///:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, AutoMigrate(db))
	return db
}

func createGeneration(t *testing.T, db database.Database, categoryID int64) generation.Generation {
	t.Helper()
	g, err := NewGenerationStore(db).Create(context.Background(),
		generation.NewGeneration(categoryID, nil, cluster.DefaultConfig(), "en", "tester"))
	require.NoError(t, err)
	return g
}
