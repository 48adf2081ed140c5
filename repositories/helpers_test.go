package repositories

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) (*badger.DB, *IDGenerator) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	ids := NewIDGenerator(db)
	t.Cleanup(func() {
		_ = ids.Release()
		_ = db.Close()
	})
	return db, ids
}
