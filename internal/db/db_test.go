package db

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestInitCreatesSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "zones.db")

	pair, err := Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pair.Close() })

	columns, err := tableColumns(pair.Writer(), "audit_events")
	require.NoError(t, err)
	require.True(t, columns["zone_id"])
	require.True(t, columns["request_id"])

	columns, err = tableColumns(pair.Writer(), "settings")
	require.NoError(t, err)
	require.True(t, columns["value"])
}

func TestInitMigratesLegacyAuditTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	pair, err := Init(dbPath)
	require.NoError(t, err)
	_, err = pair.Writer().Exec("DROP TABLE audit_events")
	require.NoError(t, err)
	_, err = pair.Writer().Exec(`CREATE TABLE audit_events (
		event_id TEXT PRIMARY KEY, timestamp TEXT NOT NULL, type TEXT NOT NULL,
		level TEXT NOT NULL, request_id TEXT, message TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}')`)
	require.NoError(t, err)
	require.NoError(t, pair.Close())

	pair, err = Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pair.Close() })

	columns, err := tableColumns(pair.Writer(), "audit_events")
	require.NoError(t, err)
	require.True(t, columns["zone_id"])
}

func TestInitRequiresPath(t *testing.T) {
	_, err := Init("")
	require.Error(t, err)
}
