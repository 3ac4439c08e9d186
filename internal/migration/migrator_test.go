package migration

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMigrator(t *testing.T) *Migrator {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "migrate_test.db")
	m, err := New(Config{Driver: "sqlite", DatabaseURL: dsn}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMigratorUpDown(t *testing.T) {
	m := newTestMigrator(t)

	require.NoError(t, m.Up())

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// schema is usable after Up
	_, err = m.db.Exec(`INSERT INTO agent_configs (id, company_id) VALUES ('ag_1', 'co_1')`)
	require.NoError(t, err)
	_, err = m.db.Exec(`INSERT INTO contacts (id, company_id, email) VALUES ('ct_1', 'co_1', 'a@b.com')`)
	require.NoError(t, err)

	require.NoError(t, m.Down())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestMigratorUpIsIdempotent(t *testing.T) {
	m := newTestMigrator(t)

	require.NoError(t, m.Up())
	require.NoError(t, m.Up())

	version, _, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestMigratorDownAll(t *testing.T) {
	m := newTestMigrator(t)

	require.NoError(t, m.Up())
	require.NoError(t, m.DownAll())

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)
}

func TestMigratorGoto(t *testing.T) {
	m := newTestMigrator(t)

	require.NoError(t, m.Goto(1))
	version, _, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.Goto(2))
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestMigratorRejectsUnknownDriver(t *testing.T) {
	_, err := New(Config{Driver: "oracle", DatabaseURL: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported migration driver")
}
