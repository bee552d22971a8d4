package db

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNames_SortedAndFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_chat.sql": {Data: []byte("SELECT 2;")},
		"migrations/0001_init.sql": {Data: []byte("SELECT 1;")},
		"migrations/README.md":     {Data: []byte("docs")},
	}

	names, err := migrationNames(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"migrations/0001_init.sql", "migrations/0002_chat.sql"}, names)
}

func TestEmbeddedMigrations_ContainSchema(t *testing.T) {
	names, err := migrationNames(Migrations)
	require.NoError(t, err)
	require.NotEmpty(t, names)

	body, err := fs.ReadFile(Migrations, names[0])
	require.NoError(t, err)

	sql := string(body)
	for _, table := range []string{"users", "orders", "disputes", "ratings", "chat_messages"} {
		assert.True(t, strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table), table)
	}
	assert.Contains(t, sql, "uq_disputes_open_order")
}
