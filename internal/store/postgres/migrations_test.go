package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/10_later.sql":  {Data: []byte("SELECT 10;")},
		"migrations/2_second.sql":  {Data: []byte("SELECT 2;")},
		"migrations/1_initial.sql": {Data: []byte("SELECT 1;")},
		"migrations/README.md":     {Data: []byte("ignored")},
		"migrations/noversion.sql": {Data: []byte("ignored")},
		"migrations/x_invalid.sql": {Data: []byte("ignored")},
	}

	migrations, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	require.Equal(t, 1, migrations[0].version)
	require.Equal(t, 2, migrations[1].version)
	require.Equal(t, 10, migrations[2].version)
	require.Equal(t, "SELECT 10;", migrations[2].content)
}

func TestLoadMigrations_embedded(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	require.Equal(t, 1, migrations[0].version)
	require.Contains(t, migrations[0].content, "leads_owner_company_key")
}
