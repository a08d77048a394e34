package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAndEnsureSchema(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "folio.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, EnsureSchema(db))
	// Idempotent.
	require.NoError(t, EnsureSchema(db))

	_, err = db.Exec(`INSERT INTO users (id, email, name) VALUES ('u1', 'a@b.c', 'Ann')`)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, EnsureSchema(db))

	_, err = db.Exec(`INSERT INTO users (id, email) VALUES ('u1', 'a@b.c')`)
	require.NoError(t, err)

	var email string
	require.NoError(t, db.QueryRow(`SELECT email FROM users WHERE id = 'u1'`).Scan(&email))
	require.Equal(t, "a@b.c", email)
}
