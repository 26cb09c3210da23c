package store

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// openTestStore opens a throwaway store backed by temp directories.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
