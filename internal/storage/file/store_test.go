package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willibrandon/dbpanel/internal/storage"
)

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	ctx := context.Background()

	s := New(path)
	got, err := s.Get(ctx, "connections", []byte("[]"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))

	require.NoError(t, s.Set(ctx, "connections", []byte(`[{"id":"1","name":"local"}]`)))
	require.NoError(t, s.Set(ctx, "other", []byte("x")))

	reopened := New(path)
	got, err = reopened.Get(ctx, "connections", nil)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1","name":"local"}]`, string(got))

	got, err = reopened.Get(ctx, "other", nil)
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connections: [unterminated"), 0600))

	_, err := New(path).Get(context.Background(), "connections", nil)
	var pe *storage.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "get", pe.Op)
}
