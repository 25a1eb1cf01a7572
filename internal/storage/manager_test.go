package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "uploads")
		_, err := NewLocalStore(dir)
		require.NoError(t, err)
		_, err = os.Stat(dir)
		assert.NoError(t, err)
	})
}

func TestLocalStore_SaveAndRead(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("cores.txt", "text/plain", strings.NewReader("a|b\n1|2\n"))
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, "text/plain", info.ContentType)
	assert.Equal(t, "uploaded", info.Status)

	data, err := store.Read(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "a|b\n1|2\n", string(data))

	require.NoError(t, store.SetStatus(info.ID, "harvested"))
	got, err := store.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "harvested", got.Status)
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := store.Save(name, "", strings.NewReader(name))
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := store.List(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c.txt", list[0].Name)
	assert.Equal(t, "b.txt", list[1].Name)

	all, err := store.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLocalStore_Delete(t *testing.T) {
	store := createTestStore(t)
	info, err := store.Save("a.txt", "", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(info.ID))
	_, err = store.Get(info.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = store.Read(info.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(store.Delete(info.ID), ErrNotFound))
}
