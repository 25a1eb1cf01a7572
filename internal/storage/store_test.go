package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBatch(url string, n int) *models.Batch {
	desc := models.SourceDescriptor{URL: url, Name: filepath.Base(url)}
	meta := models.NewProcessingMeta(desc, time.Now().UTC())
	meta.Normalizer = "tabular"
	b := &models.Batch{Source: desc, Meta: meta}
	for i := 0; i < n; i++ {
		f := models.NewFields()
		f.SetString("title", "Sample")
		f.Set("index", models.Number(float64(i)))
		rec := models.NewRecord(f)
		if i%2 == 0 {
			rec.Geometry = &orb.Point{-105.2, 40.5}
		} else {
			rec.AddNotice(models.Notice{Error: "Null Coordinates", Info: "Could not determine location from data"})
		}
		b.Records = append(b.Records, rec)
	}
	meta.AcceptedRecordCount = n
	return b
}

func testRecordStore(t *testing.T, store RecordStore) {
	ctx := context.Background()

	require.NoError(t, store.SaveBatch(ctx, "c1", sampleBatch("http://example.org/a.txt", 3)))
	require.NoError(t, store.SaveBatch(ctx, "c2", sampleBatch("http://example.org/b.txt", 1)))

	failed := models.FailedBatch(models.SourceDescriptor{URL: "http://example.org/gone.txt"},
		models.NewProcessingMeta(models.SourceDescriptor{URL: "http://example.org/gone.txt"}, time.Now()),
		models.ErrorKindFetch, "could not fetch source file", nil)
	require.NoError(t, store.SaveBatch(ctx, "c1", failed))

	t.Run("items by collection", func(t *testing.T) {
		items, err := store.Items(ctx, "c1", 0)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "http://example.org/a.txt", items[0].SourceURL)
		assert.Equal(t, "Sample", items[0].Properties["title"])
		require.NotNil(t, items[0].Longitude)
		assert.Equal(t, -105.2, *items[0].Longitude)
		assert.Nil(t, items[1].Latitude)
		require.Len(t, items[1].Notices, 1)
		assert.Equal(t, "Null Coordinates", items[1].Notices[0].Error)
	})

	t.Run("limit", func(t *testing.T) {
		items, err := store.Items(ctx, "c1", 2)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("unknown collection", func(t *testing.T) {
		items, err := store.Items(ctx, "nope", 10)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("processing log newest first", func(t *testing.T) {
		entries, err := store.ProcessingLog(ctx, 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "http://example.org/gone.txt", entries[0].Meta.SourceURL)
		assert.True(t, entries[0].Meta.Failed())
		assert.Equal(t, 0, entries[0].RecordCount)
		assert.Equal(t, "c2", entries[1].CollectionID)

		entries, err = store.ProcessingLog(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	testRecordStore(t, store)
}

func TestDuckStore(t *testing.T) {
	store, err := NewDuckStore(filepath.Join(t.TempDir(), "records.duckdb"), 2, "256MB", nil)
	require.NoError(t, err)
	defer store.Close()
	testRecordStore(t, store)
}

func TestDuckStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.duckdb")
	store, err := NewDuckStore(path, 1, "", nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveBatch(context.Background(), "c1", sampleBatch("http://example.org/a.txt", 2)))
	require.NoError(t, store.Close())

	store, err = NewDuckStore(path, 1, "", nil)
	require.NoError(t, err)
	defer store.Close()
	items, err := store.Items(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "sqlite"}, nil)
	assert.Error(t, err)

	s, err := Open(context.Background(), Options{Backend: BackendMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
