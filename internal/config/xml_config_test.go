package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/catalog"
	"github.com/nggdpp/ndc-harvester/internal/normalizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Storage.DataDirectory)
	assert.Equal(t, filepath.Join(dir, "sources.yaml"), cfg.Schedule.SourcesFile)

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Storage.DuckDBFile, again.Storage.DuckDBFile)
	assert.Equal(t, "xml", again.Harvest.ListingExtension)
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.config")
	content := `<?xml version="1.0"?>
<NDCHarvester>
  <Server><Port>9000</Port></Server>
  <Harvest><CommaAllowedColumns>title, notes</CommaAllowedColumns></Harvest>
</NDCHarvester>`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.BindAddress)
	assert.Equal(t, "duckdb", cfg.Storage.Backend)

	opts := cfg.NormalizerOptions()
	assert.Equal(t, []string{"title", "notes"}, opts.CommaAllowed)
	assert.Equal(t, normalizer.DefaultOptions().DateColumns, opts.DateColumns)
}

func TestLoadConfigInvalidXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.config")
	require.NoError(t, os.WriteFile(path, []byte("<NDCHarvester><Server>"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("STORE_BACKEND", "MONGO")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("NATS_URL", "nats://bus:4222")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), DefaultConfigFile))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "mongo", cfg.Storage.Backend)
	assert.Equal(t, "mongodb://db:27017", cfg.StoreOptions().MongoURI)
	assert.True(t, cfg.Messaging.Enabled)
	assert.Equal(t, "nats://bus:4222", cfg.Messaging.NATSURL)
}

func TestDerivedOptions(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 60*time.Second, cfg.FetchOptions().Timeout)
	assert.Equal(t, int64(200<<20), cfg.FetchOptions().MaxBytes)
	assert.Equal(t, catalog.DefaultAcceptableContentTypes, cfg.AcceptableContentTypes())
	assert.Equal(t, 30*time.Minute, cfg.JobRetention())

	cfg.Harvest.AcceptableContentTypes = "text/csv, application/xml"
	assert.Equal(t, []string{"text/csv", "application/xml"}, cfg.AcceptableContentTypes())
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"4K", 4 << 10},
		{"200M", 200 << 20},
		{"2G", 2 << 30},
		{"1GB", 1 << 30},
		{"", 0},
		{"lots", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSize(tt.in))
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.resolvePaths(dir)
	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, filepath.Join(dir, "data", "uploads"))
}
