package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourcesYAML = `
collections:
  - id: 4f4e4760e4b07f02db47dfb4
    catalog: true
  - id: azgs-cores
    title: Arizona core inventory
    link: https://example.org/azgs
    owner: Arizona Geological Survey
    waf_urls:
      - https://example.org/waf/a/
      - https://example.org/waf/b/
    files:
      - url: https://example.org/files/cores.txt?dl=1
        content_type: text/plain
        size: 2048
`

func writeSources(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadSources(t *testing.T) {
	s, err := LoadSources(writeSources(t, sourcesYAML))
	require.NoError(t, err)
	require.Len(t, s.Collections, 2)

	catalogReqs := s.Collections[0].Requests()
	require.Len(t, catalogReqs, 1)
	assert.Equal(t, "4f4e4760e4b07f02db47dfb4", catalogReqs[0].CatalogItemID)

	reqs := s.Collections[1].Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "https://example.org/waf/a/", reqs[0].WAFURL)
	assert.Equal(t, "https://example.org/waf/b/", reqs[1].WAFURL)
	assert.Equal(t, "Arizona core inventory", reqs[1].Title)

	require.Len(t, reqs[2].Files, 1)
	f := reqs[2].Files[0]
	assert.Equal(t, "cores.txt", f.Name)
	assert.Equal(t, int64(2048), f.Size)
	assert.Equal(t, models.OriginCatalogFile, f.Origin)
}

func TestLoadSourcesRejectsEmptyEntries(t *testing.T) {
	_, err := LoadSources(writeSources(t, "collections:\n  - title: no id\n"))
	assert.Error(t, err)

	_, err = LoadSources(writeSources(t, "collections:\n  - id: x\n"))
	assert.Error(t, err)
}

func TestLoadSourcesMissingFile(t *testing.T) {
	_, err := LoadSources(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
