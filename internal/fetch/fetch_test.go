package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("a|b\n1|2\n"))
	}))
	defer srv.Close()

	c := NewClient(Options{UserAgent: "test-agent"})
	resp, err := c.Fetch(context.Background(), srv.URL+"/data.txt")
	require.NoError(t, err)
	assert.Equal(t, "a|b\n1|2\n", string(resp.Body))
	assert.Equal(t, "text/plain", resp.ContentType)
	assert.Equal(t, srv.URL+"/data.txt", resp.URL)
}

func TestFetchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(Options{}).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatusCode))
}

func TestFetchSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	_, err := NewClient(Options{MaxBytes: 5}).Fetch(context.Background(), srv.URL)
	assert.True(t, errors.Is(err, ErrTooLarge))

	resp, err := NewClient(Options{MaxBytes: 10}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 10)
}

func TestFetchLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.xml")
	require.NoError(t, os.WriteFile(path, []byte("<root/>"), 0644))

	resp, err := NewClient(Options{}).Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "<root/>", string(resp.Body))
	assert.Contains(t, resp.ContentType, "xml")
}

func TestFetchCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(Options{}).Fetch(ctx, srv.URL)
	assert.Error(t, err)
}
