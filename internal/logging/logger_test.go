package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestComponentAttribute(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf).Component("listing")
	log.Info("resolved", "count", 3)
	log.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "component=listing")
	assert.Contains(t, out, "count=3")
	assert.NotContains(t, out, "hidden")
}

func TestSetLevelPropagatesToChildren(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter("info", &buf)
	child := root.With("k", "v")
	root.SetLevel("debug")
	child.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}
