package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchEvent(t *testing.T) {
	desc := models.SourceDescriptor{URL: "http://example.org/a.txt", Name: "a.txt"}
	done := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	meta := models.NewProcessingMeta(desc, done)
	meta.Normalizer = "tabular"
	meta.CompletedAt = &done
	rec := models.NewRecord(nil)
	rec.AddNotice(models.Notice{Error: "x", Info: "y"})
	b := &models.Batch{Source: desc, Meta: meta, Collection: &models.CollectionMeta{ID: "c1"}, Records: []*models.Record{rec}}

	ev := BatchEvent(b)
	assert.Equal(t, EventBatchCompleted, ev.Type)
	assert.Equal(t, "c1", ev.CollectionID)
	assert.Equal(t, 1, ev.RecordCount)
	assert.Equal(t, 1, ev.NoticeCount)
	assert.Equal(t, done, ev.Timestamp)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"batch.completed"`)
}

func TestBatchEventFailed(t *testing.T) {
	desc := models.SourceDescriptor{URL: "http://example.org/a.txt"}
	b := models.FailedBatch(desc, models.NewProcessingMeta(desc, time.Now()), models.ErrorKindFetch, "fetch failed", nil)
	ev := BatchEvent(b)
	assert.Equal(t, EventBatchFailed, ev.Type)
	assert.Empty(t, ev.CollectionID)
	require.Len(t, ev.Errors, 1)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: EventJobCompleted}))
	p.Close()
}
