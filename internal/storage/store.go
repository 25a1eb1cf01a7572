// Package storage persists harvested records, the processing log, and
// uploaded source files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/models"
)

// ErrNotFound is returned for unknown ids.
var ErrNotFound = errors.New("not found")

const (
	BackendDuckDB = "duckdb"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Item is one stored record.
type Item struct {
	CollectionID string                 `json:"collection_id" bson:"ndc_collection_id"`
	SourceURL    string                 `json:"source_url" bson:"source_url"`
	Properties   map[string]interface{} `json:"properties" bson:"properties"`
	Longitude    *float64               `json:"longitude,omitempty" bson:"longitude,omitempty"`
	Latitude     *float64               `json:"latitude,omitempty" bson:"latitude,omitempty"`
	Notices      []models.Notice        `json:"processing_notices" bson:"processing_notices"`
	StoredAt     time.Time              `json:"stored_at" bson:"stored_at"`
}

// ItemFromRecord flattens a record for storage.
func ItemFromRecord(collectionID, sourceURL string, rec *models.Record, at time.Time) Item {
	it := Item{
		CollectionID: collectionID,
		SourceURL:    sourceURL,
		Properties:   rec.Fields.ToMap(),
		Notices:      append([]models.Notice{}, rec.Notices...),
		StoredAt:     at,
	}
	if rec.Geometry != nil {
		lon, lat := rec.Geometry.Lon(), rec.Geometry.Lat()
		it.Longitude, it.Latitude = &lon, &lat
	}
	return it
}

// LogEntry is one processing_log row: the meta of a finished batch.
type LogEntry struct {
	CollectionID string                 `json:"collection_id" bson:"ndc_collection_id"`
	Meta         *models.ProcessingMeta `json:"processing_metadata" bson:"processing_metadata"`
	RecordCount  int                    `json:"record_count" bson:"record_count"`
	NoticeCount  int                    `json:"notice_count" bson:"notice_count"`
	LoggedAt     time.Time              `json:"logged_at" bson:"logged_at"`
}

func logEntryFromBatch(collectionID string, b *models.Batch, at time.Time) LogEntry {
	return LogEntry{
		CollectionID: collectionID,
		Meta:         b.Meta,
		RecordCount:  len(b.Records),
		NoticeCount:  b.NoticeCount(),
		LoggedAt:     at,
	}
}

// RecordStore keeps the items of each collection and a processing log.
type RecordStore interface {
	// SaveBatch stores the batch's records under collectionID and appends
	// its meta to the processing log.
	SaveBatch(ctx context.Context, collectionID string, b *models.Batch) error
	// Items returns up to limit items of a collection, oldest first.
	Items(ctx context.Context, collectionID string, limit int) ([]Item, error)
	// ProcessingLog returns up to limit log entries, newest first.
	ProcessingLog(ctx context.Context, limit int) ([]LogEntry, error)
	Close() error
}

// Options selects and configures a RecordStore backend.
type Options struct {
	Backend           string
	DuckDBPath        string
	DuckDBThreads     int
	DuckDBMemoryLimit string
	MongoURI          string
	MongoDatabase     string
}

// Open creates the configured store.
func Open(ctx context.Context, opts Options, log *logging.Logger) (RecordStore, error) {
	switch opts.Backend {
	case BackendDuckDB, "":
		return NewDuckStore(opts.DuckDBPath, opts.DuckDBThreads, opts.DuckDBMemoryLimit, log)
	case BackendMongo:
		return NewMongoStore(ctx, opts.MongoURI, opts.MongoDatabase, log)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
