package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/models"
)

// DuckStore keeps items and the processing log in a DuckDB file.
type DuckStore struct {
	db     *sql.DB
	dbPath string
	log    *logging.Logger

	// DuckDB allows one writer; appends are serialized here.
	writeMu sync.Mutex
}

// NewDuckStore opens or creates the database at dbPath. An empty path
// keeps the database in memory.
func NewDuckStore(dbPath string, threads int, memoryLimit string, log *logging.Logger) (*DuckStore, error) {
	log = logging.OrNop(log).Component("storage")
	if threads <= 0 {
		threads = 4
	}
	if memoryLimit == "" {
		memoryLimit = "1GB"
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", memoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	schema := []string{
		`CREATE TABLE IF NOT EXISTS items (
			collection_id VARCHAR NOT NULL,
			source_url    VARCHAR NOT NULL,
			properties    VARCHAR NOT NULL,
			longitude     DOUBLE,
			latitude      DOUBLE,
			notices       VARCHAR NOT NULL,
			stored_at     TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS processing_log (
			collection_id VARCHAR NOT NULL,
			source_url    VARCHAR NOT NULL,
			normalizer    VARCHAR,
			failed        BOOLEAN NOT NULL,
			record_count  INTEGER NOT NULL,
			notice_count  INTEGER NOT NULL,
			meta          VARCHAR NOT NULL,
			logged_at     TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}

	log.Info("duckdb store ready", "path", dbPath, "threads", threads, "memory_limit", memoryLimit)
	return &DuckStore{db: db, dbPath: dbPath, log: log}, nil
}

// SaveBatch appends the batch's records with the Appender API and writes one
// processing log row.
func (ds *DuckStore) SaveBatch(ctx context.Context, collectionID string, b *models.Batch) error {
	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	now := time.Now().UTC()
	start := time.Now()
	if len(b.Records) > 0 {
		if err := ds.appendItems(ctx, collectionID, b, now); err != nil {
			return err
		}
	}

	meta, err := json.Marshal(b.Meta)
	if err != nil {
		return fmt.Errorf("failed to encode processing meta: %w", err)
	}
	_, err = ds.db.ExecContext(ctx,
		`INSERT INTO processing_log VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		collectionID, b.Meta.SourceURL, b.Meta.Normalizer, b.Meta.Failed(),
		len(b.Records), b.NoticeCount(), string(meta), now,
	)
	if err != nil {
		return fmt.Errorf("failed to write processing log: %w", err)
	}
	ds.log.Debug("batch stored", "collection", collectionID, "records", len(b.Records), "elapsed", time.Since(start))
	return nil
}

func (ds *DuckStore) appendItems(ctx context.Context, collectionID string, b *models.Batch, now time.Time) error {
	conn, err := ds.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}
		appender, err := duckdb.NewAppenderFromConn(dConn, "", "items")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		for i, rec := range b.Records {
			it := ItemFromRecord(collectionID, b.Meta.SourceURL, rec, now)
			props, err := json.Marshal(rec.Fields)
			if err != nil {
				return fmt.Errorf("failed to encode record %d: %w", i, err)
			}
			notices, err := json.Marshal(it.Notices)
			if err != nil {
				return fmt.Errorf("failed to encode notices %d: %w", i, err)
			}
			err = appender.AppendRow(
				it.CollectionID,
				it.SourceURL,
				string(props),
				nullable(it.Longitude),
				nullable(it.Latitude),
				string(notices),
				it.StoredAt,
			)
			if err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}
	return nil
}

func nullable(f *float64) driver.Value {
	if f == nil {
		return nil
	}
	return *f
}

// Items returns a collection's items in insertion order.
func (ds *DuckStore) Items(ctx context.Context, collectionID string, limit int) ([]Item, error) {
	rows, err := ds.db.QueryContext(ctx, `
		SELECT collection_id, source_url, properties, longitude, latitude, notices, stored_at
		FROM items WHERE collection_id = ? ORDER BY rowid LIMIT ?`,
		collectionID, queryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var (
			it             Item
			props, notices string
			lon, lat       sql.NullFloat64
		)
		if err := rows.Scan(&it.CollectionID, &it.SourceURL, &props, &lon, &lat, &notices, &it.StoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if err := json.Unmarshal([]byte(props), &it.Properties); err != nil {
			return nil, fmt.Errorf("failed to decode item properties: %w", err)
		}
		if err := json.Unmarshal([]byte(notices), &it.Notices); err != nil {
			return nil, fmt.Errorf("failed to decode item notices: %w", err)
		}
		if lon.Valid && lat.Valid {
			it.Longitude, it.Latitude = &lon.Float64, &lat.Float64
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ProcessingLog returns the newest log entries first.
func (ds *DuckStore) ProcessingLog(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := ds.db.QueryContext(ctx, `
		SELECT collection_id, record_count, notice_count, meta, logged_at
		FROM processing_log ORDER BY logged_at DESC, rowid DESC LIMIT ?`,
		queryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query processing log: %w", err)
	}
	defer rows.Close()

	entries := make([]LogEntry, 0)
	for rows.Next() {
		var (
			e    LogEntry
			meta string
		)
		if err := rows.Scan(&e.CollectionID, &e.RecordCount, &e.NoticeCount, &meta, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Meta = &models.ProcessingMeta{}
		if err := json.Unmarshal([]byte(meta), e.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode processing meta: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func queryLimit(limit int) int64 {
	if limit <= 0 {
		return math.MaxInt32
	}
	return int64(limit)
}

// Close closes the database. The file is kept.
func (ds *DuckStore) Close() error {
	if ds.db == nil {
		return nil
	}
	return ds.db.Close()
}
