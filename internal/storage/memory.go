package storage

import (
	"context"
	"sync"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/models"
)

// MemoryStore is a RecordStore held in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]Item
	log   []LogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]Item)}
}

func (s *MemoryStore) SaveBatch(_ context.Context, collectionID string, b *models.Batch) error {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range b.Records {
		s.items[collectionID] = append(s.items[collectionID], ItemFromRecord(collectionID, b.Meta.SourceURL, rec, now))
	}
	s.log = append(s.log, logEntryFromBatch(collectionID, b, now))
	return nil
}

func (s *MemoryStore) Items(_ context.Context, collectionID string, limit int) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.items[collectionID]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return append([]Item{}, items...), nil
}

func (s *MemoryStore) ProcessingLog(_ context.Context, limit int) ([]LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogEntry, 0, len(s.log))
	for i := len(s.log) - 1; i >= 0; i-- {
		out = append(out, s.log[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
