// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/events"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/nggdpp/ndc-harvester/internal/storage"
	"github.com/stretchr/testify/mock"
)

// MockFileStore implements storage.FileStore in memory.
type MockFileStore struct {
	files    map[string]*models.FileInfo
	fileData map[string][]byte
	mu       sync.RWMutex
}

func NewMockFileStore() *MockFileStore {
	return &MockFileStore{
		files:    make(map[string]*models.FileInfo),
		fileData: make(map[string][]byte),
	}
}

func (m *MockFileStore) Save(name, contentType string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.AddFile(generateTestID(), name, contentType, data), nil
}

func (m *MockFileStore) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	file, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	return file, nil
}

func (m *MockFileStore) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var files []*models.FileInfo
	for _, file := range m.files {
		files = append(files, file)
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	return files, nil
}

func (m *MockFileStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	delete(m.files, id)
	delete(m.fileData, id)
	return nil
}

func (m *MockFileStore) Read(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.fileData[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	return data, nil
}

func (m *MockFileStore) SetStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[id]
	if !ok {
		return fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	file.Status = status
	return nil
}

var _ storage.FileStore = (*MockFileStore)(nil)

// AddFile adds a file directly to the mock.
func (m *MockFileStore) AddFile(id, name, contentType string, data []byte) *models.FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	file := &models.FileInfo{
		ID:          id,
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		UploadedAt:  time.Now(),
		Status:      "uploaded",
	}
	m.files[id] = file
	m.fileData[id] = data
	return file
}

// FileCount returns the number of stored files.
func (m *MockFileStore) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

var (
	testIDCounter int
	testIDMutex   sync.Mutex
)

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}

// MockPublisher records published events through testify's mock.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, ev events.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockPublisher) Close() {
	m.Called()
}

var _ events.Publisher = (*MockPublisher)(nil)
