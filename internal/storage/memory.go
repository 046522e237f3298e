package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps objects in process. Used when no bucket is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Upload implements ObjectStore
func (m *MemoryStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return m.baseURL + "/" + key, nil
}

// Delete implements ObjectStore. A missing key is not an error, as with S3.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Presign implements ObjectStore
func (m *MemoryStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if !m.Has(key) {
		return "", fmt.Errorf("object %s not found", key)
	}
	return fmt.Sprintf("%s/%s?expires=%d", m.baseURL, key, time.Now().Add(ttl).Unix()), nil
}

// KeyFromURL implements ObjectStore
func (m *MemoryStore) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, m.baseURL+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// Has reports whether key is stored
func (m *MemoryStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}
