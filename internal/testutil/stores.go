package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/birdlens/birdlens/internal/blobstore"
	"github.com/birdlens/birdlens/internal/collection"
	"github.com/birdlens/birdlens/internal/errors"
)

// MemoryBlobStore is a blobstore.Store kept in memory. Set PutErr or DeleteErr to make
// uploads or deletes fail.
type MemoryBlobStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	puts      int
	deletes   int
	PutErr    error
	DeleteErr error
	BaseURL   string
}

var _ blobstore.Store = (*MemoryBlobStore)(nil)

// NewMemoryBlobStore returns an empty store serving URLs under baseURL.
func NewMemoryBlobStore(baseURL string) *MemoryBlobStore {
	return &MemoryBlobStore{objects: make(map[string][]byte), types: make(map[string]string), BaseURL: baseURL}
}

// Name returns the name of this store
func (m *MemoryBlobStore) Name() string { return "memory" }

// Put records the object unless PutErr is set.
func (m *MemoryBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.PutErr != nil {
		return "", m.PutErr
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.objects[key] = slices.Clone(data)
	m.types[key] = contentType
	return m.BaseURL + "/" + key, nil
}

// Delete removes the object unless DeleteErr is set.
func (m *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

// Deletes returns how many deletes were attempted.
func (m *MemoryBlobStore) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

// ContentType returns the content type an object was stored with.
func (m *MemoryBlobStore) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types[key]
}

// Validate always succeeds.
func (m *MemoryBlobStore) Validate() error { return nil }

// Puts returns how many uploads were attempted.
func (m *MemoryBlobStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Keys returns the stored object keys in sorted order.
func (m *MemoryBlobStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Object returns the stored bytes for key.
func (m *MemoryBlobStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// MemoryCollection is a collection.Store kept in memory. Set SaveErr to make writes fail.
type MemoryCollection struct {
	mu      sync.Mutex
	entries []collection.Entry
	saves   int
	SaveErr error
}

var _ collection.Store = (*MemoryCollection)(nil)

// NewMemoryCollection returns an empty collection.
func NewMemoryCollection() *MemoryCollection {
	return &MemoryCollection{}
}

// Save appends entry unless SaveErr is set or the owner is missing.
func (m *MemoryCollection) Save(_ context.Context, entry *collection.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if entry.OwnerID == "" || entry.SlotID == "" {
		return errors.Newf("owner and slot are required").Category(errors.CategoryValidation).Build()
	}
	m.entries = append(m.entries, *entry)
	return nil
}

// List returns an owner's entries, newest first.
func (m *MemoryCollection) List(_ context.Context, ownerID string, limit int) ([]collection.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []collection.Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].OwnerID == ownerID {
			out = append(out, m.entries[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of entries an owner has.
func (m *MemoryCollection) Count(ctx context.Context, ownerID string) (int64, error) {
	entries, err := m.List(ctx, ownerID, 0)
	return int64(len(entries)), err
}

// Close does nothing.
func (m *MemoryCollection) Close() error { return nil }

// Saves returns how many writes were attempted.
func (m *MemoryCollection) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Entries returns a copy of every stored entry in write order.
func (m *MemoryCollection) Entries() []collection.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}
