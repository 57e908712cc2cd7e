package filestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gofile/internal/core"
)

// MemoryStore keeps file records and content in process memory.
// Data survives across requests but not process restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	items   map[string]*core.FileObject
	content map[string][]byte
}

// NewMemoryStore creates an empty in-memory file store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[string]*core.FileObject),
		content: make(map[string][]byte),
	}
}

// Create stores a new file record with its content.
func (s *MemoryStore) Create(_ context.Context, file *core.FileObject, content []byte) error {
	if file == nil || file.ID == "" {
		return fmt.Errorf("file id is required")
	}

	c, err := cloneFile(file)
	if err != nil {
		return err
	}
	buf := make([]byte, len(content))
	copy(buf, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[c.ID]; exists {
		return ErrExists
	}
	s.items[c.ID] = c
	s.content[c.ID] = buf
	return nil
}

// Get retrieves one file record by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*core.FileObject, error) {
	s.mu.RLock()
	f, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if isExpired(f, time.Now().Unix()) {
		s.purge(id)
		return nil, ErrNotFound
	}
	return cloneFile(f)
}

// GetContent returns the raw content of a stored file.
func (s *MemoryStore) GetContent(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	f, ok := s.items[id]
	data := s.content[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if isExpired(f, time.Now().Unix()) {
		s.purge(id)
		return nil, ErrNotFound
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// List returns one page of file records ordered by created_at.
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*core.FileObject, bool, error) {
	limit := normalizeLimit(filter.Limit)
	now := time.Now().Unix()
	s.sweepExpired(now)

	s.mu.RLock()
	all := make([]*core.FileObject, 0, len(s.items))
	for _, f := range s.items {
		if isExpired(f, now) {
			continue
		}
		if filter.Purpose != "" && f.Purpose != filter.Purpose {
			continue
		}
		c, err := cloneFile(f)
		if err != nil {
			s.mu.RUnlock()
			return nil, false, err
		}
		all = append(all, c)
	}
	s.mu.RUnlock()

	sortFiles(all, filter.Order == "asc")
	return pageFiles(all, filter.After, limit)
}

// Update replaces an existing file record. Content is immutable.
func (s *MemoryStore) Update(_ context.Context, file *core.FileObject) error {
	if file == nil || file.ID == "" {
		return fmt.Errorf("file id is required")
	}
	c, err := cloneFile(file)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old, exists := s.items[c.ID]
	if !exists || isExpired(old, time.Now().Unix()) {
		return ErrNotFound
	}
	s.items[c.ID] = c
	return nil
}

// Delete removes a file record and its content.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, exists := s.items[id]
	if !exists {
		return ErrNotFound
	}
	expired := isExpired(f, time.Now().Unix())
	delete(s.items, id)
	delete(s.content, id)
	if expired {
		return ErrNotFound
	}
	return nil
}

// Close releases resources (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) purge(id string) {
	s.mu.Lock()
	delete(s.items, id)
	delete(s.content, id)
	s.mu.Unlock()
}

func (s *MemoryStore) sweepExpired(now int64) {
	s.mu.Lock()
	for id, f := range s.items {
		if isExpired(f, now) {
			delete(s.items, id)
			delete(s.content, id)
		}
	}
	s.mu.Unlock()
}
