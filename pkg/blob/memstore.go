package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemStore is an in-memory blob store for tests and embedding.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[Ref][]byte
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[Ref][]byte)}
}

// Put reads the blob fully into memory.
func (s *MemStore) Put(_ context.Context, r io.Reader) (Ref, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, fmt.Errorf("blob read: %w", err)
	}
	ref := Sum(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		s.blobs[ref] = data
	}
	return ref, int64(len(data)), nil
}

// Open returns a reader over the stored bytes. The underlying slice is never
// handed out, so sharing it with the reader is safe.
func (s *MemStore) Open(_ context.Context, ref Ref) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("blob open %s: %w", ref.Short(), ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Has reports whether the store contains the blob.
func (s *MemStore) Has(_ context.Context, ref Ref) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[ref]
	return ok, nil
}

// Size returns the stored byte count of the blob.
func (s *MemStore) Size(_ context.Context, ref Ref) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[ref]
	if !ok {
		return 0, fmt.Errorf("blob stat %s: %w", ref.Short(), ErrNotFound)
	}
	return int64(len(data)), nil
}

// Len returns the number of stored blobs.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
