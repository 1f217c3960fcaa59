package object

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store. Safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	objects map[Hash]RawObject
}

func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[Hash]RawObject)}
}

func (s *MemStore) Put(_ context.Context, objType ObjectType, data []byte) (Hash, error) {
	h := HashObject(objType, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[h]; !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		s.objects[h] = RawObject{Type: objType, Data: cp}
	}
	return h, nil
}

func (s *MemStore) Get(_ context.Context, h Hash) (ObjectType, []byte, error) {
	s.mu.RLock()
	obj, ok := s.objects[h]
	s.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("object read %s: %w", h, ErrNotFound)
	}
	cp := make([]byte, len(obj.Data))
	copy(cp, obj.Data)
	return obj.Type, cp, nil
}

func (s *MemStore) GetBatch(_ context.Context, hashes []Hash) (map[Hash]RawObject, error) {
	want := NormalizeHashes(hashes)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Hash]RawObject, len(want))
	var missing []Hash
	for _, h := range want {
		obj, ok := s.objects[h]
		if !ok {
			missing = append(missing, h)
			continue
		}
		cp := make([]byte, len(obj.Data))
		copy(cp, obj.Data)
		out[h] = RawObject{Type: obj.Type, Data: cp}
	}
	if len(missing) > 0 {
		return nil, &MissingObjectsError{Missing: missing}
	}
	return out, nil
}

func (s *MemStore) Has(_ context.Context, h Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[h]
	return ok, nil
}

// Len returns the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// ListHashes returns every stored hash in sorted order.
func (s *MemStore) ListHashes(_ context.Context) ([]Hash, error) {
	s.mu.RLock()
	hashes := make([]Hash, 0, len(s.objects))
	for h := range s.objects {
		hashes = append(hashes, h)
	}
	s.mu.RUnlock()
	return NormalizeHashes(hashes), nil
}
