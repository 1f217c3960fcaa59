package score

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/crotchet/stave/pkg/object"
)

// MemState is an in-memory State. Safe for concurrent use; the mutex makes
// CompareAndSwapHead atomic.
type MemState struct {
	mu       sync.RWMutex
	heads    map[ScoreID]Head
	versions map[ScoreID][]VersionEntry
}

func NewMemState() *MemState {
	return &MemState{
		heads:    make(map[ScoreID]Head),
		versions: make(map[ScoreID][]VersionEntry),
	}
}

func (s *MemState) CreateHead(_ context.Context, id ScoreID, h Head) error {
	if err := id.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.heads[id]; ok {
		return fmt.Errorf("create head %s: %w", id, ErrScoreExists)
	}
	s.heads[id] = h
	return nil
}

func (s *MemState) ReadHead(_ context.Context, id ScoreID) (Head, error) {
	if err := id.Validate(); err != nil {
		return Head{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.heads[id]
	if !ok {
		return Head{}, fmt.Errorf("read head %s: %w", id, ErrScoreNotFound)
	}
	return h, nil
}

func (s *MemState) CompareAndSwapHead(_ context.Context, id ScoreID, old, new Head) error {
	if err := id.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.heads[id]
	if !ok {
		return fmt.Errorf("head cas %s: %w", id, ErrScoreNotFound)
	}
	if cur != old {
		return fmt.Errorf(
			"head cas %s: %w (expected %s@v%d, found %s@v%d)",
			id, ErrConcurrencyConflict,
			shortOrRoot(old.Snapshot), old.Version,
			shortOrRoot(cur.Snapshot), cur.Version,
		)
	}
	s.heads[id] = new
	return nil
}

func (s *MemState) ListScoreIDs(_ context.Context, owner string) ([]ScoreID, error) {
	s.mu.RLock()
	var ids []ScoreID
	for id := range s.heads {
		if owner == "" || id.Owner == owner {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Owner != ids[j].Owner {
			return ids[i].Owner < ids[j].Owner
		}
		return ids[i].Name < ids[j].Name
	})
	return ids, nil
}

func (s *MemState) AppendVersion(_ context.Context, id ScoreID, entry VersionEntry) error {
	if err := id.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[id] = append(s.versions[id], entry)
	return nil
}

func (s *MemState) ResolveVersion(_ context.Context, id ScoreID, number uint64) (object.Hash, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.versions[id] {
		if entry.Number == number {
			return entry.Snapshot, nil
		}
	}
	return "", fmt.Errorf("score %s version %d: %w", id, number, ErrVersionNotFound)
}

func (s *MemState) ListVersions(_ context.Context, id ScoreID) iter.Seq2[VersionEntry, error] {
	return func(yield func(VersionEntry, error) bool) {
		if err := id.Validate(); err != nil {
			yield(VersionEntry{}, err)
			return
		}
		s.mu.RLock()
		entries := make([]VersionEntry, len(s.versions[id]))
		copy(entries, s.versions[id])
		s.mu.RUnlock()

		for _, entry := range entries {
			if !yield(entry, nil) {
				return
			}
		}
	}
}
