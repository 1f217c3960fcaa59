package score

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/crotchet/stave/pkg/object"
)

const materializeCacheLimit = 256

// materializer resolves a snapshot hash to its ordered page list. Snapshots
// are immutable, so cached entries never go stale; the cache is bounded by
// flushing wholesale when it fills. Concurrent requests for the same
// snapshot collapse into one store read.
type materializer struct {
	objects object.Store
	group   singleflight.Group

	mu    sync.RWMutex
	cache map[object.Hash][]Page
}

func newMaterializer(objects object.Store) *materializer {
	return &materializer{
		objects: objects,
		cache:   make(map[object.Hash][]Page),
	}
}

// pages materializes one snapshot. The returned slice is the caller's to
// mutate.
func (m *materializer) pages(ctx context.Context, snapshot object.Hash) ([]Page, error) {
	m.mu.RLock()
	cached, ok := m.cache[snapshot]
	m.mu.RUnlock()
	if ok {
		return clonePages(cached), nil
	}

	v, err, _ := m.group.Do(string(snapshot), func() (interface{}, error) {
		loaded, err := m.load(ctx, snapshot)
		if err != nil {
			return nil, err
		}
		m.store(snapshot, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return clonePages(v.([]Page)), nil
}

func (m *materializer) load(ctx context.Context, snapshot object.Hash) ([]Page, error) {
	snap, err := object.ReadSnapshot(ctx, m.objects, snapshot)
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", snapshot.Short(), err)
	}
	if len(snap.Pages) == 0 {
		return []Page{}, nil
	}

	objs, err := m.objects.GetBatch(ctx, snap.Pages)
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", snapshot.Short(), err)
	}

	pages := make([]Page, 0, len(snap.Pages))
	for _, h := range snap.Pages {
		raw := objs[h]
		if raw.Type != object.TypePage {
			return nil, fmt.Errorf("materialize %s: object %s: type mismatch: got %q, want %q",
				snapshot.Short(), h.Short(), raw.Type, object.TypePage)
		}
		p, err := object.UnmarshalPage(raw.Data)
		if err != nil {
			return nil, fmt.Errorf("materialize %s: page %s: %w", snapshot.Short(), h.Short(), err)
		}
		pages = append(pages, Page{
			Hash:     h,
			ImageRef: p.ImageRef,
			ThumbRef: p.ThumbRef,
			Number:   p.Number,
		})
	}
	return pages, nil
}

func (m *materializer) store(snapshot object.Hash, pages []Page) {
	m.mu.Lock()
	if len(m.cache) >= materializeCacheLimit {
		m.cache = make(map[object.Hash][]Page)
	}
	m.cache[snapshot] = clonePages(pages)
	m.mu.Unlock()
}

func clonePages(in []Page) []Page {
	out := make([]Page, len(in))
	copy(out, in)
	return out
}
