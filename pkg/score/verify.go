package score

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/crotchet/stave/pkg/object"
)

// VerifyReport summarizes an integrity walk over the object graph.
//
// Missing objects are referenced but absent, corrupt objects re-hash to a
// different key than they are filed under, and orphans are stored but
// unreachable from any head or version. Orphans are expected debris from
// lost CAS races and are reported, never deleted.
type VerifyReport struct {
	Scores    int
	Reachable int
	Missing   []object.Hash
	Corrupt   []object.Hash
	Orphans   []object.Hash
}

// Clean reports whether the walk found no missing and no corrupt objects.
// Orphans do not count against cleanliness.
func (r *VerifyReport) Clean() bool {
	return len(r.Missing) == 0 && len(r.Corrupt) == 0
}

// hashLister is implemented by stores that can enumerate everything they
// hold. Orphan detection needs it; stores without it skip that part.
type hashLister interface {
	ListHashes(ctx context.Context) ([]object.Hash, error)
}

// Verify walks every score of the given owner (empty owner: all owners),
// checks that each head and version snapshot fully materializes, and
// re-hashes every reachable object against its key. Unlike the write paths
// it keeps going on damage, collecting everything it finds.
func (e *Engine) Verify(ctx context.Context, owner string) (*VerifyReport, error) {
	ids, err := e.state.ListScoreIDs(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	roots := make(map[object.Hash]struct{})
	for _, id := range ids {
		head, err := e.state.ReadHead(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", id, err)
		}
		for _, h := range []object.Hash{head.Snapshot, head.Property} {
			if h != "" {
				roots[h] = struct{}{}
			}
		}
		for entry, err := range e.state.ListVersions(ctx, id) {
			if err != nil {
				return nil, fmt.Errorf("verify %s: %w", id, err)
			}
			roots[entry.Snapshot] = struct{}{}
		}
	}

	report := &VerifyReport{Scores: len(ids)}
	seen := make(map[object.Hash]bool)
	missing := make(map[object.Hash]bool)
	corrupt := make(map[object.Hash]bool)

	stack := make([]object.Hash, 0, len(roots))
	for h := range roots {
		stack = append(stack, h)
	}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[h] {
			continue
		}
		seen[h] = true

		objType, data, err := e.objects.Get(ctx, h)
		if err != nil {
			if errors.Is(err, object.ErrNotFound) {
				missing[h] = true
				continue
			}
			return nil, fmt.Errorf("verify: read %s: %w", h.Short(), err)
		}

		if object.HashObject(objType, data) != h {
			corrupt[h] = true
			e.logger.Error("stored object fails its hash", "hash", h.Short(), "type", string(objType))
			continue
		}

		refs, err := object.References(objType, data)
		if err != nil {
			corrupt[h] = true
			e.logger.Error("stored object fails to parse", "hash", h.Short(), "type", string(objType), "err", err)
			continue
		}
		for _, ref := range refs {
			if !seen[ref] {
				stack = append(stack, ref)
			}
		}
	}

	report.Reachable = len(seen) - len(missing)
	report.Missing = sortedHashSet(missing)
	report.Corrupt = sortedHashSet(corrupt)

	if lister, ok := e.objects.(hashLister); ok {
		all, err := lister.ListHashes(ctx)
		if err != nil {
			return nil, fmt.Errorf("verify: list objects: %w", err)
		}
		for _, h := range all {
			if !seen[h] {
				report.Orphans = append(report.Orphans, h)
			}
		}
	}

	return report, nil
}

func sortedHashSet(set map[object.Hash]bool) []object.Hash {
	if len(set) == 0 {
		return nil
	}
	out := make([]object.Hash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
