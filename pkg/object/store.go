package object

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound reports a hash with no stored object behind it.
var ErrNotFound = errors.New("object not found")

// MissingObjectsError is returned by batch reads when one or more requested
// hashes are absent. Resolution is all-or-nothing: a caller assembling a
// snapshot needs every referenced page, so a partial result is useless and
// the whole batch fails, listing the missing subset.
type MissingObjectsError struct {
	Missing []Hash
}

func (e *MissingObjectsError) Error() string {
	short := make([]string, 0, len(e.Missing))
	for _, h := range e.Missing {
		short = append(short, h.Short())
	}
	return fmt.Sprintf("%d object(s) missing from store: %s", len(e.Missing), strings.Join(short, ", "))
}

func (e *MissingObjectsError) Is(target error) bool {
	return target == ErrNotFound
}

// Store is a content-addressed object store. Objects are immutable and
// append-only: Put is idempotent, nothing is ever rewritten or deleted, and
// identical content is stored exactly once.
type Store interface {
	// Put stores data under its envelope hash and returns that hash. Writing
	// content that is already present is a no-op returning the same hash.
	Put(ctx context.Context, objType ObjectType, data []byte) (Hash, error)

	// Get retrieves one object, returning its type and canonical bytes.
	// A missing hash yields an error matching ErrNotFound.
	Get(ctx context.Context, h Hash) (ObjectType, []byte, error)

	// GetBatch resolves many hashes in one round. If any hash is absent the
	// whole batch fails with a *MissingObjectsError naming the missing subset.
	GetBatch(ctx context.Context, hashes []Hash) (map[Hash]RawObject, error)

	// Has reports whether the store contains an object with the given hash.
	Has(ctx context.Context, h Hash) (bool, error)
}

// ComputedHash recomputes the content hash of a stored object, for integrity
// checks against the key it was filed under.
func (r RawObject) ComputedHash() Hash {
	return HashObject(r.Type, r.Data)
}

// ---------------------------------------------------------------------------
// Typed convenience functions over the Store interface
// ---------------------------------------------------------------------------

// WritePage serializes and stores a PageObj.
func WritePage(ctx context.Context, s Store, p *PageObj) (Hash, error) {
	return s.Put(ctx, TypePage, MarshalPage(p))
}

// ReadPage reads and deserializes a PageObj.
func ReadPage(ctx context.Context, s Store, h Hash) (*PageObj, error) {
	objType, data, err := s.Get(ctx, h)
	if err != nil {
		return nil, err
	}
	if objType != TypePage {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypePage)
	}
	return UnmarshalPage(data)
}

// WriteSnapshot serializes and stores a SnapshotObj.
func WriteSnapshot(ctx context.Context, s Store, snap *SnapshotObj) (Hash, error) {
	return s.Put(ctx, TypeSnapshot, MarshalSnapshot(snap))
}

// ReadSnapshot reads and deserializes a SnapshotObj.
func ReadSnapshot(ctx context.Context, s Store, h Hash) (*SnapshotObj, error) {
	objType, data, err := s.Get(ctx, h)
	if err != nil {
		return nil, err
	}
	if objType != TypeSnapshot {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeSnapshot)
	}
	return UnmarshalSnapshot(data)
}

// WriteProperty serializes and stores a PropertyObj.
func WriteProperty(ctx context.Context, s Store, p *PropertyObj) (Hash, error) {
	return s.Put(ctx, TypeProperty, MarshalProperty(p))
}

// ReadProperty reads and deserializes a PropertyObj.
func ReadProperty(ctx context.Context, s Store, h Hash) (*PropertyObj, error) {
	objType, data, err := s.Get(ctx, h)
	if err != nil {
		return nil, err
	}
	if objType != TypeProperty {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeProperty)
	}
	return UnmarshalProperty(data)
}

// NormalizeHashes normalizes a hash list: trimmed, de-duplicated, sorted.
// Batch reads and reachability walks use it so behavior is independent of
// caller ordering.
func NormalizeHashes(in []Hash) []Hash {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[Hash]struct{}, len(in))
	out := make([]Hash, 0, len(in))
	for _, h := range in {
		h = Hash(strings.TrimSpace(string(h)))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
