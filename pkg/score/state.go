package score

import (
	"context"
	"iter"

	"github.com/crotchet/stave/pkg/object"
)

// HeadStore holds the one mutable record per score. Implementations must
// make CompareAndSwapHead atomic with respect to concurrent writers: for any
// interleaving, exactly one of a set of swaps declaring the same old head
// succeeds.
type HeadStore interface {
	// CreateHead installs the initial head. Fails with ErrScoreExists if the
	// score already has one.
	CreateHead(ctx context.Context, id ScoreID, h Head) error

	// ReadHead returns the current head, or ErrScoreNotFound.
	ReadHead(ctx context.Context, id ScoreID) (Head, error)

	// CompareAndSwapHead replaces old with new. Fails with
	// ErrConcurrencyConflict when the stored head is not exactly old, and
	// ErrScoreNotFound when there is no head at all.
	CompareAndSwapHead(ctx context.Context, id ScoreID, old, new Head) error

	// ListScoreIDs enumerates scores, sorted by owner then name. Empty owner
	// means all owners.
	ListScoreIDs(ctx context.Context, owner string) ([]ScoreID, error)
}

// VersionIndex is the append-only record of a score's committed versions.
// Only the winner of the head CAS appends, so entries arrive in order and
// numbers never collide.
type VersionIndex interface {
	// AppendVersion records one committed version.
	AppendVersion(ctx context.Context, id ScoreID, entry VersionEntry) error

	// ResolveVersion returns the snapshot committed as the given number, or
	// ErrVersionNotFound.
	ResolveVersion(ctx context.Context, id ScoreID, number uint64) (object.Hash, error)

	// ListVersions yields entries in ascending number order. The sequence is
	// lazy and restartable; a yielded error ends the iteration.
	ListVersions(ctx context.Context, id ScoreID) iter.Seq2[VersionEntry, error]
}

// State bundles the two stores a backend provides together.
type State interface {
	HeadStore
	VersionIndex
}

// HeadAdvancer is an optional State capability: swap the head and record the
// version entry in one atomic step. Backends with transactions implement it
// so a version entry can never be lost between the two writes; the engine
// falls back to CompareAndSwapHead plus AppendVersion when it is absent.
type HeadAdvancer interface {
	AdvanceHead(ctx context.Context, id ScoreID, old, new Head, entry VersionEntry) error
}
