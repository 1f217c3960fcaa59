package score

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"

	"github.com/crotchet/stave/pkg/object"
)

// Engine implements the read and write paths of the versioning model over
// an object store and a state backend. It holds no per-score locks: writes
// serialize through the state backend's head compare-and-swap, and a loser
// surfaces ErrConcurrencyConflict for the caller to re-read and retry.
type Engine struct {
	objects object.Store
	state   State
	mat     *materializer
	logger  *slog.Logger
}

// NewEngine wires an engine. A nil logger disables logging.
func NewEngine(objects object.Store, state State, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		objects: objects,
		state:   state,
		mat:     newMaterializer(objects),
		logger:  logger,
	}
}

// Create registers a new score with an empty page sequence and an initial
// property record. The head starts at version 0; no version entry is
// recorded until the first commit.
func (e *Engine) Create(ctx context.Context, id ScoreID, title, description string) (*Score, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	snapHash, err := object.WriteSnapshot(ctx, e.objects, &object.SnapshotObj{})
	if err != nil {
		return nil, fmt.Errorf("create %s: write snapshot: %w", id, err)
	}
	propHash, err := object.WriteProperty(ctx, e.objects, &object.PropertyObj{
		Title:       title,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: write property: %w", id, err)
	}

	head := Head{Snapshot: snapHash, Property: propHash, Version: 0}
	if err := e.state.CreateHead(ctx, id, head); err != nil {
		return nil, err
	}

	e.logger.Debug("score created",
		"score", id.String(), "snapshot", snapHash.Short(), "property", propHash.Short())

	return &Score{
		ID:          id,
		Version:     0,
		Snapshot:    snapHash,
		Property:    propHash,
		Title:       title,
		Description: description,
		Pages:       []Page{},
	}, nil
}

// Commit applies a page batch against the declared parent snapshot.
//
//  1. Read the head
//  2. Reject if the declared parent is not the head snapshot
//  3. Materialize the current page list
//  4. Apply operations in order, writing new page objects as they appear
//  5. Write the new snapshot with Parent = old head snapshot
//  6. Advance the head by compare-and-swap
//  7. Append the version entry
//
// Backends implementing HeadAdvancer collapse steps 6 and 7 into one
// transaction. A CAS loss after step 5 leaves unreferenced objects behind;
// they are content-addressed and harmless, and the retry will dedup against
// them.
func (e *Engine) Commit(ctx context.Context, id ScoreID, parent object.Hash, ops []Op) (*CommitResult, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("commit %s: empty batch: %w", id, ErrNoChange)
	}

	head, err := e.state.ReadHead(ctx, id)
	if err != nil {
		return nil, err
	}
	if head.Snapshot != parent {
		return nil, &ConflictError{Score: id, Declared: parent, Current: head.Snapshot}
	}

	pages, err := e.mat.pages(ctx, head.Snapshot)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			e.logger.Error("head snapshot does not materialize",
				"score", id.String(), "snapshot", head.Snapshot.Short(), "err", err)
		}
		return nil, fmt.Errorf("commit %s: %w", id, err)
	}

	next, err := e.applyOps(ctx, pages, ops)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", id, err)
	}

	pageHashes := make([]object.Hash, len(next))
	for i, p := range next {
		pageHashes[i] = p.Hash
	}
	snapHash, err := object.WriteSnapshot(ctx, e.objects, &object.SnapshotObj{
		Pages:  pageHashes,
		Parent: head.Snapshot,
	})
	if err != nil {
		return nil, fmt.Errorf("commit %s: write snapshot: %w", id, err)
	}

	newHead := Head{Snapshot: snapHash, Property: head.Property, Version: head.Version + 1}
	entry := VersionEntry{Number: newHead.Version, Snapshot: snapHash}
	if adv, ok := e.state.(HeadAdvancer); ok {
		if err := adv.AdvanceHead(ctx, id, head, newHead, entry); err != nil {
			return nil, err
		}
	} else {
		if err := e.state.CompareAndSwapHead(ctx, id, head, newHead); err != nil {
			return nil, err
		}
		if err := e.state.AppendVersion(ctx, id, entry); err != nil {
			e.logger.Error("version record append failed after head update",
				"score", id.String(), "version", newHead.Version, "snapshot", snapHash.Short(), "err", err)
			return nil, &VersionRecordError{Score: id, Version: newHead.Version, Snapshot: snapHash, Err: err}
		}
	}

	e.logger.Debug("commit",
		"score", id.String(), "version", newHead.Version, "snapshot", snapHash.Short(),
		"pages", len(next), "ops", len(ops))

	return &CommitResult{Snapshot: snapHash, Version: newHead.Version, Pages: next}, nil
}

// applyOps folds a batch over the page list. Index checks happen before any
// object write for that operation, so a rejected batch stores as little as
// possible.
func (e *Engine) applyOps(ctx context.Context, pages []Page, ops []Op) ([]Page, error) {
	for i, op := range ops {
		switch v := op.(type) {
		case AddPage:
			p, err := e.writePage(ctx, v.Image, v.Thumb, v.Number)
			if err != nil {
				return nil, fmt.Errorf("op %d (add_page): %w", i, err)
			}
			pages = append(pages, p)

		case InsertPage:
			if v.Index < 0 || v.Index > len(pages) {
				return nil, fmt.Errorf("op %d (insert_page): index %d out of range [0,%d]: %w",
					i, v.Index, len(pages), ErrInvalidOperation)
			}
			p, err := e.writePage(ctx, v.Image, v.Thumb, v.Number)
			if err != nil {
				return nil, fmt.Errorf("op %d (insert_page): %w", i, err)
			}
			pages = append(pages[:v.Index], append([]Page{p}, pages[v.Index:]...)...)

		case DeletePage:
			if v.Index < 0 || v.Index >= len(pages) {
				return nil, fmt.Errorf("op %d (delete_page): index %d out of range [0,%d): %w",
					i, v.Index, len(pages), ErrInvalidOperation)
			}
			pages = append(pages[:v.Index], pages[v.Index+1:]...)

		case UpdateProperty:
			return nil, fmt.Errorf("op %d: update_property does not belong in a page batch: %w",
				i, ErrInvalidOperation)

		default:
			return nil, fmt.Errorf("op %d: kind %q: %w", i, op.Kind(), ErrUnsupportedOperation)
		}
	}
	return pages, nil
}

func (e *Engine) writePage(ctx context.Context, image, thumb, number string) (Page, error) {
	h, err := object.WritePage(ctx, e.objects, &object.PageObj{
		ImageRef: image,
		ThumbRef: thumb,
		Number:   number,
	})
	if err != nil {
		return Page{}, fmt.Errorf("write page: %w", err)
	}
	return Page{Hash: h, ImageRef: image, ThumbRef: thumb, Number: number}, nil
}

// UpdateProperty advances the property chain against the declared parent
// property hash. Nil fields keep their prior values; a write merging to the
// identical record fails with ErrNoChange and stores nothing. Property
// updates do not consume version numbers.
func (e *Engine) UpdateProperty(ctx context.Context, id ScoreID, parent object.Hash, op UpdateProperty) (*PropertyResult, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	head, err := e.state.ReadHead(ctx, id)
	if err != nil {
		return nil, err
	}
	if head.Property != parent {
		return nil, &ConflictError{Score: id, Declared: parent, Current: head.Property}
	}

	cur, err := object.ReadProperty(ctx, e.objects, head.Property)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			e.logger.Error("head property does not resolve",
				"score", id.String(), "property", head.Property.Short(), "err", err)
		}
		return nil, fmt.Errorf("update property %s: %w", id, err)
	}

	merged := object.PropertyObj{Title: cur.Title, Description: cur.Description}
	if op.Title != nil {
		merged.Title = *op.Title
	}
	if op.Description != nil {
		merged.Description = *op.Description
	}
	if merged.Title == cur.Title && merged.Description == cur.Description {
		return nil, fmt.Errorf("update property %s: %w", id, ErrNoChange)
	}

	merged.Parent = head.Property
	propHash, err := object.WriteProperty(ctx, e.objects, &merged)
	if err != nil {
		return nil, fmt.Errorf("update property %s: write: %w", id, err)
	}

	newHead := head
	newHead.Property = propHash
	if err := e.state.CompareAndSwapHead(ctx, id, head, newHead); err != nil {
		return nil, err
	}

	e.logger.Debug("property updated", "score", id.String(), "property", propHash.Short())

	return &PropertyResult{
		Property:    propHash,
		Title:       merged.Title,
		Description: merged.Description,
	}, nil
}

// GetScore materializes the score at its current head.
func (e *Engine) GetScore(ctx context.Context, id ScoreID) (*Score, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	head, err := e.state.ReadHead(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.assemble(ctx, id, head, head.Version, head.Snapshot)
}

// GetVersion materializes the score as of a version label: "latest", the
// empty string, or a decimal version number. The page list comes from that
// version's snapshot; the property record is always the current one, since
// the property chain is independent of version numbering.
func (e *Engine) GetVersion(ctx context.Context, id ScoreID, label string) (*Score, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	head, err := e.state.ReadHead(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot, number, err := e.resolveLabel(ctx, id, head, label)
	if err != nil {
		return nil, err
	}
	return e.assemble(ctx, id, head, number, snapshot)
}

// ResolveVersion resolves a version label to a snapshot hash and number.
func (e *Engine) ResolveVersion(ctx context.Context, id ScoreID, label string) (object.Hash, uint64, error) {
	if err := id.Validate(); err != nil {
		return "", 0, err
	}
	head, err := e.state.ReadHead(ctx, id)
	if err != nil {
		return "", 0, err
	}
	return e.resolveLabel(ctx, id, head, label)
}

func (e *Engine) resolveLabel(ctx context.Context, id ScoreID, head Head, label string) (object.Hash, uint64, error) {
	label = strings.TrimSpace(label)
	if label == "" || label == "latest" {
		return head.Snapshot, head.Version, nil
	}
	number, err := strconv.ParseUint(label, 10, 64)
	if err != nil || number == 0 {
		return "", 0, fmt.Errorf("score %s: version label %q: %w", id, label, ErrVersionNotFound)
	}
	snapshot, err := e.state.ResolveVersion(ctx, id, number)
	if err != nil {
		return "", 0, err
	}
	return snapshot, number, nil
}

func (e *Engine) assemble(ctx context.Context, id ScoreID, head Head, version uint64, snapshot object.Hash) (*Score, error) {
	pages, err := e.mat.pages(ctx, snapshot)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			e.logger.Error("snapshot does not materialize",
				"score", id.String(), "snapshot", snapshot.Short(), "err", err)
		}
		return nil, fmt.Errorf("score %s: %w", id, err)
	}
	prop, err := object.ReadProperty(ctx, e.objects, head.Property)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			e.logger.Error("head property does not resolve",
				"score", id.String(), "property", head.Property.Short(), "err", err)
		}
		return nil, fmt.Errorf("score %s: %w", id, err)
	}
	return &Score{
		ID:          id,
		Version:     version,
		Snapshot:    snapshot,
		Property:    head.Property,
		Title:       prop.Title,
		Description: prop.Description,
		Pages:       pages,
	}, nil
}

// ListVersions yields the score's committed versions in ascending order.
// The score's existence is checked up front so a missing score surfaces as
// ErrScoreNotFound rather than an empty sequence.
func (e *Engine) ListVersions(ctx context.Context, id ScoreID) iter.Seq2[VersionEntry, error] {
	return func(yield func(VersionEntry, error) bool) {
		if err := id.Validate(); err != nil {
			yield(VersionEntry{}, err)
			return
		}
		if _, err := e.state.ReadHead(ctx, id); err != nil {
			yield(VersionEntry{}, err)
			return
		}
		for entry, err := range e.state.ListVersions(ctx, id) {
			if !yield(entry, err) {
				return
			}
		}
	}
}

// ListScores enumerates scores, sorted by owner then name. Empty owner means
// all owners.
func (e *Engine) ListScores(ctx context.Context, owner string) ([]ScoreID, error) {
	return e.state.ListScoreIDs(ctx, owner)
}

// Head returns the raw head record for a score.
func (e *Engine) Head(ctx context.Context, id ScoreID) (Head, error) {
	return e.state.ReadHead(ctx, id)
}
