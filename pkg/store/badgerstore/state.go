package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strconv"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/crotchet/stave/pkg/object"
	"github.com/crotchet/stave/pkg/score"
)

// errStopIteration aborts a read transaction from inside an iterator when
// the consumer stops pulling. Never surfaced to callers.
var errStopIteration = errors.New("stop iteration")

// CreateHead installs the initial head record for a score.
func (s *Store) CreateHead(_ context.Context, id score.ScoreID, h score.Head) error {
	if err := id.Validate(); err != nil {
		return err
	}
	key := headKey(id)
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("create head %s: %w", id, score.ErrScoreExists)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("create head %s: read: %w", id, err)
		}
		return txn.Set(key, score.MarshalHead(h))
	})
	if errors.Is(err, badger.ErrConflict) {
		// The only transaction this one can conflict with is a concurrent
		// create of the same score.
		return fmt.Errorf("create head %s: %w", id, score.ErrScoreExists)
	}
	return err
}

// ReadHead returns the current head record.
func (s *Store) ReadHead(_ context.Context, id score.ScoreID) (score.Head, error) {
	if err := id.Validate(); err != nil {
		return score.Head{}, err
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(headKey(id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return score.Head{}, fmt.Errorf("read head %s: %w", id, score.ErrScoreNotFound)
		}
		return score.Head{}, fmt.Errorf("read head %s: %w", id, err)
	}
	h, err := score.UnmarshalHead(raw)
	if err != nil {
		return score.Head{}, fmt.Errorf("read head %s: %w", id, err)
	}
	return h, nil
}

// CompareAndSwapHead replaces old with new inside one transaction. Badger's
// conflict detection covers the case where a concurrent writer commits
// between this transaction's read and its commit.
func (s *Store) CompareAndSwapHead(_ context.Context, id score.ScoreID, old, new score.Head) error {
	if err := id.Validate(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return casHead(txn, id, old, new)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("head cas %s: %w (transaction conflict)", id, score.ErrConcurrencyConflict)
	}
	return err
}

// AdvanceHead swaps the head and records the version entry in the same
// transaction, so a committed version can never be missing its index entry.
func (s *Store) AdvanceHead(_ context.Context, id score.ScoreID, old, new score.Head, entry score.VersionEntry) error {
	if err := id.Validate(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := casHead(txn, id, old, new); err != nil {
			return err
		}
		return txn.Set(verKey(id, entry.Number), versionValue(entry))
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("head cas %s: %w (transaction conflict)", id, score.ErrConcurrencyConflict)
	}
	return err
}

// casHead reads, compares, and rewrites the head key within txn.
func casHead(txn *badger.Txn, id score.ScoreID, old, new score.Head) error {
	key := headKey(id)
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("head cas %s: %w", id, score.ErrScoreNotFound)
	}
	if err != nil {
		return fmt.Errorf("head cas %s: read: %w", id, err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return fmt.Errorf("head cas %s: read: %w", id, err)
	}
	cur, err := score.UnmarshalHead(raw)
	if err != nil {
		return fmt.Errorf("head cas %s: %w", id, err)
	}
	if cur != old {
		return fmt.Errorf(
			"head cas %s: %w (expected %s@v%d, found %s@v%d)",
			id, score.ErrConcurrencyConflict,
			shortOrRoot(old.Snapshot), old.Version,
			shortOrRoot(cur.Snapshot), cur.Version,
		)
	}
	return txn.Set(key, score.MarshalHead(new))
}

// ListScoreIDs enumerates scores by prefix scan over the head keys.
func (s *Store) ListScoreIDs(_ context.Context, owner string) ([]score.ScoreID, error) {
	prefix := []byte(headKeyPrefix)
	if owner != "" {
		prefix = []byte(headKeyPrefix + owner + "/")
	}
	var ids []score.ScoreID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := string(it.Item().Key()[len(headKeyPrefix):])
			o, n, ok := strings.Cut(rest, "/")
			if !ok {
				continue
			}
			ids = append(ids, score.ScoreID{Owner: o, Name: n})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Owner != ids[j].Owner {
			return ids[i].Owner < ids[j].Owner
		}
		return ids[i].Name < ids[j].Name
	})
	return ids, nil
}

// AppendVersion records one committed version. A blind write: the key is
// derived from a number only a CAS winner holds, so it cannot conflict.
func (s *Store) AppendVersion(_ context.Context, id score.ScoreID, entry score.VersionEntry) error {
	if err := id.Validate(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(verKey(id, entry.Number), versionValue(entry))
	})
	if err != nil {
		return fmt.Errorf("version record %s: %w", id, err)
	}
	return nil
}

// ResolveVersion looks up a version entry by direct key.
func (s *Store) ResolveVersion(_ context.Context, id score.ScoreID, number uint64) (object.Hash, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(verKey(id, number))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", fmt.Errorf("score %s version %d: %w", id, number, score.ErrVersionNotFound)
		}
		return "", fmt.Errorf("score %s version %d: %w", id, number, err)
	}
	entry, err := parseVersionValue(number, raw)
	if err != nil {
		return "", fmt.Errorf("score %s: %w", id, err)
	}
	return entry.Snapshot, nil
}

// ListVersions yields version entries in ascending number order. Each call
// to the returned sequence opens a fresh read transaction, so the sequence
// is restartable.
func (s *Store) ListVersions(_ context.Context, id score.ScoreID) iter.Seq2[score.VersionEntry, error] {
	return func(yield func(score.VersionEntry, error) bool) {
		if err := id.Validate(); err != nil {
			yield(score.VersionEntry{}, err)
			return
		}
		prefix := versionPrefix(id)
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				number, err := strconv.ParseUint(string(item.Key()[len(prefix):]), 10, 64)
				if err != nil {
					return fmt.Errorf("malformed version key %q: %w", item.Key(), err)
				}
				raw, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				entry, err := parseVersionValue(number, raw)
				if err != nil {
					return err
				}
				if !yield(entry, nil) {
					return errStopIteration
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(score.VersionEntry{}, fmt.Errorf("versions %s: %w", id, err))
		}
	}
}

func versionValue(entry score.VersionEntry) []byte {
	return fmt.Appendf(nil, "%s %d", entry.Snapshot, time.Now().Unix())
}

func parseVersionValue(number uint64, val []byte) (score.VersionEntry, error) {
	fields := strings.Fields(string(val))
	if len(fields) == 0 {
		return score.VersionEntry{}, fmt.Errorf("malformed version value %q", val)
	}
	snapshot := object.Hash(fields[0])
	if !snapshot.Valid() {
		return score.VersionEntry{}, fmt.Errorf("malformed version snapshot %q", fields[0])
	}
	return score.VersionEntry{Number: number, Snapshot: snapshot}, nil
}
