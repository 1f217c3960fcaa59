package badgerstore

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/crotchet/stave/pkg/object"
)

// Put stores an object under its envelope hash. Re-putting existing content
// is a no-op.
func (s *Store) Put(_ context.Context, objType object.ObjectType, data []byte) (object.Hash, error) {
	h := object.HashObject(objType, data)
	key := objKey(h)
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, object.EncodeEnvelope(objType, data))
	})
	if err != nil {
		// A conflicting transaction can only have written this same key,
		// and content addressing makes that write byte-identical.
		if errors.Is(err, badger.ErrConflict) {
			return h, nil
		}
		return "", fmt.Errorf("object write %s: %w", h, err)
	}
	return h, nil
}

// Get retrieves an object by hash, returning its type and canonical content.
func (s *Store) Get(_ context.Context, h object.Hash) (object.ObjectType, []byte, error) {
	if !h.Valid() {
		return "", nil, fmt.Errorf("object read %q: %w", string(h), object.ErrNotFound)
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objKey(h))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", nil, fmt.Errorf("object read %s: %w", h, object.ErrNotFound)
		}
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	return object.ParseEnvelope(h, raw)
}

// GetBatch resolves many hashes in a single read transaction. Missing hashes
// fail the whole batch with a *MissingObjectsError.
func (s *Store) GetBatch(_ context.Context, hashes []object.Hash) (map[object.Hash]object.RawObject, error) {
	want := object.NormalizeHashes(hashes)
	out := make(map[object.Hash]object.RawObject, len(want))
	var missing []object.Hash

	err := s.db.View(func(txn *badger.Txn) error {
		for _, h := range want {
			item, err := txn.Get(objKey(h))
			if errors.Is(err, badger.ErrKeyNotFound) {
				missing = append(missing, h)
				continue
			}
			if err != nil {
				return err
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			objType, data, err := object.ParseEnvelope(h, raw)
			if err != nil {
				return err
			}
			out[h] = object.RawObject{Type: objType, Data: data}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("object batch read: %w", err)
	}
	if len(missing) > 0 {
		return nil, &object.MissingObjectsError{Missing: missing}
	}
	return out, nil
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(_ context.Context, h object.Hash) (bool, error) {
	if !h.Valid() {
		return false, nil
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(objKey(h))
		if err == nil {
			found = true
			return nil
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("object stat %s: %w", h, err)
	}
	return found, nil
}

// ListHashes returns every stored object hash. Used by integrity checks to
// find objects no head or version references.
func (s *Store) ListHashes(_ context.Context) ([]object.Hash, error) {
	prefix := []byte(objKeyPrefix)
	var out []object.Hash
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			h := object.Hash(it.Item().Key()[len(prefix):])
			if h.Valid() {
				out = append(out, h)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("object list: %w", err)
	}
	return object.NormalizeHashes(out), nil
}
