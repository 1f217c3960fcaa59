package object

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileStore is a content-addressed object store on the local filesystem with
// a 2-character fan-out directory layout: objects/ab/cdef0123...
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at the given directory. The
// objects/ subdirectory is created lazily on first write.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the store's root directory.
func (s *FileStore) Root() string {
	return s.root
}

// objectPath returns the filesystem path for a given hash.
func (s *FileStore) objectPath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash.
func (s *FileStore) Has(_ context.Context, h Hash) (bool, error) {
	if !h.Valid() {
		return false, nil
	}
	_, err := os.Stat(s.objectPath(h))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("object stat %s: %w", h, err)
}

// Put stores an object and returns its content hash. The on-disk format is
// "type len\0content". Writes are atomic: data goes to a temp file which is
// then renamed into place, so a concurrent duplicate Put of the same content
// is harmless.
func (s *FileStore) Put(ctx context.Context, objType ObjectType, data []byte) (Hash, error) {
	raw := EncodeEnvelope(objType, data)
	h := HashObject(objType, data)

	// Fast path: already exists.
	if ok, err := s.Has(ctx, h); err != nil {
		return "", err
	} else if ok {
		return h, nil
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}

	dest := s.objectPath(h)
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write rename: %w", err)
	}

	return h, nil
}

// Get retrieves an object by hash, returning its type and canonical content.
func (s *FileStore) Get(_ context.Context, h Hash) (ObjectType, []byte, error) {
	if !h.Valid() {
		return "", nil, fmt.Errorf("object read %q: %w", string(h), ErrNotFound)
	}
	raw, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("object read %s: %w", h, ErrNotFound)
		}
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	return ParseEnvelope(h, raw)
}

// GetBatch resolves many hashes in one pass. Missing hashes fail the whole
// batch with a *MissingObjectsError.
func (s *FileStore) GetBatch(ctx context.Context, hashes []Hash) (map[Hash]RawObject, error) {
	want := NormalizeHashes(hashes)
	out := make(map[Hash]RawObject, len(want))
	var missing []Hash
	for _, h := range want {
		objType, data, err := s.Get(ctx, h)
		if err != nil {
			if isNotFound(err) {
				missing = append(missing, h)
				continue
			}
			return nil, err
		}
		out[h] = RawObject{Type: objType, Data: data}
	}
	if len(missing) > 0 {
		return nil, &MissingObjectsError{Missing: missing}
	}
	return out, nil
}

// ListHashes walks the fan-out layout and returns every stored hash. Used by
// integrity checks to find objects no head or version references.
func (s *FileStore) ListHashes(_ context.Context) ([]Hash, error) {
	objDir := filepath.Join(s.root, "objects")
	entries, err := os.ReadDir(objDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("object list: %w", err)
	}

	var out []Hash
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) != 2 {
			continue
		}
		sub, err := os.ReadDir(filepath.Join(objDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("object list %s: %w", e.Name(), err)
		}
		for _, f := range sub {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".tmp-") {
				continue
			}
			h := Hash(e.Name() + f.Name())
			if h.Valid() {
				out = append(out, h)
			}
		}
	}
	return NormalizeHashes(out), nil
}

// EncodeEnvelope frames an object as "type len\0content", the stored form
// shared by every store backend. The envelope is also the hash preimage, so
// stored bytes verify directly against their key.
func EncodeEnvelope(objType ObjectType, data []byte) []byte {
	envelope := fmt.Sprintf("%s %d\x00", objType, len(data))
	return append([]byte(envelope), data...)
}

// ParseEnvelope splits the stored "type len\0content" framing and checks
// the recorded length.
func ParseEnvelope(h Hash, raw []byte) (ObjectType, []byte, error) {
	nulIdx := bytes.IndexByte(raw, 0)
	if nulIdx < 0 {
		return "", nil, fmt.Errorf("object read %s: invalid format (no NUL)", h)
	}
	header := string(raw[:nulIdx])
	content := raw[nulIdx+1:]

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("object read %s: invalid header %q", h, header)
	}
	objType := ObjectType(parts[0])
	length, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: invalid length %q: %w", h, parts[1], err)
	}
	if len(content) != length {
		return "", nil, fmt.Errorf("object read %s: length mismatch (header=%d, actual=%d)", h, length, len(content))
	}
	return objType, content, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
