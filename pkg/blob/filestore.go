package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// FileStore keeps blobs on the local filesystem with the same 2-character
// fan-out as the object store: blobs/ab/cdef0123...
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at the given directory. The blobs/
// subdirectory is created lazily on first write.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the store's root directory.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) blobPath(ref Ref) string {
	return filepath.Join(s.root, "blobs", string(ref[:2]), string(ref[2:]))
}

// Put streams the blob to a temp file while hashing, then renames it into
// place. The ref is unknown until the stream ends, so the temp file lives in
// the blobs/ root rather than the fan-out directory.
func (s *FileStore) Put(_ context.Context, r io.Reader) (Ref, int64, error) {
	baseDir := filepath.Join(s.root, "blobs")
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("blob write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(baseDir, ".tmp-*")
	if err != nil {
		return "", 0, fmt.Errorf("blob write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", 0, fmt.Errorf("blob hasher: %w", err)
	}

	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", 0, fmt.Errorf("blob write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", 0, fmt.Errorf("blob write close: %w", err)
	}

	ref := Ref(fmt.Sprintf("%x", hasher.Sum(nil)))

	dest := s.blobPath(ref)
	if _, err := os.Stat(dest); err == nil {
		os.Remove(tmpName)
		return ref, size, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		os.Remove(tmpName)
		return "", 0, fmt.Errorf("blob write mkdir: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", 0, fmt.Errorf("blob write rename: %w", err)
	}
	return ref, size, nil
}

// Open returns a reader over the blob file.
func (s *FileStore) Open(_ context.Context, ref Ref) (io.ReadCloser, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("blob open %q: %w", string(ref), ErrNotFound)
	}
	f, err := os.Open(s.blobPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob open %s: %w", ref.Short(), ErrNotFound)
		}
		return nil, fmt.Errorf("blob open %s: %w", ref.Short(), err)
	}
	return f, nil
}

// Has reports whether the store contains the blob.
func (s *FileStore) Has(_ context.Context, ref Ref) (bool, error) {
	if !ref.Valid() {
		return false, nil
	}
	_, err := os.Stat(s.blobPath(ref))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("blob stat %s: %w", ref.Short(), err)
}

// Size returns the stored byte count of the blob.
func (s *FileStore) Size(_ context.Context, ref Ref) (int64, error) {
	if !ref.Valid() {
		return 0, fmt.Errorf("blob stat %q: %w", string(ref), ErrNotFound)
	}
	info, err := os.Stat(s.blobPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("blob stat %s: %w", ref.Short(), ErrNotFound)
		}
		return 0, fmt.Errorf("blob stat %s: %w", ref.Short(), err)
	}
	return info.Size(), nil
}
