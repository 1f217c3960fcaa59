package blob

import (
	"context"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/blake2b"
)

// ErrNotFound reports a ref with no stored blob behind it.
var ErrNotFound = errors.New("blob not found")

// Ref is the content address of a stored blob: 64 lowercase hex characters
// of its BLAKE2b-256 digest. Page objects carry refs as opaque strings; only
// the blob store interprets them.
type Ref string

// Valid reports whether r is a well-formed ref.
func (r Ref) Valid() bool {
	if len(r) != 64 {
		return false
	}
	for _, c := range r {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Short returns an abbreviated form for display, the first 8 characters.
func (r Ref) Short() string {
	if len(r) <= 8 {
		return string(r)
	}
	return string(r[:8])
}

// Sum computes the ref of a byte slice.
func Sum(data []byte) Ref {
	sum := blake2b.Sum256(data)
	return Ref(hex.EncodeToString(sum[:]))
}

// Store holds raw page media (images, thumbnails) addressed by content.
// Blobs are immutable and append-only, like objects.
type Store interface {
	// Put streams a blob in and returns its ref and size. Storing content
	// that is already present is a no-op returning the same ref.
	Put(ctx context.Context, r io.Reader) (Ref, int64, error)

	// Open returns a reader over the blob's bytes. A missing ref yields an
	// error matching ErrNotFound. The caller closes the reader.
	Open(ctx context.Context, ref Ref) (io.ReadCloser, error)

	// Has reports whether the store contains the blob.
	Has(ctx context.Context, ref Ref) (bool, error)

	// Size returns the stored byte count of the blob.
	Size(ctx context.Context, ref Ref) (int64, error)
}
