package score

import (
	"errors"
	"fmt"

	"github.com/crotchet/stave/pkg/object"
)

var (
	// ErrScoreNotFound reports a ScoreID with no head record behind it.
	ErrScoreNotFound = errors.New("score not found")

	// ErrScoreExists reports a Create against an already-existing score.
	ErrScoreExists = errors.New("score already exists")

	// ErrVersionNotFound reports a version label that resolves to nothing.
	ErrVersionNotFound = errors.New("version not found")

	// ErrConcurrencyConflict reports a write whose declared parent no longer
	// matches the head. Nothing was mutated; the caller re-reads and retries.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrInvalidOperation reports an operation that is structurally valid but
	// cannot apply to the current state, such as an out-of-range page index.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrNoChange reports a write that would alter nothing.
	ErrNoChange = errors.New("no change")

	// ErrUnsupportedOperation reports an operation kind this engine does not
	// recognize.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrVersionRecordFailed reports that the head advanced but appending the
	// version index entry failed. The commit is durable; the index needs
	// repair before the new version resolves by number.
	ErrVersionRecordFailed = errors.New("head updated but version record append failed")
)

// ConflictError carries the hashes on both sides of a failed parent check.
type ConflictError struct {
	Score    ScoreID
	Declared object.Hash
	Current  object.Hash
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf(
		"score %s: %s (declared parent %s, head at %s)",
		e.Score, ErrConcurrencyConflict, shortOrRoot(e.Declared), shortOrRoot(e.Current),
	)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// VersionRecordError indicates the head CAS succeeded but the version index
// append that follows it failed.
type VersionRecordError struct {
	Score    ScoreID
	Version  uint64
	Snapshot object.Hash
	Err      error
}

func (e *VersionRecordError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"score %s: %s (version %d, snapshot %s): %v",
		e.Score, ErrVersionRecordFailed, e.Version, e.Snapshot.Short(), e.Err,
	)
}

func (e *VersionRecordError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *VersionRecordError) Is(target error) bool {
	return target == ErrVersionRecordFailed
}

func shortOrRoot(h object.Hash) string {
	if h == "" {
		return "(root)"
	}
	return h.Short()
}
