package score

import (
	"bufio"
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/crotchet/stave/pkg/object"
)

const (
	headLockRetryDelay = 5 * time.Millisecond
	headLockWaitLimit  = 2 * time.Second
)

// FSState is a filesystem-backed State. Heads live one file per score under
// heads/<owner>/<name>, updated via lockfile + rename so the compare-and-swap
// is atomic across processes. The version index is an append-only log file
// per score under versions/<owner>/<name>.
type FSState struct {
	root string
}

func NewFSState(root string) *FSState {
	return &FSState{root: root}
}

func (s *FSState) Root() string {
	return s.root
}

func (s *FSState) headPath(id ScoreID) string {
	return filepath.Join(s.root, "heads", id.Owner, id.Name)
}

func (s *FSState) versionLogPath(id ScoreID) string {
	return filepath.Join(s.root, "versions", id.Owner, id.Name)
}

// ---------------------------------------------------------------------------
// HeadStore
// ---------------------------------------------------------------------------

func (s *FSState) CreateHead(_ context.Context, id ScoreID, h Head) error {
	if err := id.Validate(); err != nil {
		return err
	}
	headPath := s.headPath(id)
	if err := os.MkdirAll(filepath.Dir(headPath), 0o755); err != nil {
		return fmt.Errorf("create head %s: mkdir: %w", id, err)
	}

	lockPath := headPath + ".lock"
	lockFile, err := acquireHeadLock(lockPath)
	if err != nil {
		return fmt.Errorf("create head %s: lock: %w", id, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	if _, err := os.Stat(headPath); err == nil {
		return fmt.Errorf("create head %s: %w", id, ErrScoreExists)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("create head %s: stat: %w", id, err)
	}

	if err := writeHeadLocked(lockFile, h); err != nil {
		return fmt.Errorf("create head %s: %w", id, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, headPath); err != nil {
		return fmt.Errorf("create head %s: rename: %w", id, err)
	}
	cleanupLock = false
	return nil
}

func (s *FSState) ReadHead(_ context.Context, id ScoreID) (Head, error) {
	if err := id.Validate(); err != nil {
		return Head{}, err
	}
	data, err := os.ReadFile(s.headPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Head{}, fmt.Errorf("read head %s: %w", id, ErrScoreNotFound)
		}
		return Head{}, fmt.Errorf("read head %s: %w", id, err)
	}
	h, err := UnmarshalHead(data)
	if err != nil {
		return Head{}, fmt.Errorf("read head %s: %w", id, err)
	}
	return h, nil
}

func (s *FSState) CompareAndSwapHead(_ context.Context, id ScoreID, old, new Head) error {
	if err := id.Validate(); err != nil {
		return err
	}
	headPath := s.headPath(id)

	lockPath := headPath + ".lock"
	lockFile, err := acquireHeadLock(lockPath)
	if err != nil {
		return fmt.Errorf("head cas %s: lock: %w", id, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	data, err := os.ReadFile(headPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("head cas %s: %w", id, ErrScoreNotFound)
		}
		return fmt.Errorf("head cas %s: read: %w", id, err)
	}
	cur, err := UnmarshalHead(data)
	if err != nil {
		return fmt.Errorf("head cas %s: %w", id, err)
	}
	if cur != old {
		return fmt.Errorf(
			"head cas %s: %w (expected %s@v%d, found %s@v%d)",
			id, ErrConcurrencyConflict,
			shortOrRoot(old.Snapshot), old.Version,
			shortOrRoot(cur.Snapshot), cur.Version,
		)
	}

	if err := writeHeadLocked(lockFile, new); err != nil {
		return fmt.Errorf("head cas %s: %w", id, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, headPath); err != nil {
		return fmt.Errorf("head cas %s: rename: %w", id, err)
	}
	cleanupLock = false
	return nil
}

func (s *FSState) ListScoreIDs(_ context.Context, owner string) ([]ScoreID, error) {
	headsDir := filepath.Join(s.root, "heads")

	var owners []string
	if owner != "" {
		owners = []string{owner}
	} else {
		entries, err := os.ReadDir(headsDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("list scores: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				owners = append(owners, e.Name())
			}
		}
	}

	var ids []ScoreID
	for _, o := range owners {
		entries, err := os.ReadDir(filepath.Join(headsDir, o))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("list scores for %q: %w", o, err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasSuffix(name, ".lock") || strings.HasPrefix(name, ".") {
				continue
			}
			ids = append(ids, ScoreID{Owner: o, Name: name})
		}
	}

	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Owner != ids[j].Owner {
			return ids[i].Owner < ids[j].Owner
		}
		return ids[i].Name < ids[j].Name
	})
	return ids, nil
}

// ---------------------------------------------------------------------------
// VersionIndex
// ---------------------------------------------------------------------------

// AppendVersion appends one "number snapshot timestamp" line to the score's
// version log.
func (s *FSState) AppendVersion(_ context.Context, id ScoreID, entry VersionEntry) error {
	if err := id.Validate(); err != nil {
		return err
	}
	logPath := s.versionLogPath(id)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("version log %s: mkdir: %w", id, err)
	}

	line := fmt.Sprintf("%d %s %d\n", entry.Number, entry.Snapshot, time.Now().Unix())

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("version log %s: open: %w", id, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("version log %s: write: %w", id, err)
	}
	return nil
}

func (s *FSState) ResolveVersion(ctx context.Context, id ScoreID, number uint64) (object.Hash, error) {
	for entry, err := range s.ListVersions(ctx, id) {
		if err != nil {
			return "", err
		}
		if entry.Number == number {
			return entry.Snapshot, nil
		}
	}
	return "", fmt.Errorf("score %s version %d: %w", id, number, ErrVersionNotFound)
}

// ListVersions yields the version log in file order, which is ascending
// because only CAS winners append. A score with no commits yields nothing.
func (s *FSState) ListVersions(_ context.Context, id ScoreID) iter.Seq2[VersionEntry, error] {
	return func(yield func(VersionEntry, error) bool) {
		if err := id.Validate(); err != nil {
			yield(VersionEntry{}, err)
			return
		}
		f, err := os.Open(s.versionLogPath(id))
		if err != nil {
			if !os.IsNotExist(err) {
				yield(VersionEntry{}, fmt.Errorf("version log %s: open: %w", id, err))
			}
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			entry, err := parseVersionLine(line)
			if err != nil {
				yield(VersionEntry{}, fmt.Errorf("version log %s: %w", id, err))
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(VersionEntry{}, fmt.Errorf("version log %s: read: %w", id, err))
		}
	}
}

// ---------------------------------------------------------------------------
// version line codec
// ---------------------------------------------------------------------------

func parseVersionLine(line string) (VersionEntry, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		return VersionEntry{}, fmt.Errorf("malformed version line %q", line)
	}
	number, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return VersionEntry{}, fmt.Errorf("malformed version number %q: %w", parts[0], err)
	}
	snapshot := object.Hash(parts[1])
	if !snapshot.Valid() {
		return VersionEntry{}, fmt.Errorf("malformed version snapshot %q", parts[1])
	}
	return VersionEntry{Number: number, Snapshot: snapshot}, nil
}

func hashOrDash(h object.Hash) string {
	if h == "" {
		return "-"
	}
	return string(h)
}

func dashOrHash(s string) object.Hash {
	if s == "-" {
		return ""
	}
	return object.Hash(s)
}

func writeHeadLocked(lockFile *os.File, h Head) error {
	if _, err := lockFile.Write(MarshalHead(h)); err != nil {
		lockFile.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := lockFile.Sync(); err != nil {
		lockFile.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := lockFile.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

func acquireHeadLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(headLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(headLockRetryDelay)
			continue
		}
		return nil, err
	}
}
