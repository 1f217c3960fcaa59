package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/crotchet/stave/pkg/blob"
	"github.com/crotchet/stave/pkg/object"
	"github.com/crotchet/stave/pkg/score"
	"github.com/crotchet/stave/pkg/store/badgerstore"
)

// workspace is an opened .stave directory: its configuration plus the stores
// and engine built from it. Close releases the backend; for fs it is a no-op.
type workspace struct {
	StaveDir string
	Config   Config
	Objects  object.Store
	State    score.State
	Blobs    blob.Store
	Engine   *score.Engine

	closeFn func() error
}

func (w *workspace) Close() error {
	if w.closeFn == nil {
		return nil
	}
	return w.closeFn()
}

// openWorkspace searches upward from path for a .stave directory and opens
// the stores its config names. Returns an error if no workspace is found.
func openWorkspace(path string) (*workspace, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		staveDir := filepath.Join(cur, staveDirName)
		info, err := os.Stat(staveDir)
		if err == nil && info.IsDir() {
			return openStaveDir(staveDir)
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached filesystem root without finding .stave/.
			return nil, fmt.Errorf("open: not a stave workspace (or any parent up to /)")
		}
		cur = parent
	}
}

func openStaveDir(staveDir string) (*workspace, error) {
	cfg, err := loadConfig(staveDir)
	if err != nil {
		return nil, err
	}

	logger := newLogger()
	w := &workspace{
		StaveDir: staveDir,
		Config:   cfg,
		Blobs:    blob.NewFileStore(staveDir),
	}

	switch cfg.Store.Backend {
	case backendFS:
		w.Objects = object.NewFileStore(staveDir)
		w.State = score.NewFSState(staveDir)
	case backendBadger:
		st, err := badgerstore.Open(badgerstore.Config{
			Path:       filepath.Join(staveDir, "badger"),
			SyncWrites: cfg.Store.SyncWrites,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		w.Objects = st
		w.State = st
		w.closeFn = st.Close
	default:
		return nil, fmt.Errorf("open: unknown store backend %q in %s", cfg.Store.Backend, filepath.Join(staveDir, configFileName))
	}

	w.Engine = score.NewEngine(w.Objects, w.State, logger)
	return w, nil
}

// newLogger builds the CLI logger: text on stderr, warnings and up unless
// --verbose raises it to debug.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// parseScoreID parses an "owner/name" argument. A bare name uses the
// workspace's default owner.
func (w *workspace) parseScoreID(arg string) (score.ScoreID, error) {
	arg = strings.TrimSpace(arg)
	owner, name, ok := strings.Cut(arg, "/")
	if !ok {
		owner, name = w.Config.Owner, arg
	}
	id := score.ScoreID{Owner: owner, Name: name}
	if err := id.Validate(); err != nil {
		return score.ScoreID{}, fmt.Errorf("score %q: %w", arg, err)
	}
	return id, nil
}

// snapshotParent resolves the declared parent for a page commit: the
// explicit flag value when given, otherwise the current head snapshot.
func (w *workspace) snapshotParent(ctx context.Context, id score.ScoreID, flag string) (object.Hash, error) {
	if flag != "" {
		return object.Hash(flag), nil
	}
	head, err := w.Engine.Head(ctx, id)
	if err != nil {
		return "", err
	}
	return head.Snapshot, nil
}

// propertyParent is snapshotParent for the property chain.
func (w *workspace) propertyParent(ctx context.Context, id score.ScoreID, flag string) (object.Hash, error) {
	if flag != "" {
		return object.Hash(flag), nil
	}
	head, err := w.Engine.Head(ctx, id)
	if err != nil {
		return "", err
	}
	return head.Property, nil
}

// storePageMedia stores the page image and thumbnail in the blob store and
// returns their refs. A missing thumbnail path reuses the image blob.
func storePageMedia(ctx context.Context, blobs blob.Store, imagePath, thumbPath string) (image, thumb blob.Ref, err error) {
	image, err = storeBlobFile(ctx, blobs, imagePath)
	if err != nil {
		return "", "", err
	}
	if thumbPath == "" {
		return image, image, nil
	}
	thumb, err = storeBlobFile(ctx, blobs, thumbPath)
	if err != nil {
		return "", "", err
	}
	return image, thumb, nil
}

func storeBlobFile(ctx context.Context, blobs blob.Store, path string) (blob.Ref, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ref, _, err := blobs.Put(ctx, f)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", path, err)
	}
	return ref, nil
}

// shortHash abbreviates a hash for display. The empty hash prints as (root).
func shortHash(h object.Hash) string {
	if h == "" {
		return "(root)"
	}
	return h.Short()
}

// fullHash prints the whole hash, or (root) for the empty one. Full hashes
// feed --parent flags directly, so show prints them unabbreviated.
func fullHash(h object.Hash) string {
	if h == "" {
		return "(root)"
	}
	return string(h)
}

// shortRef abbreviates a stored media ref for display.
func shortRef(ref string) string {
	if ref == "" {
		return "-"
	}
	if len(ref) > 8 {
		return ref[:8]
	}
	return ref
}
