package badgerstore

import (
	"fmt"
	"log/slog"
	"os"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/crotchet/stave/pkg/object"
	"github.com/crotchet/stave/pkg/score"
)

// Config holds BadgerDB backend settings.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory runs the database without touching disk. Data is lost on
	// close; intended for tests.
	InMemory bool

	// SyncWrites makes every commit fsync before returning.
	SyncWrites bool

	// Logger receives badger's internal logging. Nil silences it.
	Logger *slog.Logger
}

// DefaultConfig returns an on-disk configuration with synchronous writes.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns a configuration for an ephemeral in-memory store.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
	}
}

// Store keeps objects, heads, and the version index in a single BadgerDB.
// Keys are namespaced by prefix:
//
//	obj/<hash>                  envelope bytes of one object
//	head/<owner>/<name>         head record
//	ver/<owner>/<name>/<n>      version entry, n zero-padded so key order
//	                            is version order
//
// Head swaps and version appends share one transaction, so this backend
// never surfaces ErrVersionRecordFailed.
type Store struct {
	db *badger.DB
}

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badgerstore: path required for on-disk store")
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("badgerstore: mkdir %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. The store is unusable afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}

const (
	objKeyPrefix  = "obj/"
	headKeyPrefix = "head/"
	verKeyPrefix  = "ver/"
)

func objKey(h object.Hash) []byte {
	return []byte(objKeyPrefix + string(h))
}

func headKey(id score.ScoreID) []byte {
	return []byte(headKeyPrefix + id.Owner + "/" + id.Name)
}

// verKey zero-pads the version number to 16 digits so lexicographic key
// order matches numeric order during prefix iteration.
func verKey(id score.ScoreID, number uint64) []byte {
	return fmt.Appendf(nil, "%s%s/%s/%016d", verKeyPrefix, id.Owner, id.Name, number)
}

func versionPrefix(id score.ScoreID) []byte {
	return []byte(verKeyPrefix + id.Owner + "/" + id.Name + "/")
}

func shortOrRoot(h object.Hash) string {
	if h == "" {
		return "(root)"
	}
	return h.Short()
}

// badgerLogger adapts badger's logger interface onto slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
