// Package store is the knowledge base: patterns, information units,
// cross-issue comparisons, confidence adjustments, system learnings, sources
// and feedback events, persisted in an embedded BadgerDB.
//
// Concurrency contract: the store is safe for concurrent readers within one
// process, and Badger's directory lock prevents two processes from sharing a
// store. The dedup check and the eventual pattern write are NOT one atomic
// operation across runs; callers must keep single-writer-at-a-time discipline
// (runs serialized by the scheduler).
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the knowledge base
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Testing only.
	InMemory bool

	// SyncWrites enables synchronous writes for durability
	SyncWrites bool

	// Logger receives Badger's internal logging. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration
}

// DefaultConfig returns production defaults for the given path
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
	}
}

// InMemoryConfig returns configuration for tests
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// Store is the BadgerDB-backed knowledge base
type Store struct {
	db     *badger.DB
	gcStop chan struct{}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open creates and opens the knowledge base with the given configuration
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path, err := expandHome(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{db: db, gcStop: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		go s.runGC(cfg.GCInterval)
	}
	return s, nil
}

// Close stops background GC and closes the database
func (s *Store) Close() error {
	close(s.gcStop)
	return s.db.Close()
}

// runGC periodically reclaims value log space
func (s *Store) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// Badger returns ErrNoRewrite when there is nothing to collect
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		}
	}
}

// expandHome resolves a leading ~/ in a configured path
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
