package embedstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/magetools/grimorium/contenthash"
	"github.com/magetools/grimorium/vectorstore"
)

const lockFile = "store.lock"

// DefaultLockTimeout bounds how long a writer waits for the store lock held
// by another process.
const DefaultLockTimeout = 10 * time.Second

// Embedder vectorizes text. The provider package's implementations satisfy
// it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options configures a Store.
type Options struct {
	// LockTimeout bounds the wait for the cross-process write lock. Zero
	// falls back to DefaultLockTimeout.
	LockTimeout time.Duration

	// Logger receives store diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Store is a directory of embedding-backed collections.
type Store struct {
	dir         string
	embedder    Embedder
	lock        *flock.Flock
	lockTimeout time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	open   map[string]*collection
	closed bool
}

// New opens a store rooted at dir, creating the directory when absent.
func New(dir string, embedder Embedder, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create store dir %s: %w", dir, err)
	}
	s := &Store{
		dir:         dir,
		embedder:    embedder,
		lock:        flock.New(filepath.Join(dir, lockFile)),
		lockTimeout: opts.LockTimeout,
		logger:      opts.Logger,
		open:        make(map[string]*collection),
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = DefaultLockTimeout
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// GetOrCreate returns the named collection, loading it from disk when
// persisted and creating it empty otherwise.
func (s *Store) GetOrCreate(ctx context.Context, name string) (vectorstore.Collection, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, vectorstore.ErrStoreClosed
	}
	if c, ok := s.open[name]; ok {
		return c, nil
	}

	c := newCollection(s, name)
	if err := c.load(); err != nil {
		return nil, fmt.Errorf("load collection %s: %w", name, err)
	}
	s.open[name] = c
	return c, nil
}

// Get returns the named collection when it is open or persisted.
func (s *Store) Get(ctx context.Context, name string) (vectorstore.Collection, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, vectorstore.ErrStoreClosed
	}
	if c, ok := s.open[name]; ok {
		return c, nil
	}

	if _, err := os.Stat(filepath.Join(s.dir, name, manifestFile)); err != nil {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, name)
	}
	c := newCollection(s, name)
	if err := c.load(); err != nil {
		return nil, fmt.Errorf("load collection %s: %w", name, err)
	}
	s.open[name] = c
	return c, nil
}

// List returns the names of all open and persisted collections, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, vectorstore.ErrStoreClosed
	}

	names := make(map[string]bool, len(s.open))
	for name := range s.open {
		names[name] = true
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot enumerate store dir %s: %w", s.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() && !contenthash.Hidden(e.Name()) {
			names[e.Name()] = true
		}
	}

	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Close marks the store closed. In-memory state is dropped; the on-disk
// artifacts remain.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.open = nil
	return nil
}

// acquireLock takes the cross-process write lock, polling until the timeout.
func (s *Store) acquireLock() (func(), error) {
	deadline := time.Now().Add(s.lockTimeout)
	for {
		locked, err := s.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("cannot acquire store lock: %w", err)
		}
		if locked {
			return func() { _ = s.lock.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("another writer holds the store lock (lock: %s)", s.lock.Path())
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// validName rejects collection names that would escape the store directory
// or collide with the store's own files.
func validName(name string) error {
	if name == "" || name != filepath.Base(name) || contenthash.Hidden(name) || name == lockFile {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}
