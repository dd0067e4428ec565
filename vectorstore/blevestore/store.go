package blevestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"

	"github.com/magetools/grimorium/vectorstore"
)

const indexSuffix = ".bleve"

// Options configures a Store.
type Options struct {
	// Logger receives store diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Store manages one Bleve index per collection under a root directory.
type Store struct {
	dir    string
	logger *zap.Logger

	mu     sync.Mutex
	open   map[string]*collection
	closed bool
}

// New opens a store rooted at dir, creating the directory when absent.
func New(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create store dir %s: %w", dir, err)
	}
	s := &Store{
		dir:    dir,
		logger: opts.Logger,
		open:   make(map[string]*collection),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// GetOrCreate returns the named collection, creating its index when absent.
func (s *Store) GetOrCreate(ctx context.Context, name string) (vectorstore.Collection, error) {
	return s.get(name, true)
}

// Get returns the named collection or ErrCollectionNotFound.
func (s *Store) Get(ctx context.Context, name string) (vectorstore.Collection, error) {
	return s.get(name, false)
}

func (s *Store) get(name string, create bool) (*collection, error) {
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

	path := filepath.Join(s.dir, name+indexSuffix)
	idx, err := bleve.Open(path)
	if err != nil {
		if !create {
			return nil, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, name)
		}
		idx, err = bleve.New(path, bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index %s: %w", name, err)
		}
	}

	c := &collection{name: name, index: idx}
	s.open[name] = c
	return c, nil
}

// List returns the names of all persisted collections, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, vectorstore.ErrStoreClosed
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot enumerate store dir %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), indexSuffix) {
			names = append(names, strings.TrimSuffix(e.Name(), indexSuffix))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close closes every open index.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for name, c := range s.open {
		if err := c.index.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close index %s: %w", name, err)
		}
	}
	s.open = nil
	return firstErr
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}
