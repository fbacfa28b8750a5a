package rag

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/smallnest/researchchat/log"
)

// DefaultOpenIndexes is how many session indexes a Manager keeps open.
const DefaultOpenIndexes = 64

// ErrInvalidSession is returned for session ids that are not safe as a
// directory name.
var ErrInvalidSession = errors.New("invalid session id")

// Manager owns one Index per session, stored in <root>/<session id>.
type Manager struct {
	root     string
	embedder embeddings.Embedder
	opts     []Option
	logger   log.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, *Index]
}

// NewManager creates a manager for indexes under root. size bounds the
// number of open indexes; size <= 0 uses DefaultOpenIndexes. opts apply to
// every index it opens.
func NewManager(root string, size int, embedder embeddings.Embedder, logger log.Logger, opts ...Option) (*Manager, error) {
	if size <= 0 {
		size = DefaultOpenIndexes
	}
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	m := &Manager{
		root:     root,
		embedder: embedder,
		opts:     append(opts, WithLogger(logger)),
		logger:   logger,
	}
	cache, err := lru.NewWithEvict(size, m.evicted)
	if err != nil {
		return nil, fmt.Errorf("create index cache: %w", err)
	}
	m.cache = cache
	return m, nil
}

func (m *Manager) evicted(sessionID string, x *Index) {
	if err := x.Close(); err != nil {
		m.logger.Warn("close index %s: %v", sessionID, err)
	}
}

// Get returns the index of sessionID, opening it on first use.
func (m *Manager) Get(sessionID string) (*Index, error) {
	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if x, ok := m.cache.Get(sessionID); ok {
		return x, nil
	}
	x, err := Open(m.dir(sessionID), m.embedder, m.opts...)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", sessionID, err)
	}
	m.cache.Add(sessionID, x)
	return x, nil
}

// Remove closes the index of sessionID and deletes its files.
func (m *Manager) Remove(sessionID string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Remove(sessionID)
	if m.root == "" {
		return nil
	}
	if err := os.RemoveAll(m.dir(sessionID)); err != nil {
		return fmt.Errorf("remove index %s: %w", sessionID, err)
	}
	return nil
}

// Len returns the number of open indexes.
func (m *Manager) Len() int { return m.cache.Len() }

// Close closes every open index.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Purge()
	return nil
}

func (m *Manager) dir(sessionID string) string {
	if m.root == "" {
		return ""
	}
	return filepath.Join(m.root, sessionID)
}

func checkSessionID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidSession, id)
	}
	return nil
}
