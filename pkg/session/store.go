package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultMaxSessions = 10000
	DefaultTTL         = 30 * time.Minute
)

// ErrNotFound means the session expired or never existed
var ErrNotFound = errors.New("session not found")

// StoreOptions configures a Store
type StoreOptions struct {
	MaxSessions int
	TTL         time.Duration
	Logger      *slog.Logger
}

// Store keeps sessions in memory, evicting the least recently used past
// MaxSessions and any session idle for longer than TTL
type Store struct {
	cache  *expirable.LRU[string, *Session]
	logger *slog.Logger
}

// NewStore creates an empty store
func NewStore(opts StoreOptions) *Store {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", "session")

	onEvict := func(id string, _ *Session) {
		logger.Debug("session evicted", "session_id", id)
	}
	return &Store{
		cache:  expirable.NewLRU[string, *Session](opts.MaxSessions, onEvict, opts.TTL),
		logger: logger,
	}
}

// Create starts a new unresolved session
func (st *Store) Create() *Session {
	s := New(uuid.NewString())
	st.cache.Add(s.id, s)
	st.logger.Debug("session created", "session_id", s.id)
	return s
}

// With runs fn with exclusive access to the session, then refreshes its TTL
func (st *Store) With(id string, fn func(*Session) error) error {
	s, ok := st.cache.Get(id)
	if !ok {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := fn(s)
	st.cache.Add(id, s)
	return err
}

// Get returns a snapshot of the session
func (st *Store) Get(id string) (Snapshot, error) {
	var snap Snapshot
	err := st.With(id, func(s *Session) error {
		snap = s.Snapshot()
		return nil
	})
	return snap, err
}

// Delete removes a session, reporting whether it existed
func (st *Store) Delete(id string) bool {
	return st.cache.Remove(id)
}

// Len is the number of live sessions
func (st *Store) Len() int {
	return st.cache.Len()
}
