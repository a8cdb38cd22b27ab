package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/erp/crm/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrPatternKey is returned when an operation that needs a single entry is given a pattern
var ErrPatternKey = errors.New("cache: operation requires an exact key")

// FetchFunc loads the canonical JSON for a key from the backend
type FetchFunc func(ctx context.Context) ([]byte, error)

// Entry is a read-only view of a cached value
type Entry struct {
	Key           Key
	Data          json.RawMessage
	UpdatedAt     time.Time
	Stale         bool
	Fetching      bool
	Invalidations int
}

// Reader is the read side of the cache, the only part views may hold
type Reader interface {
	// Peek returns the cached entry without triggering a fetch
	Peek(key Key) (Entry, bool)
	// Fetch returns fresh data, serving stale data while revalidating in the
	// background, and fetching synchronously when nothing is cached.
	Fetch(ctx context.Context, key Key, fn FetchFunc) (Entry, error)
}

// Writer is the mutation side used by the synchronization layer
type Writer interface {
	Reader
	// Keys lists cached keys matching a pattern in stable order
	Keys(pattern Key) []Key
	// CancelFetches aborts in-flight fetches of every matching key; their
	// results are discarded.
	CancelFetches(patterns ...Key) int
	// Snapshot captures the current bytes of the given exact keys
	Snapshot(keys ...Key) Snapshot
	// Update rewrites an existing entry; it is a no-op when the key is absent
	Update(key Key, fn func(old json.RawMessage) (json.RawMessage, error)) (bool, error)
	// Set stores canonical server data
	Set(key Key, data json.RawMessage) error
	// Restore writes a snapshot back verbatim
	Restore(s Snapshot) int
	// Invalidate marks every matching entry stale and returns how many were marked
	Invalidate(ctx context.Context, patterns ...Key) int
	// Remove drops every matching entry
	Remove(patterns ...Key) int
	// Clear drops every entry, e.g. when the session ends
	Clear() int
}

// Snapshot holds the captured state of a set of keys for rollback
type Snapshot struct {
	entries map[Key]snapshotEntry
}

type snapshotEntry struct {
	data      json.RawMessage
	updatedAt time.Time
	stale     bool
	present   bool
}

// Keys returns the captured keys
func (s Snapshot) Keys() []Key {
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Data returns the captured bytes for key and whether the key held a value
func (s Snapshot) Data(key Key) (json.RawMessage, bool) {
	e, ok := s.entries[key]
	if !ok || !e.present {
		return nil, false
	}
	return e.data, true
}

// Len returns how many keys were captured
func (s Snapshot) Len() int {
	return len(s.entries)
}

type entry struct {
	data          json.RawMessage
	updatedAt     time.Time
	stale         bool
	invalidations int
	fetching      *fetch
}

type fetch struct {
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	cancelled bool
}

// Broadcaster publishes local invalidations to other processes
type Broadcaster interface {
	Publish(ctx context.Context, msg InvalidationMessage) error
}

// InvalidationMessage is exchanged between cache instances
type InvalidationMessage struct {
	Origin    string `json:"origin"`
	Keys      []Key  `json:"keys"`
	Timestamp int64  `json:"timestamp"`
}

// Store is the in-memory query cache. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	entries   map[Key]*entry
	staleTime time.Duration
	now       func() time.Time
	origin    string

	broadcaster Broadcaster
	logger      *zap.Logger
	metrics     *telemetry.Metrics
}

// Option configures a Store
type Option func(*Store)

// WithStaleTime sets how long fetched data is considered fresh.
// Zero or negative means data only goes stale through invalidation.
func WithStaleTime(d time.Duration) Option {
	return func(s *Store) {
		s.staleTime = d
	}
}

// WithLogger sets the logger for the store
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics records invalidation counts
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithBroadcaster publishes every local invalidation
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Store) {
		s.broadcaster = b
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty cache
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[Key]*entry),
		now:     time.Now,
		origin:  uuid.NewString(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Origin identifies this store in broadcast messages
func (s *Store) Origin() string {
	return s.origin
}

// Peek returns the cached entry without triggering a fetch
func (s *Store) Peek(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.data == nil {
		return Entry{}, false
	}
	return s.view(key, e), true
}

// Fetch implements Reader
func (s *Store) Fetch(ctx context.Context, key Key, fn FetchFunc) (Entry, error) {
	if key.IsPattern() {
		return Entry{}, ErrPatternKey
	}

	for {
		s.mu.Lock()
		e := s.entryLocked(key)

		if e.data != nil {
			if !s.isStaleLocked(e) {
				view := s.view(key, e)
				s.mu.Unlock()
				return view, nil
			}
			// Serve stale data and revalidate in the background
			if e.fetching == nil {
				s.startFetchLocked(ctx, key, e, fn)
			}
			view := s.view(key, e)
			view.Stale = true
			s.mu.Unlock()
			return view, nil
		}

		f := e.fetching
		if f == nil {
			f = s.startFetchLocked(ctx, key, e, fn)
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		case <-f.done:
		}

		if f.cancelled {
			// Superseded by a mutation; re-read whatever is cached now
			continue
		}
		if f.err != nil {
			return Entry{}, f.err
		}

		s.mu.Lock()
		e = s.entryLocked(key)
		view := s.view(key, e)
		s.mu.Unlock()
		if view.Data == nil {
			// Removed between completion and read
			continue
		}
		return view, nil
	}
}

// startFetchLocked launches fn for key. The fetch keeps the caller's context
// values but not its cancellation, since other readers may be waiting on it.
func (s *Store) startFetchLocked(ctx context.Context, key Key, e *entry, fn FetchFunc) *fetch {
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &fetch{cancel: cancel, done: make(chan struct{})}
	e.fetching = f

	go func() {
		defer cancel()
		data, err := fn(fctx)

		s.mu.Lock()
		cur := s.entries[key]
		if cur != nil && cur.fetching == f {
			cur.fetching = nil
			switch {
			case err == nil:
				cur.data = cloneRaw(data)
				cur.updatedAt = s.now()
				cur.stale = false
			case cur.data == nil:
				// Nothing was ever cached for a failed first read
				delete(s.entries, key)
			}
		} else if err == nil {
			// Cancelled or removed while in flight; the result is dropped
			s.logger.Debug("discarding superseded fetch", zap.String("key", key.String()))
		}
		f.err = err
		s.mu.Unlock()

		if err != nil && !f.cancelled {
			s.logger.Debug("cache fetch failed", zap.String("key", key.String()), zap.Error(err))
		}
		close(f.done)
	}()

	return f
}

// Keys implements Writer
func (s *Store) Keys(pattern Key) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []Key
	for k, e := range s.entries {
		if e.data != nil && pattern.Matches(k) {
			keys = append(keys, k)
		}
	}
	sortKeys(keys)
	return keys
}

// CancelFetches implements Writer
func (s *Store) CancelFetches(patterns ...Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, e := range s.entries {
		if e.fetching == nil || !matchesAny(patterns, k) {
			continue
		}
		e.fetching.cancelled = true
		e.fetching.cancel()
		e.fetching = nil
		n++
	}
	if n > 0 {
		s.logger.Debug("cancelled in-flight fetches", zap.Int("count", n))
	}
	return n
}

// Snapshot implements Writer
func (s *Store) Snapshot(keys ...Key) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{entries: make(map[Key]snapshotEntry, len(keys))}
	for _, k := range keys {
		e, ok := s.entries[k]
		if !ok || e.data == nil {
			snap.entries[k] = snapshotEntry{}
			continue
		}
		snap.entries[k] = snapshotEntry{
			data:      e.data,
			updatedAt: e.updatedAt,
			stale:     e.stale,
			present:   true,
		}
	}
	return snap
}

// Update implements Writer
func (s *Store) Update(key Key, fn func(old json.RawMessage) (json.RawMessage, error)) (bool, error) {
	if key.IsPattern() {
		return false, ErrPatternKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.data == nil {
		return false, nil
	}
	next, err := fn(cloneRaw(e.data))
	if err != nil {
		return false, err
	}
	if next == nil {
		return false, nil
	}
	// Never mutate the stored slice in place; snapshots share it
	e.data = cloneRaw(next)
	e.updatedAt = s.now()
	return true, nil
}

// Set implements Writer
func (s *Store) Set(key Key, data json.RawMessage) error {
	if key.IsPattern() {
		return ErrPatternKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	e.data = cloneRaw(data)
	e.updatedAt = s.now()
	e.stale = false
	return nil
}

// Restore implements Writer. Keys that were absent at snapshot time are left
// alone, because the optimistic step never writes an absent key.
func (s *Store) Restore(snap Snapshot) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, se := range snap.entries {
		if !se.present {
			continue
		}
		e := s.entryLocked(k)
		e.data = se.data
		e.updatedAt = se.updatedAt
		e.stale = se.stale
		n++
		s.metrics.CacheRolledBack(k.Resource)
	}
	return n
}

// Invalidate implements Writer
func (s *Store) Invalidate(ctx context.Context, patterns ...Key) int {
	n := s.invalidate(patterns)

	if s.broadcaster != nil && len(patterns) > 0 {
		msg := InvalidationMessage{
			Origin:    s.origin,
			Keys:      patterns,
			Timestamp: s.now().UnixNano(),
		}
		if err := s.broadcaster.Publish(ctx, msg); err != nil {
			s.logger.Warn("failed to broadcast cache invalidation", zap.Error(err))
		}
	}
	return n
}

// ApplyRemote invalidates locally for a message published by another store
func (s *Store) ApplyRemote(msg InvalidationMessage) int {
	if msg.Origin == s.origin {
		return 0
	}
	return s.invalidate(msg.Keys)
}

func (s *Store) invalidate(patterns []Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	perResource := make(map[string]int)
	n := 0
	for k, e := range s.entries {
		if e.data == nil || !matchesAny(patterns, k) {
			continue
		}
		e.stale = true
		e.invalidations++
		perResource[k.Resource]++
		n++
	}
	for resource, count := range perResource {
		s.metrics.CacheInvalidated(resource, count)
	}
	s.logger.Debug("invalidated cache entries", zap.Int("count", n), zap.Int("patterns", len(patterns)))
	return n
}

// Remove implements Writer
func (s *Store) Remove(patterns ...Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, e := range s.entries {
		if !matchesAny(patterns, k) {
			continue
		}
		if e.fetching != nil {
			e.fetching.cancelled = true
			e.fetching.cancel()
		}
		delete(s.entries, k)
		n++
	}
	return n
}

// Clear implements Writer
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	for _, e := range s.entries {
		if e.fetching != nil {
			e.fetching.cancelled = true
			e.fetching.cancel()
		}
	}
	s.entries = make(map[Key]*entry)
	return n
}

// Len returns the number of entries holding data
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.data != nil {
			n++
		}
	}
	return n
}

func (s *Store) entryLocked(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

func (s *Store) isStaleLocked(e *entry) bool {
	if e.stale {
		return true
	}
	return s.staleTime > 0 && s.now().Sub(e.updatedAt) > s.staleTime
}

func (s *Store) view(key Key, e *entry) Entry {
	return Entry{
		Key:           key,
		Data:          cloneRaw(e.data),
		UpdatedAt:     e.updatedAt,
		Stale:         e.data != nil && s.isStaleLocked(e),
		Fetching:      e.fetching != nil,
		Invalidations: e.invalidations,
	}
}

func matchesAny(patterns []Key, k Key) bool {
	for _, p := range patterns {
		if p.Matches(k) {
			return true
		}
	}
	return false
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}

func cloneRaw(b []byte) json.RawMessage {
	if b == nil {
		return nil
	}
	return bytes.Clone(b)
}

var _ Writer = (*Store)(nil)
