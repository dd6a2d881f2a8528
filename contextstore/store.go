// Package contextstore implements the per-skill key/value scratchpad with
// TTL and durability tiers. Reads check expiry lazily; a background sweep
// driven by an expiry-ordered min-heap bounds growth from entries that are
// never re-read. Durable writes go through a pluggable Backend and are
// synchronous: Set does not return success until the backend accepted the
// record.
package contextstore

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skilldock/skilldock/clock"
	"github.com/skilldock/skilldock/core"
	"github.com/skilldock/skilldock/logging"
)

// Config defines tuning parameters for the store. None of these are
// visible to skills.
type Config struct {
	// SweepInterval is the cadence of the proactive expiry pass.
	SweepInterval time.Duration

	// RetryAttempts is the total number of tries for a durable
	// operation before it is reported as a fatal storage error.
	RetryAttempts int

	// RetryBaseDelay is the first retry delay; subsequent delays
	// double up to RetryMaxDelay.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the exponential backoff.
	RetryMaxDelay time.Duration
}

// DefaultConfig provides production-ready default configuration values.
var DefaultConfig = Config{
	SweepInterval:  30 * time.Second,
	RetryAttempts:  4,
	RetryBaseDelay: 50 * time.Millisecond,
	RetryMaxDelay:  2 * time.Second,
}

// Options configures a Store instance using the functional options pattern.
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Backend persists durable entries. Defaults to NoopBackend
	// (volatile-only store).
	Backend Backend

	// Clock provides the current time. Defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Store is the per-skill context store. All methods are safe for
// concurrent use; synchronization is per-skill (buckets) plus one small
// mutex for the expiry heap, so cross-skill operations do not contend.
type Store struct {
	cfg     Config
	backend Backend
	clk     clock.Clock
	logger  logging.Logger

	mu      sync.RWMutex
	buckets map[string]*bucket

	heapMu sync.Mutex
	expiry expiryHeap

	gen atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
}

type bucket struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	value     core.Value
	persist   bool
	createdAt time.Time
	expiresAt time.Time // zero = never expires
	gen       uint64
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// New creates a store and starts its background sweeper. Call Close to
// stop the sweeper and release the backend.
func New(optFns ...func(o *Options)) *Store {
	opts := Options{
		Config:  DefaultConfig,
		Backend: NoopBackend{},
		Clock:   clock.Real(),
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.SweepInterval <= 0 {
		opts.Config.SweepInterval = DefaultConfig.SweepInterval
	}
	if opts.Config.RetryAttempts <= 0 {
		opts.Config.RetryAttempts = DefaultConfig.RetryAttempts
	}
	if opts.Config.RetryBaseDelay <= 0 {
		opts.Config.RetryBaseDelay = DefaultConfig.RetryBaseDelay
	}
	if opts.Config.RetryMaxDelay <= 0 {
		opts.Config.RetryMaxDelay = DefaultConfig.RetryMaxDelay
	}

	s := &Store{
		cfg:     opts.Config,
		backend: opts.Backend,
		clk:     opts.Clock,
		logger:  opts.Logger,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Get returns the live value for (skillID, key). Absent if never set,
// removed, or expired; expiry is checked lazily on every read regardless
// of sweep cadence.
func (s *Store) Get(skillID, key string) (core.Value, bool) {
	return s.lookup(skillID, key)
}

// Has reports whether a live value exists for (skillID, key), with the
// same expiry semantics as Get.
func (s *Store) Has(skillID, key string) bool {
	_, ok := s.lookup(skillID, key)
	return ok
}

func (s *Store) lookup(skillID, key string) (core.Value, bool) {
	b := s.peekBucket(skillID)
	if b == nil {
		return nil, false
	}

	now := s.clk.Now()
	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		b.mu.Unlock()
		return nil, false
	}
	if e.expired(now) {
		delete(b.entries, key)
		persist := e.persist
		b.mu.Unlock()
		if persist {
			s.deleteDurableBestEffort(skillID, key)
		}
		return nil, false
	}
	v := e.value
	b.mu.Unlock()
	return v, true
}

// Set stores value under (skillID, key), overwriting unconditionally and
// recomputing the expiry. ttlSeconds of 0 means the entry never expires.
// When persist is true the write is durable before Set returns; a backend
// fault is retried with bounded exponential backoff and then surfaced as
// a *core.StorageError.
func (s *Store) Set(ctx context.Context, skillID, key string, value core.Value, ttlSeconds int64, persist bool) error {
	if value == nil {
		value = core.NullValue{}
	}
	now := s.clk.Now()
	var expiresAt time.Time
	if ttlSeconds > 0 {
		expiresAt = now.Add(time.Duration(ttlSeconds) * time.Second)
	}

	if persist {
		rec := Record{SkillID: skillID, Key: key, Value: value, ExpiresAt: expiresAt, UpdatedAt: now}
		if err := s.withRetry(ctx, skillID, key, func(ctx context.Context) error {
			return s.backend.Write(ctx, rec)
		}); err != nil {
			return err
		}
	}

	gen := s.gen.Add(1)
	b := s.bucket(skillID)
	b.mu.Lock()
	b.entries[key] = &entry{value: value, persist: persist, createdAt: now, expiresAt: expiresAt, gen: gen}
	b.mu.Unlock()

	if !expiresAt.IsZero() {
		s.heapMu.Lock()
		heap.Push(&s.expiry, expiryItem{skillID: skillID, key: key, expiresAt: expiresAt, gen: gen})
		s.heapMu.Unlock()
	}
	return nil
}

// Remove deletes (skillID, key) from both tiers. Removing an absent key
// succeeds. A durable delete fault is retried and then surfaced like a
// failed Set.
func (s *Store) Remove(ctx context.Context, skillID, key string) error {
	if b := s.peekBucket(skillID); b != nil {
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
	}
	// The durable tier may hold the key even when memory does not
	// (after a Flush), so always delete there.
	return s.withRetry(ctx, skillID, key, func(ctx context.Context) error {
		return s.backend.Delete(ctx, skillID, key)
	})
}

// LoadSkill seeds the in-memory tier from the durable backend, dropping
// records whose expiry already passed. Called by the lifecycle controller
// when a skill starts.
func (s *Store) LoadSkill(ctx context.Context, skillID string) error {
	records, err := s.backend.LoadAll(ctx, skillID)
	if err != nil {
		return fmt.Errorf("load context for skill %s: %w", skillID, err)
	}

	now := s.clk.Now()
	b := s.bucket(skillID)
	for _, rec := range records {
		if !rec.ExpiresAt.IsZero() && !rec.ExpiresAt.After(now) {
			s.deleteDurableBestEffort(skillID, rec.Key)
			continue
		}
		gen := s.gen.Add(1)
		b.mu.Lock()
		b.entries[rec.Key] = &entry{value: rec.Value, persist: true, createdAt: rec.UpdatedAt, expiresAt: rec.ExpiresAt, gen: gen}
		b.mu.Unlock()
		if !rec.ExpiresAt.IsZero() {
			s.heapMu.Lock()
			heap.Push(&s.expiry, expiryItem{skillID: skillID, key: rec.Key, expiresAt: rec.ExpiresAt, gen: gen})
			s.heapMu.Unlock()
		}
	}
	return nil
}

// Flush evicts the skill's in-memory entries. Durable entries remain in
// the backend and reload on the next LoadSkill; volatile entries are gone.
func (s *Store) Flush(skillID string) {
	s.mu.Lock()
	delete(s.buckets, skillID)
	s.mu.Unlock()
	// Heap items for the skill become stale and are skipped when popped.
}

// Sweep performs one proactive expiry pass and returns the number of
// entries removed. The background sweeper calls this on SweepInterval;
// exposed for tests and manual compaction.
func (s *Store) Sweep() int {
	now := s.clk.Now()
	removed := 0
	for {
		s.heapMu.Lock()
		if s.expiry.Len() == 0 || s.expiry[0].expiresAt.After(now) {
			s.heapMu.Unlock()
			return removed
		}
		it := heap.Pop(&s.expiry).(expiryItem)
		s.heapMu.Unlock()

		b := s.peekBucket(it.skillID)
		if b == nil {
			continue
		}
		b.mu.Lock()
		e, ok := b.entries[it.key]
		if !ok || e.gen != it.gen {
			// Entry was overwritten or removed; this heap item is stale.
			b.mu.Unlock()
			continue
		}
		delete(b.entries, it.key)
		persist := e.persist
		b.mu.Unlock()

		if persist {
			s.deleteDurableBestEffort(it.skillID, it.key)
		}
		removed++
	}
}

// Close stops the sweeper and closes the backend.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return s.backend.Close()
}

func (s *Store) sweepLoop() {
	ticker := s.clk.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("context sweep removed %d expired entries", n)
			}
		}
	}
}

func (s *Store) bucket(skillID string) *bucket {
	s.mu.RLock()
	b, ok := s.buckets[skillID]
	s.mu.RUnlock()
	if ok {
		return b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[skillID]; ok {
		return b
	}
	b = &bucket{entries: make(map[string]*entry)}
	s.buckets[skillID] = b
	return b
}

func (s *Store) peekBucket(skillID string) *bucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buckets[skillID]
}

// withRetry runs op with bounded exponential backoff. After exhausting the
// retry budget the last error is wrapped in a *core.StorageError; the
// store never downgrades a durable operation to volatile.
func (s *Store) withRetry(ctx context.Context, skillID, key string, op func(ctx context.Context) error) error {
	attempts := s.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := s.cfg.RetryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &core.StorageError{SkillID: skillID, Key: key, Attempts: attempt - 1, Err: err}
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt < attempts {
			s.logger.Warn("durable write for (%s, %s) failed (attempt %d/%d): %v", skillID, key, attempt, attempts, lastErr)
			s.clk.Sleep(delay)
			delay *= 2
			if delay > s.cfg.RetryMaxDelay {
				delay = s.cfg.RetryMaxDelay
			}
		}
	}
	return &core.StorageError{SkillID: skillID, Key: key, Attempts: attempts, Err: lastErr}
}

func (s *Store) deleteDurableBestEffort(skillID, key string) {
	if err := s.backend.Delete(context.Background(), skillID, key); err != nil {
		s.logger.Warn("durable delete of expired (%s, %s) failed: %v", skillID, key, err)
	}
}

// expiryItem is one heap element; gen ties it to a specific write so
// overwrites invalidate older items without heap surgery.
type expiryItem struct {
	skillID   string
	key       string
	expiresAt time.Time
	gen       uint64
}

type expiryHeap []expiryItem

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)         { *h = append(*h, x.(expiryItem)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
