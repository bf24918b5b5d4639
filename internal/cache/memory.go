package cache

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

const defaultCleanupInterval = time.Minute

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is an in-process cache. Expired entries are dropped lazily on
// read and periodically by a background janitor.
type Memory struct {
	items cmap.ConcurrentMap[string, memoryEntry]
	now   func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewMemory creates a memory cache whose janitor runs every interval
// (one minute when interval is not positive).
func NewMemory(interval time.Duration) *Memory {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}

	m := &Memory{
		items: cmap.New[memoryEntry](),
		now:   time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go m.janitor(interval)
	return m
}

func (m *Memory) janitor(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.deleteExpired()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) deleteExpired() int {
	now := m.now()
	removed := 0
	for _, key := range m.items.Keys() {
		if m.items.RemoveCb(key, func(_ string, e memoryEntry, exists bool) bool {
			return exists && e.expired(now)
		}) {
			removed++
		}
	}
	return removed
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.expired(m.now()) {
		m.items.RemoveCb(key, func(_ string, cur memoryEntry, exists bool) bool {
			return exists && cur.expired(m.now())
		})
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Cache. A non-positive ttl keeps the entry until deleted.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.items.Set(key, e)
	return nil
}

// Delete implements Cache.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.items.Remove(key)
	return nil
}

// DeletePattern implements Cache using path.Match semantics.
func (m *Memory) DeletePattern(_ context.Context, pattern string) (int, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	removed := 0
	for _, key := range m.items.Keys() {
		if ok, _ := path.Match(pattern, key); !ok {
			continue
		}
		if m.items.RemoveCb(key, func(string, memoryEntry, bool) bool { return true }) {
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	return m.items.Count()
}

// Close stops the janitor.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
	return nil
}
