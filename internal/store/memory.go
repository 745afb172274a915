package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// memoryStoreItem holds the value and expiration timestamp for a key.
type memoryStoreItem struct {
	value     []byte
	expiresAt int64 // Unix-nano timestamp. 0 for no expiry.
}

// MemoryStore is an in-memory key-value store that is safe for concurrent
// use. It is the single-node default when no REDIS_DSN is configured.
type MemoryStore struct {
	mu          sync.Mutex
	data        map[string]memoryStoreItem
	stopCleanup chan struct{}
}

// NewMemoryStore creates and returns a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data:        make(map[string]memoryStoreItem),
		stopCleanup: make(chan struct{}),
	}
	// Periodically drop expired items so keys that are never read again
	// (yesterday's quota counters) don't accumulate.
	go s.cleanupExpiredItems()
	return s
}

// Close cleans up resources.
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	return nil
}

// Set stores a key-value pair.
func (s *MemoryStore) Set(key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = memoryStoreItem{
		value:     append([]byte(nil), value...),
		expiresAt: expiryFor(ttl),
	}
	return nil
}

// Get retrieves a value by its key.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.data[key]
	if !exists {
		return nil, ErrNotFound
	}
	if item.expired(time.Now().UnixNano()) {
		delete(s.data, key)
		return nil, ErrNotFound
	}
	return append([]byte(nil), item.value...), nil
}

// Delete removes a value by its key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Exists checks if a key exists.
func (s *MemoryStore) Exists(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.data[key]
	if !exists {
		return false, nil
	}
	if item.expired(time.Now().UnixNano()) {
		delete(s.data, key)
		return false, nil
	}
	return true, nil
}

// SetNX sets a key-value pair if the key does not already exist.
func (s *MemoryStore) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, exists := s.data[key]; exists && !item.expired(time.Now().UnixNano()) {
		return false, nil
	}

	s.data[key] = memoryStoreItem{
		value:     append([]byte(nil), value...),
		expiresAt: expiryFor(ttl),
	}
	return true, nil
}

// Incr atomically increments a counter, creating it with the given TTL.
func (s *MemoryStore) Incr(key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	item, exists := s.data[key]
	if !exists || item.expired(now) {
		s.data[key] = memoryStoreItem{
			value:     []byte("1"),
			expiresAt: expiryFor(ttl),
		}
		return 1, nil
	}

	current, _ := strconv.ParseInt(string(item.value), 10, 64)
	current++
	// Keep the original expiry so the window doesn't slide on every hit.
	s.data[key] = memoryStoreItem{
		value:     []byte(strconv.FormatInt(current, 10)),
		expiresAt: item.expiresAt,
	}
	return current, nil
}

// Clear clears all data.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]memoryStoreItem)
	return nil
}

func (item memoryStoreItem) expired(nowNano int64) bool {
	return item.expiresAt > 0 && nowNano > item.expiresAt
}

func expiryFor(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return time.Now().UnixNano() + ttl.Nanoseconds()
}

// cleanupExpiredItems periodically removes expired items from the store.
func (s *MemoryStore) cleanupExpiredItems() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performCleanup()
		case <-s.stopCleanup:
			logrus.Debug("MemoryStore cleanup goroutine stopped")
			return
		}
	}
}

// performCleanup scans the store and removes expired items.
func (s *MemoryStore) performCleanup() {
	now := time.Now().UnixNano()
	deleted := 0

	s.mu.Lock()
	for key, item := range s.data {
		if item.expired(now) {
			delete(s.data, key)
			deleted++
		}
	}
	s.mu.Unlock()

	if deleted > 0 && logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.Debugf("MemoryStore cleanup: removed %d expired items", deleted)
	}
}
