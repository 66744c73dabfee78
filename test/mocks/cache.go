package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MockCache is an in-memory mock implementation of the Cache interface
// Used for testing without requiring a real Redis instance
type MockCache struct {
	data map[string]entry
	mu   sync.Mutex
	now  func() time.Time

	// Err, when set, is returned by every operation.
	Err error
	// SetNXCalls counts SetNX attempts.
	SetNXCalls int
}

// NewMockCache creates a new mock cache instance
func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

func (m *MockCache) live(key string) (entry, bool) {
	e, ok := m.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.data, key)
		return entry{}, false
	}
	return e, true
}

func (m *MockCache) expiry(expiration time.Duration) time.Time {
	if expiration <= 0 {
		return time.Time{}
	}
	return m.now().Add(expiration)
}

// Get retrieves a value from the mock cache
func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}

	e, ok := m.live(key)
	if !ok {
		return "", nil // Return empty string for non-existent keys (like Redis)
	}
	return e.value, nil
}

// Set stores a value in the mock cache
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}

	m.data[key] = entry{value: fmt.Sprint(value), expiresAt: m.expiry(expiration)}
	return nil
}

// Del deletes keys from the mock cache
func (m *MockCache) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}

	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

// SetNX sets a key only if it doesn't exist (for distributed locking)
func (m *MockCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetNXCalls++
	if m.Err != nil {
		return false, m.Err
	}

	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.data[key] = entry{value: fmt.Sprint(value), expiresAt: m.expiry(expiration)}
	return true, nil
}

// CompareAndDelete deletes key only if it holds value
func (m *MockCache) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}

	e, ok := m.live(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

// Health always returns nil unless Err is set
func (m *MockCache) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

// Close is a no-op for mock cache
func (m *MockCache) Close() error {
	return nil
}

// Advance moves the mock's clock forward, expiring keys whose TTL has passed
func (m *MockCache) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := m.now()
	m.now = func() time.Time { return base.Add(d) }
}

// Keys returns the number of live keys
func (m *MockCache) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if _, ok := m.live(k); ok {
			n++
		}
	}
	return n
}
