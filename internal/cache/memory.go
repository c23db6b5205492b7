package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre patrickmn/go-cache.
// Para desarrollo y despliegues de un solo proceso.
type memoryClient struct {
	c *gocache.Cache
	// go-cache no tiene un incr-or-create atómico; lo serializamos acá.
	mu sync.Mutex
}

// NewMemory crea un cliente in-process con el TTL default dado.
func NewMemory(defaultTTL time.Duration) Client {
	return &memoryClient{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *memoryClient) Get(_ context.Context, key string) (string, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

func (m *memoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.c.Set(key, value, ttl)
	return nil
}

func (m *memoryClient) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.c.Get(key); !ok {
		m.c.Set(key, int64(1), ttl)
		return 1, nil
	}
	n, err := m.c.IncrementInt64(key, 1)
	if err != nil {
		// La key expiró entre el Get y el Increment
		m.c.Set(key, int64(1), ttl)
		return 1, nil
	}
	return n, nil
}

func (m *memoryClient) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *memoryClient) Close() error { return nil }
