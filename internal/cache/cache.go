// Package cache provee un contador/almacén chico con backend intercambiable.
// Lo usa el rate limiter del API: memory para un solo proceso, redis cuando
// hay varias réplicas detrás del mismo balanceador.
package cache

import (
	"context"
	"time"
)

// Client son las operaciones mínimas que necesita el rate limiter.
type Client interface {
	// Get obtiene un valor; ok=false si no existe o expiró.
	Get(ctx context.Context, key string) (string, bool)

	// Set guarda un valor con TTL. ttl 0 = sin expiración.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr incrementa el contador de key y retorna el valor nuevo.
	// Si la key no existe, arranca en 1 con el TTL dado.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// Close libera recursos del backend.
	Close() error
}

// Config selecciona y configura el backend.
type Config struct {
	// Kind: "memory" | "redis"
	Kind string

	Redis struct {
		Addr   string
		DB     int
		Prefix string
	}

	Memory struct {
		DefaultTTL time.Duration
	}
}

// New crea el cliente según cfg.Kind. Default: memory.
func New(cfg Config) (Client, error) {
	switch cfg.Kind {
	case "redis":
		return NewRedis(cfg)
	default:
		ttl := cfg.Memory.DefaultTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		return NewMemory(ttl), nil
	}
}
