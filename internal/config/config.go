package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del servicio. Se carga de YAML y
// después se pisa con env vars (env gana siempre).
type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Keys struct {
		// Directorio base del key store (key_<id>/*.pem + default.txt)
		Dir string `yaml:"dir"`
	} `yaml:"keys"`

	JWT struct {
		// Audience esperada al verificar (obligatoria para el endpoint verify)
		Audience string `yaml:"audience"`
		// Issuer esperado al verificar (vacío = no chequear)
		Issuer string `yaml:"issuer"`
		// RFC3339; tokens emitidos antes de esto se rechazan (vacío = sin piso)
		IssuedAfter string `yaml:"issued_after"`
		// Tope de exp − iat, formato time.Duration (ej: "24h")
		MaxExpiration string `yaml:"max_expiration"`
	} `yaml:"jwt"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Rate struct {
		Enabled     bool   `yaml:"enabled"`
		Window      string `yaml:"window"`
		MaxRequests int    `yaml:"max_requests"`
	} `yaml:"rate"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load lee el YAML de path, aplica overrides de env y defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// FromEnv arma la config sólo desde env vars, sin YAML.
func FromEnv() *Config {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv() {
	setStr(&c.App.Env, "APP_ENV")
	setStr(&c.Server.Addr, "SERVER_ADDR")
	setStr(&c.Keys.Dir, "KEYS_DIR")
	setStr(&c.JWT.Audience, "JWT_AUDIENCE")
	setStr(&c.JWT.Issuer, "JWT_ISSUER")
	setStr(&c.JWT.IssuedAfter, "JWT_ISSUED_AFTER")
	setStr(&c.JWT.MaxExpiration, "JWT_MAX_EXPIRATION")
	setStr(&c.Cache.Kind, "CACHE_KIND")
	setStr(&c.Cache.Redis.Addr, "REDIS_ADDR")
	setInt(&c.Cache.Redis.DB, "REDIS_DB")
	setStr(&c.Cache.Redis.Prefix, "REDIS_PREFIX")
	setBool(&c.Rate.Enabled, "RATE_ENABLED")
	setStr(&c.Rate.Window, "RATE_WINDOW")
	setInt(&c.Rate.MaxRequests, "RATE_MAX_REQUESTS")
	setStr(&c.Log.Level, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Keys.Dir == "" {
		c.Keys.Dir = "./keys"
	}
	if c.JWT.MaxExpiration == "" {
		c.JWT.MaxExpiration = "24h"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// MaxExpiration parsea JWT.MaxExpiration. Inválido o vacío → fallback 24h.
func (c *Config) MaxExpiration() time.Duration {
	d, err := time.ParseDuration(c.JWT.MaxExpiration)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// IssuedAfter parsea JWT.IssuedAfter. Retorna zero time si no está seteado.
func (c *Config) IssuedAfter() (time.Time, error) {
	if strings.TrimSpace(c.JWT.IssuedAfter) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.JWT.IssuedAfter)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: jwt.issued_after: %w", err)
	}
	return t.UTC(), nil
}

// RateWindow parsea Rate.Window con fallback de 1 minuto.
func (c *Config) RateWindow() time.Duration {
	d, err := time.ParseDuration(c.Rate.Window)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
