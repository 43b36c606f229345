// Package prefs persists the event log panel's display preferences.
//
// The scene core only reads and writes preferences through Store; durability
// belongs to the backend chosen at startup.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Load when no preferences were saved under a key.
var ErrNotFound = errors.New("preferences not found")

// Preferences is pure view state of the log panel.
type Preferences struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Expanded bool    `json:"expanded"`
}

// Default returns the layout used before anything was saved.
func Default() Preferences {
	return Preferences{X: 900, Y: 40, Width: 340, Height: 420, Expanded: true}
}

// Store loads and saves preferences by key.
type Store interface {
	Load(ctx context.Context, key string) (Preferences, error)
	Save(ctx context.Context, key string, p Preferences) error
	Close()
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend   string        `mapstructure:"backend"`
	DSN       string        `mapstructure:"dsn"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	Key       string        `mapstructure:"key"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Open builds the configured store. Postgres stores get their schema
// created on open.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendPostgres:
		store, err := NewPostgresStore(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case BackendRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB, logger)
	default:
		return nil, fmt.Errorf("unknown preferences backend %q", cfg.Backend)
	}
}

// MemoryStore keeps preferences in process.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]Preferences
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prefs: make(map[string]Preferences)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[key]
	if !ok {
		return Preferences{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[key] = p
	return nil
}

func (m *MemoryStore) Close() {}
