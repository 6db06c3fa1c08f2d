package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrNoPool        = errors.New("no pool exists for key")
	ErrUnknownDriver = errors.New("unknown database driver")
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// MaxConns bounds every pool created by a Manager.
const MaxConns = 10

// Config describes how to reach one regional database. It is only consulted
// when the pool for a key is first created.
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSL      bool

	// DSN overrides the individual fields when set. For sqlite it is the file path.
	DSN string
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Conn is a single connection checked out of a pool. Release must be called
// exactly once, on every path.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Release()
}

type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Close()
	Driver() string
}

// Opener creates a pool for a driver.
type Opener func(ctx context.Context, cfg Config) (Pool, error)

// Manager caches one pool per key for the lifetime of the process.
type Manager struct {
	mu      sync.Mutex
	pools   map[string]Pool
	openers map[string]Opener
	logger  zerolog.Logger
}

type Option func(*Manager)

func WithOpener(driver string, open Opener) Option {
	return func(m *Manager) {
		m.openers[driver] = open
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		pools: make(map[string]Pool),
		openers: map[string]Opener{
			DriverPostgres: openPostgres,
			DriverSQLite:   openSQLite,
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var (
	defaultOnce    sync.Once
	defaultManager *Manager
)

// Default returns the process-wide manager shared by all regional
// repositories. opts only apply on the first call.
func Default(opts ...Option) *Manager {
	defaultOnce.Do(func() {
		defaultManager = NewManager(opts...)
	})
	return defaultManager
}

// GetPool returns the pool for key, creating it from cfg on first use.
// Later calls ignore cfg.
func (m *Manager) GetPool(ctx context.Context, key string, cfg Config) (Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[key]; ok {
		return p, nil
	}

	open, ok := m.openers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	p, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s pool for %s: %w", cfg.Driver, key, err)
	}

	m.pools[key] = p
	m.logger.Info().Str("pool_key", key).Str("driver", cfg.Driver).Msg("created connection pool")
	return p, nil
}

// GetConnection acquires a connection from an existing pool.
func (m *Manager) GetConnection(ctx context.Context, key string) (Conn, error) {
	m.mu.Lock()
	p, ok := m.pools[key]
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPool, key)
	}

	conn, err := p.Acquire(ctx)
	if err != nil {
		m.logger.Error().Err(err).Str("pool_key", key).Msg("failed to acquire connection")
		return nil, fmt.Errorf("acquire connection for %s: %w", key, err)
	}
	return conn, nil
}

// Ping checks the pool for key without creating it.
func (m *Manager) Ping(ctx context.Context, key string) error {
	m.mu.Lock()
	p, ok := m.pools[key]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPool, key)
	}
	return p.Ping(ctx)
}

// ClosePool drains and forgets the pool for key. Closing an unknown key is a no-op.
func (m *Manager) ClosePool(key string) {
	m.mu.Lock()
	p, ok := m.pools[key]
	delete(m.pools, key)
	m.mu.Unlock()

	if !ok {
		return
	}
	p.Close()
	m.logger.Info().Str("pool_key", key).Msg("closed connection pool")
}

// Rebind rewrites ? placeholders into the positional form the driver expects.
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
