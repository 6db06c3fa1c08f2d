package regional

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-pipeline/internal/db"
)

var ErrUnknownRegion = errors.New("no regional store configured for country")

// Router resolves the regional repository for a country. Each region owns a
// pool in the shared manager, keyed by its PoolKey.
type Router struct {
	pools        *db.Manager
	repositories map[string]*Repository
	configs      []Config
}

func NewRouter(pools *db.Manager, configs []Config, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		pools:        pools,
		repositories: make(map[string]*Repository, len(configs)),
	}
	for _, cfg := range configs {
		if _, dup := r.repositories[string(cfg.Country)]; dup {
			return nil, fmt.Errorf("duplicate regional config for %s", cfg.Country)
		}
		repo, err := NewRepository(cfg, pools, logger)
		if err != nil {
			return nil, err
		}
		r.repositories[string(cfg.Country)] = repo
		r.configs = append(r.configs, cfg)
	}
	return r, nil
}

func (r *Router) Repository(country string) (*Repository, error) {
	repo, ok := r.repositories[country]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegion, country)
	}
	return repo, nil
}

// Open creates the pool of every configured region. Regions whose pool could
// not be created are reported with their error; the others are ready to use.
func (r *Router) Open(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	for _, cfg := range r.configs {
		if _, err := r.pools.GetPool(ctx, cfg.PoolKey, cfg.DB); err != nil {
			failed[string(cfg.Country)] = err
		}
	}
	return failed
}

// Ping checks every regional pool that is already open. A region whose pool
// was never opened reports db.ErrNoPool; Ping never creates pools.
func (r *Router) Ping(ctx context.Context) map[string]error {
	result := make(map[string]error, len(r.configs))
	for _, cfg := range r.configs {
		result[string(cfg.Country)] = r.pools.Ping(ctx, cfg.PoolKey)
	}
	return result
}

// Close releases the pools of every configured region.
func (r *Router) Close() {
	for _, cfg := range r.configs {
		r.pools.ClosePool(cfg.PoolKey)
	}
}
