package app

import (
	"context"
	"fmt"
	"log"

	"searchlight/api/internal/search"
	"searchlight/api/internal/syncer"
)

// QueryEngine is the search surface the transport layer calls.
type QueryEngine interface {
	Search(ctx context.Context, req search.Request, who search.Identity) (search.Response, error)
	Suggest(ctx context.Context, prefix string, limit int) (search.Suggestions, error)
	FacetCounts(ctx context.Context) (search.Facets, error)
	GetByID(ctx context.Context, id string, who search.Identity) (search.Result, error)
}

// SyncControl exposes the scheduler to the manual trigger and status
// endpoints.
type SyncControl interface {
	TriggerNow(ctx context.Context) (syncer.CycleResult, error)
	Status() syncer.Status
}

// Cache is the optional response cache. Nil disables caching.
type Cache interface {
	Get(ctx context.Context, name string, target any) (bool, error)
	Set(ctx context.Context, name string, value any) error
	Ping(ctx context.Context) error
}

// Service glues the query engine, the sync scheduler and the optional
// cache behind the HTTP layer.
type Service struct {
	engine QueryEngine
	sync   SyncControl
	cache  Cache
	ping   func(ctx context.Context) error
}

func NewService(engine QueryEngine, sync SyncControl, cache Cache, ping func(ctx context.Context) error) *Service {
	return &Service{engine: engine, sync: sync, cache: cache, ping: ping}
}

// Ping reports database connectivity for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// PingCache reports cache connectivity, or nil when caching is disabled.
func (s *Service) PingCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

func (s *Service) CacheEnabled() bool {
	return s.cache != nil
}

func (s *Service) Search(ctx context.Context, req search.Request, who search.Identity) (search.Response, error) {
	return s.engine.Search(ctx, req, who)
}

// Suggest serves suggestions through the cache. Cache failures degrade to
// a store read; they are logged, never surfaced.
func (s *Service) Suggest(ctx context.Context, prefix string, limit int) (search.Suggestions, error) {
	key := fmt.Sprintf("suggest:%s:%d", prefix, limit)
	if s.cache != nil {
		var cached search.Suggestions
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Printf("app: cache get %s: %v", key, err)
		} else if hit {
			return cached, nil
		}
	}

	suggestions, err := s.engine.Suggest(ctx, prefix, limit)
	if err != nil {
		return search.Suggestions{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, suggestions); err != nil {
			log.Printf("app: cache set %s: %v", key, err)
		}
	}
	return suggestions, nil
}

// FacetCounts serves the aggregations through the cache under one fixed
// key; facets only change when a sync cycle writes, so a short TTL keeps
// them fresh enough.
func (s *Service) FacetCounts(ctx context.Context) (search.Facets, error) {
	const key = "facets"
	if s.cache != nil {
		var cached search.Facets
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Printf("app: cache get %s: %v", key, err)
		} else if hit {
			return cached, nil
		}
	}

	facets, err := s.engine.FacetCounts(ctx)
	if err != nil {
		return search.Facets{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, facets); err != nil {
			log.Printf("app: cache set %s: %v", key, err)
		}
	}
	return facets, nil
}

func (s *Service) GetDocument(ctx context.Context, id string, who search.Identity) (search.Result, error) {
	return s.engine.GetByID(ctx, id, who)
}

func (s *Service) TriggerSync(ctx context.Context) (syncer.CycleResult, error) {
	return s.sync.TriggerNow(ctx)
}

func (s *Service) SyncStatus() syncer.Status {
	return s.sync.Status()
}
