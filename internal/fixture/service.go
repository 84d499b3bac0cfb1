package fixture

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"fixcal/internal/apperr"
	"fixcal/internal/cache"
	"fixcal/internal/clock"
	"fixcal/internal/metrics"
	"fixcal/internal/model"
)

// TeamSource fetches team details from the provider.
type TeamSource interface {
	FetchTeam(ctx context.Context, centreID, teamID string) (model.TeamDetails, error)
}

// cachedTeam is the value stored per team. FetchedAt drives prefetching.
type cachedTeam struct {
	FetchedAt time.Time         `json:"fetched_at"`
	Details   model.TeamDetails `json:"details"`
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	TTL time.Duration
	// Prefetch is the fraction of TTL after which a hit also starts a
	// background refresh.
	Prefetch float64
	// RefreshTimeout bounds a background refresh.
	RefreshTimeout time.Duration

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Service memoizes team details in a cache.Store. Concurrent loads of one
// team share a single provider fetch.
type Service struct {
	source TeamSource
	store  cache.Store
	opts   ServiceOptions
	logger *zap.Logger

	mu       sync.Mutex
	inflight map[string]*call
	wg       sync.WaitGroup
}

// call is one in-flight fetch. done closes once details and err are set.
type call struct {
	done    chan struct{}
	details model.TeamDetails
	err     error
}

func NewService(source TeamSource, store cache.Store, opts ServiceOptions) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Prefetch <= 0 || opts.Prefetch > 1 {
		opts.Prefetch = 0.8
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		source:   source,
		store:    store,
		opts:     opts,
		logger:   opts.Logger,
		inflight: make(map[string]*call),
	}
}

// Key is the cache key for a team.
func Key(centreID, teamID string) string {
	return "fixcal:team:" + centreID + ":" + teamID
}

// Team returns cached details when present, otherwise fetches them. A hit
// older than Prefetch*TTL is served as is while a refresh runs in the
// background.
func (s *Service) Team(ctx context.Context, centreID, teamID string) (model.TeamDetails, error) {
	key := Key(centreID, teamID)

	var entry cachedTeam
	err := s.store.Get(ctx, key, &entry)
	switch {
	case err == nil:
		age := s.opts.Clock.Now().Sub(entry.FetchedAt)
		if age >= time.Duration(float64(s.opts.TTL)*s.opts.Prefetch) {
			s.opts.Metrics.CacheLookup(metrics.CacheStale)
			s.refreshAsync(centreID, teamID)
		} else {
			s.opts.Metrics.CacheLookup(metrics.CacheHit)
		}
		return entry.Details, nil
	case errors.Is(err, apperr.ErrCacheMiss):
		s.opts.Metrics.CacheLookup(metrics.CacheMiss)
	default:
		s.opts.Metrics.CacheLookup(metrics.CacheMiss)
		s.logger.Warn("team cache read failed; fetching", zap.String("key", key), zap.Error(err))
	}

	return s.load(ctx, centreID, teamID, true)
}

// Refresh fetches from the source and stores the result. It joins a fetch
// already running for the same team.
func (s *Service) Refresh(ctx context.Context, centreID, teamID string) (model.TeamDetails, error) {
	return s.load(ctx, centreID, teamID, false)
}

// load runs or joins the fetch for a team. With reuseCached the leader
// first rechecks the store, since an earlier fetch may have landed after
// the caller's miss.
func (s *Service) load(ctx context.Context, centreID, teamID string, reuseCached bool) (model.TeamDetails, error) {
	key := Key(centreID, teamID)
	c, leader := s.join(key)
	if !leader {
		select {
		case <-c.done:
			return c.details, c.err
		case <-ctx.Done():
			return model.TeamDetails{}, ctx.Err()
		}
	}

	s.run(c, key, func() (model.TeamDetails, error) {
		if reuseCached {
			var entry cachedTeam
			if err := s.store.Get(ctx, key, &entry); err == nil {
				return entry.Details, nil
			}
		}
		return s.fetch(ctx, centreID, teamID)
	})
	return c.details, c.err
}

// join returns the in-flight call for key, registering a new one when
// none exists. leader is true for the caller that must run it.
func (s *Service) join(key string) (c *call, leader bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.inflight[key]; ok {
		return c, false
	}
	c = &call{done: make(chan struct{})}
	s.inflight[key] = c
	return c, true
}

func (s *Service) run(c *call, key string, fn func() (model.TeamDetails, error)) {
	defer func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
		close(c.done)
	}()
	c.details, c.err = fn()
}

func (s *Service) fetch(ctx context.Context, centreID, teamID string) (model.TeamDetails, error) {
	details, err := s.source.FetchTeam(ctx, centreID, teamID)
	if err != nil {
		return model.TeamDetails{}, err
	}

	key := Key(centreID, teamID)
	entry := cachedTeam{FetchedAt: s.opts.Clock.Now(), Details: details}
	if err := s.store.Set(ctx, key, entry, s.opts.TTL); err != nil {
		s.logger.Warn("team cache write failed", zap.String("key", key), zap.Error(err))
	}
	return details, nil
}

// refreshAsync starts a background refresh unless one is already running
// for the team.
func (s *Service) refreshAsync(centreID, teamID string) {
	key := Key(centreID, teamID)
	c, leader := s.join(key)
	if !leader {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.RefreshTimeout)
		defer cancel()
		s.run(c, key, func() (model.TeamDetails, error) {
			return s.fetch(ctx, centreID, teamID)
		})
		if c.err != nil {
			s.logger.Warn("background team refresh failed",
				zap.String("centre_id", centreID), zap.String("team_id", teamID), zap.Error(c.err))
		}
	}()
}

// Wait blocks until background refreshes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}
