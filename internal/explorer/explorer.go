// Package explorer orchestrates log search across the configured
// backends: fingerprint-keyed caching, retry on transient failures,
// rate limiting, client-side residual filtering and aggregation.
package explorer

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zeteolabs/zeteo/internal/backend"
	"github.com/zeteolabs/zeteo/internal/cache"
	"github.com/zeteolabs/zeteo/internal/config"
	"github.com/zeteolabs/zeteo/internal/mcp"
	"github.com/zeteolabs/zeteo/internal/model"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
	"github.com/zeteolabs/zeteo/internal/retry"
)

// Explorer is a query session over a set of backends. One Explorer is
// safe for concurrent use; all mutable state is behind atomics or the
// cache's own locking.
type Explorer struct {
	backends map[string]backend.Client
	rpc      *mcp.Client
	cache    cache.Entries
	policy   retry.Policy
	limiter  *rate.Limiter
	log      *logger.Logger

	searches  atomic.Int64
	cacheHits atomic.Int64
	fetched   atomic.Int64
	failures  atomic.Int64
}

// Options configures a new Explorer. Backends is required; RPC and
// Cache are optional (a nil Cache disables caching, a nil RPC disables
// the tool-call search path).
type Options struct {
	Backends map[string]backend.Client
	RPC      *mcp.Client
	Cache    cache.Entries
	Policy   retry.Policy
	Query    config.QueryConfig
	Logger   *logger.Logger
}

func New(opts Options) *Explorer {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	perSecond := opts.Query.RatePerSecond
	if perSecond <= 0 {
		perSecond = 10
	}
	burst := opts.Query.RateBurst
	if burst <= 0 {
		burst = 20
	}

	policy := opts.Policy
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}

	return &Explorer{
		backends: opts.Backends,
		rpc:      opts.RPC,
		cache:    opts.Cache,
		policy:   policy,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		log:      log.WithComponent("explorer"),
	}
}

// Backends returns the configured backend ids, sorted.
func (e *Explorer) Backends() []string {
	ids := make([]string, 0, len(e.backends))
	for id := range e.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Explorer) backend(id string) (backend.Client, error) {
	c, ok := e.backends[id]
	if !ok {
		return nil, errors.Newf(errors.CodeValidation, "unknown backend: %s", id)
	}
	return c, nil
}

// Search runs one query against one backend. Results are returned in
// ascending timestamp order, capped at the query's MaxResults. Level,
// service and time-range predicates of the filter are pushed into the
// backend query; the substring predicate is applied here. Successful
// results are cached under the query fingerprint; failures never are.
func (e *Explorer) Search(ctx context.Context, backendID string, q model.LogQuery, f model.LogFilter) ([]model.LogEntry, error) {
	return e.search(ctx, backendID, q, f, true)
}

func (e *Explorer) search(ctx context.Context, backendID string, q model.LogQuery, f model.LogFilter, useCache bool) ([]model.LogEntry, error) {
	client, err := e.backend(backendID)
	if err != nil {
		return nil, err
	}

	q = pushDown(q, f).Normalize()
	f = f.Normalize()
	e.searches.Add(1)

	key := model.Fingerprint(backendID, q, f)
	if useCache && e.cache != nil {
		if entries, ok := e.cache.Get(key); ok {
			e.cacheHits.Add(1)
			e.log.Debug("cache hit", "backend", backendID, "key", key, "entries", len(entries))
			return entries, nil
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(errors.CodeTimeout, "waiting for rate limiter", err)
	}

	raw, err := retry.DoValue(ctx, e.policy, e.log, func(ctx context.Context) ([]model.LogEntry, error) {
		return client.Query(ctx, q)
	})
	if err != nil {
		e.failures.Add(1)
		return nil, err
	}
	e.fetched.Add(int64(len(raw)))

	// Backends are trusted to filter, but the window and filter are
	// re-checked here so a sloppy backend cannot widen the result set.
	entries := f.Apply(clampWindow(raw, q))
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	if len(entries) > q.MaxResults {
		// Most recent window wins once sorted ascending.
		entries = entries[len(entries)-q.MaxResults:]
	}

	if useCache && e.cache != nil {
		e.cache.Set(key, entries)
	}
	return entries, nil
}

func clampWindow(entries []model.LogEntry, q model.LogQuery) []model.LogEntry {
	if q.StartTime == nil && q.EndTime == nil && q.Level == "" && q.Service == "" {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if q.StartTime != nil && e.Timestamp.Before(*q.StartTime) {
			continue
		}
		if q.EndTime != nil && e.Timestamp.After(*q.EndTime) {
			continue
		}
		if q.Level != "" && !strings.EqualFold(e.Level, q.Level) {
			continue
		}
		if q.Service != "" && e.Service != q.Service {
			continue
		}
		out = append(out, e)
	}
	return out
}

// pushDown folds the filter's backend-expressible predicates into the
// query. Query values win when both are set; time bounds intersect.
func pushDown(q model.LogQuery, f model.LogFilter) model.LogQuery {
	if q.Level == "" {
		q.Level = f.Level
	}
	if q.Service == "" {
		q.Service = f.Service
	}
	if f.Start != nil && (q.StartTime == nil || f.Start.After(*q.StartTime)) {
		q.StartTime = f.Start
	}
	if f.End != nil && (q.EndTime == nil || f.End.Before(*q.EndTime)) {
		q.EndTime = f.End
	}
	return q
}

// SearchAll fans the query out to every backend concurrently and
// merges the results into one ascending timeline. Backends that fail
// are logged and skipped; the call errors only when every backend
// fails.
func (e *Explorer) SearchAll(ctx context.Context, q model.LogQuery, f model.LogFilter) ([]model.LogEntry, error) {
	if len(e.backends) == 0 {
		return nil, errors.New(errors.CodeConfig, "no backends configured")
	}

	var mu sync.Mutex
	var merged []model.LogEntry
	var lastErr error
	succeeded := 0

	g, ctx := errgroup.WithContext(ctx)
	for id := range e.backends {
		id := id
		g.Go(func() error {
			entries, err := e.Search(ctx, id, q, f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.log.WithError(err).Warn("backend search failed", "backend", id)
				lastErr = err
				return nil
			}
			succeeded++
			merged = append(merged, entries...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if succeeded == 0 {
		return nil, errors.Wrap(errors.CodeNetwork, "all backends failed", lastErr)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	max := q.Normalize().MaxResults
	if len(merged) > max {
		merged = merged[len(merged)-max:]
	}
	return merged, nil
}

// Aggregate searches, then computes exact counts by level and service
// plus the covered time span.
func (e *Explorer) Aggregate(ctx context.Context, backendID string, q model.LogQuery, f model.LogFilter) (model.LogAggregation, error) {
	entries, err := e.Search(ctx, backendID, q, f)
	if err != nil {
		return model.LogAggregation{}, err
	}
	return model.Aggregate(entries), nil
}

// ListServices returns the distinct service names present in the
// query's result window, sorted.
func (e *Explorer) ListServices(ctx context.Context, backendID string, q model.LogQuery) ([]string, error) {
	entries, err := e.Search(ctx, backendID, q, model.LogFilter{})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.Service != "" {
			seen[entry.Service] = true
		}
	}
	services := make([]string, 0, len(seen))
	for s := range seen {
		services = append(services, s)
	}
	sort.Strings(services)
	return services, nil
}

// HealthCheck probes every backend and reports per-backend status.
func (e *Explorer) HealthCheck(ctx context.Context) map[string]error {
	results := make(map[string]error, len(e.backends))
	var mu sync.Mutex

	var g errgroup.Group
	for id, client := range e.backends {
		id, client := id, client
		g.Go(func() error {
			err := client.HealthCheck(ctx)
			mu.Lock()
			results[id] = err
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

// Stats is a point-in-time snapshot of session counters.
type Stats struct {
	Searches       int64 `json:"searches"`
	CacheHits      int64 `json:"cache_hits"`
	EntriesFetched int64 `json:"entries_fetched"`
	Failures       int64 `json:"failures"`
	CachedKeys     int   `json:"cached_keys"`
}

func (e *Explorer) Stats() Stats {
	s := Stats{
		Searches:       e.searches.Load(),
		CacheHits:      e.cacheHits.Load(),
		EntriesFetched: e.fetched.Load(),
		Failures:       e.failures.Load(),
	}
	if e.cache != nil {
		s.CachedKeys = e.cache.Len()
	}
	return s
}

// InvalidateCache drops every cached result set.
func (e *Explorer) InvalidateCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

// Close releases the session's resources, including the RPC subprocess
// when one is attached.
func (e *Explorer) Close() error {
	if e.rpc != nil {
		return e.rpc.Close()
	}
	return nil
}
