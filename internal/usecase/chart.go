package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PricePulse/internal/aggregate"
	tickcache "PricePulse/internal/cache"
	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	pkgcache "PricePulse/pkg/cache"
	applogger "PricePulse/pkg/logger"
)

// ErrNoData indicates no tick has been observed yet.
var ErrNoData = errors.New("no tick data available")

// ChartUseCase serves bucketed chart reads. The hot window comes from the
// in-memory tick cache; queries reaching further back than the cache
// covers fall through to the durable store. Assembled pages are kept in a
// short-TTL response cache.
type ChartUseCase struct {
	ticks   *tickcache.Bounded
	store   domrepo.TickStore
	respTTL time.Duration
	resp    pkgcache.Service
	metrics domrepo.Metrics
	log     *applogger.Logger
	now     func() time.Time
}

// ChartOption configures ChartUseCase.
type ChartOption func(*ChartUseCase)

// WithResponseCache enables the short-TTL response cache.
func WithResponseCache(c pkgcache.Service, ttl time.Duration) ChartOption {
	return func(uc *ChartUseCase) {
		uc.resp = c
		uc.respTTL = ttl
	}
}

func NewChartUseCase(
	ticks *tickcache.Bounded,
	store domrepo.TickStore,
	metrics domrepo.Metrics,
	log *applogger.Logger,
	opts ...ChartOption,
) *ChartUseCase {
	uc := &ChartUseCase{
		ticks:   ticks,
		store:   store,
		respTTL: 10 * time.Second,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type GetChartParams struct {
	Granularity domrepo.Granularity
	Page        int
	Limit       int
}

// GetChart returns one page of buckets for the granularity's window.
func (uc *ChartUseCase) GetChart(ctx context.Context, p GetChartParams) (*models.ChartResponse, error) {
	if !domrepo.IsValidGranularity(p.Granularity) {
		return nil, fmt.Errorf("invalid granularity %q", p.Granularity)
	}
	if p.Page < 0 {
		return nil, fmt.Errorf("page must be >= 0")
	}
	if p.Limit <= 0 || p.Limit > 20000 {
		return nil, fmt.Errorf("limit must be in 1..20000")
	}

	cacheKey := fmt.Sprintf("chart:%s:%d:%d", p.Granularity, p.Page, p.Limit)
	if uc.resp != nil {
		var cached models.ChartResponse
		if err := uc.resp.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, pkgcache.ErrCacheMiss) {
			uc.log.Warn("chart cache read failed", applogger.Error(err))
		}
	}

	start := uc.now()
	cutoff := aggregate.Cutoff(start, p.Granularity)

	rows, err := uc.windowRows(ctx, cutoff, start)
	if err != nil {
		uc.metrics.RecordError("chart_query")
		return nil, err
	}

	points := aggregate.Buckets(rows, p.Granularity)
	page, nextPage, hasMore := paginate(points, p.Page, p.Limit)

	resp := &models.ChartResponse{
		Points:   page,
		Latest:   uc.latestTick(ctx),
		Page:     p.Page,
		NextPage: nextPage,
		HasMore:  hasMore,
	}

	uc.metrics.RecordLatency("chart", uc.now().Sub(start).Seconds())

	if uc.resp != nil {
		if err := uc.resp.Set(ctx, cacheKey, resp, uc.respTTL); err != nil {
			uc.log.Warn("chart cache write failed", applogger.Error(err))
		}
	}
	return resp, nil
}

// GetLatest returns the most recent tick.
func (uc *ChartUseCase) GetLatest(ctx context.Context) (*models.Tick, error) {
	if t := uc.latestTick(ctx); t != nil {
		return t, nil
	}
	return nil, ErrNoData
}

// windowRows serves the window from the in-memory cache when it reaches
// back at least to the cutoff, otherwise from the durable store.
func (uc *ChartUseCase) windowRows(ctx context.Context, cutoff, now time.Time) ([]models.Tick, error) {
	if uc.ticks.Covers(cutoff) {
		return uc.ticks.Since(cutoff), nil
	}

	rows, err := uc.store.Range(ctx, cutoff, now)
	if err != nil {
		return nil, fmt.Errorf("chart window query: %w", err)
	}
	return rows, nil
}

func (uc *ChartUseCase) latestTick(ctx context.Context) *models.Tick {
	if t, ok := uc.ticks.Last(); ok {
		return &t
	}

	rows, err := uc.store.Latest(ctx, 1)
	if err != nil {
		uc.log.Warn("latest tick query failed", applogger.Error(err))
		return nil
	}
	if len(rows) == 0 {
		return nil
	}
	return &rows[0]
}

// paginate slices points into fixed-size pages. A page past the end yields
// an empty slice, not an error.
func paginate(points []models.Bucket, page, limit int) ([]models.Bucket, *int, bool) {
	offset := page * limit
	if offset >= len(points) {
		return []models.Bucket{}, nil, false
	}

	end := offset + limit
	if end > len(points) {
		end = len(points)
	}

	out := points[offset:end]
	if end < len(points) {
		next := page + 1
		return out, &next, true
	}
	return out, nil, false
}
