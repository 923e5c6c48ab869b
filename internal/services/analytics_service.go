package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ispops/backend/internal/config"
	"github.com/ispops/backend/internal/database"
	"github.com/ispops/backend/internal/models"
	"github.com/ispops/backend/internal/repository"
	"github.com/sirupsen/logrus"
)

const (
	analyticsGenerationKey = "analytics:generation"
	maxPeriodDays          = 366
)

// AnalyticsCache is implemented by database.RedisStore.
type AnalyticsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Counter(ctx context.Context, key string) (int64, error)
}

type AnalyticsService interface {
	GetAnalytics(ctx context.Context, query models.AnalyticsQuery) (*models.Analytics, error)
	// Refresh recomputes and caches the default period.
	Refresh(ctx context.Context) error
	// Invalidate drops every cached result; called after each committed write.
	Invalidate(ctx context.Context) error
}

type AnalyticsOptions struct {
	DefaultPeriodDays int
	CacheTTL          time.Duration
	Aggregate         AggregateOptions
}

type analyticsService struct {
	complaints repository.ComplaintRepository
	cache      AnalyticsCache
	opts       AnalyticsOptions
	logger     *logrus.Logger
	now        func() time.Time
}

func NewAnalyticsService(complaints repository.ComplaintRepository, cache AnalyticsCache, opts AnalyticsOptions, logger *logrus.Logger, clock func() time.Time) AnalyticsService {
	if opts.DefaultPeriodDays <= 0 {
		opts.DefaultPeriodDays = 30
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	opts.Aggregate = opts.Aggregate.normalized()
	if logger == nil {
		logger = config.GetLogger()
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &analyticsService{complaints: complaints, cache: cache, opts: opts, logger: logger, now: clock}
}

// ResolvePeriod turns a query into a concrete window. Without explicit bounds the
// window ends at the next UTC midnight so results stay stable within a day.
func (s *analyticsService) ResolvePeriod(query models.AnalyticsQuery) (models.AnalyticsPeriod, error) {
	days := query.Days
	if days <= 0 {
		days = s.opts.DefaultPeriodDays
	}
	if days > maxPeriodDays {
		return models.AnalyticsPeriod{}, validationError("period may not exceed %d days", maxPeriodDays)
	}

	to := dayOf(s.now()).AddDate(0, 0, 1)
	if query.To != nil {
		to = query.To.UTC()
	}
	from := to.AddDate(0, 0, -days)
	if query.From != nil {
		from = query.From.UTC()
	}
	if !from.Before(to) {
		return models.AnalyticsPeriod{}, validationError("period start must be before its end")
	}
	if to.Sub(from) > maxPeriodDays*24*time.Hour {
		return models.AnalyticsPeriod{}, validationError("period may not exceed %d days", maxPeriodDays)
	}
	return models.AnalyticsPeriod{From: from, To: to}, nil
}

func (s *analyticsService) GetAnalytics(ctx context.Context, query models.AnalyticsQuery) (*models.Analytics, error) {
	period, err := s.ResolvePeriod(query)
	if err != nil {
		return nil, err
	}

	key, cacheable := s.cacheKey(ctx, period)
	if cacheable {
		var cached models.Analytics
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, database.ErrCacheMiss) {
			config.LogError(s.logger, "analytics", "GetAnalytics", "cache read failed", key, err)
		}
	}

	result, err := s.compute(ctx, period)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.Set(ctx, key, result, s.opts.CacheTTL); err != nil {
			config.LogError(s.logger, "analytics", "GetAnalytics", "cache write failed", key, err)
		}
	}
	return result, nil
}

func (s *analyticsService) compute(ctx context.Context, period models.AnalyticsPeriod) (*models.Analytics, error) {
	snapshot, err := s.complaints.Snapshot(ctx, SnapshotWindow(period, s.opts.Aggregate.TrendDays))
	if err != nil {
		config.LogError(s.logger, "analytics", "compute", "snapshot read failed", period, err)
		return nil, storageError(err)
	}
	return Aggregate(snapshot, period, s.opts.Aggregate), nil
}

// cacheKey embeds the write generation, so bumping it invalidates every entry.
func (s *analyticsService) cacheKey(ctx context.Context, period models.AnalyticsPeriod) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	generation, err := s.cache.Counter(ctx, analyticsGenerationKey)
	if err != nil {
		config.LogError(s.logger, "analytics", "cacheKey", "generation read failed", nil, err)
		return "", false
	}
	return fmt.Sprintf("analytics:%d:%d:%d", generation, period.From.Unix(), period.To.Unix()), true
}

func (s *analyticsService) Refresh(ctx context.Context) error {
	_, err := s.GetAnalytics(ctx, models.AnalyticsQuery{})
	return err
}

func (s *analyticsService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	_, err := s.cache.Incr(ctx, analyticsGenerationKey)
	return err
}
