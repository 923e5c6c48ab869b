package services

import (
	"context"
	"sync"
	"time"

	"github.com/ispops/backend/internal/config"
	"github.com/sirupsen/logrus"
)

// AnalyticsRefresher keeps the default dashboard period warm in the cache.
type AnalyticsRefresher interface {
	Start(ctx context.Context)
	Stop()
}

type analyticsRefresher struct {
	analytics AnalyticsService
	interval  time.Duration
	logger    *logrus.Logger
	stopChan  chan struct{}
	mu        sync.Mutex
	running   bool
}

func NewAnalyticsRefresher(analytics AnalyticsService, interval time.Duration, logger *logrus.Logger) AnalyticsRefresher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	return &analyticsRefresher{
		analytics: analytics,
		interval:  interval,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

func (r *analyticsRefresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.logger.WithField("interval", r.interval.String()).Info("analytics refresher started")

	go func() {
		r.refresh(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.refresh(ctx)
			case <-r.stopChan:
				r.logger.Info("analytics refresher stopped")
				return
			case <-ctx.Done():
				r.logger.Info("analytics refresher context cancelled")
				return
			}
		}
	}()
}

func (r *analyticsRefresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stopChan)
}

func (r *analyticsRefresher) refresh(ctx context.Context) {
	if err := r.analytics.Refresh(ctx); err != nil {
		config.LogError(r.logger, "analytics", "refresh", "analytics refresh failed", nil, err)
	}
}
