package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fulfillment-service/internal/services"
)

// BulkTracker is the part of the tracking reconciler the job drives
type BulkTracker interface {
	BulkUpdateTracking(ctx context.Context) (*services.BulkSyncResult, error)
}

// TrackingSyncJob periodically reconciles tracking for every moving shipment
type TrackingSyncJob struct {
	tracker  BulkTracker
	logger   *logrus.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTrackingSyncJob creates a new tracking sync job
func NewTrackingSyncJob(tracker BulkTracker, interval time.Duration, logger *logrus.Logger) *TrackingSyncJob {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &TrackingSyncJob{
		tracker:  tracker,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs a sync immediately, then on every tick until stopped
func (j *TrackingSyncJob) Start(ctx context.Context) {
	j.logger.WithField("interval", j.interval.String()).Info("Tracking sync job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runSync(ctx)

	for {
		select {
		case <-ticker.C:
			j.runSync(ctx)
		case <-j.stopCh:
			j.logger.Info("Tracking sync job stopped")
			return
		case <-ctx.Done():
			j.logger.Info("Tracking sync job context cancelled")
			return
		}
	}
}

// Stop signals the job to stop
func (j *TrackingSyncJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

func (j *TrackingSyncJob) runSync(ctx context.Context) {
	j.logger.Debug("Running tracking sync...")

	result, err := j.tracker.BulkUpdateTracking(ctx)
	if err != nil {
		j.logger.Errorf("Tracking sync failed: %v", err)
		return
	}

	if result.Total == 0 {
		j.logger.Debug("No shipments need tracking")
		return
	}

	j.logger.Infof("Tracking sync: %d orders, %d updated, %d failed", result.Total, result.Successful, result.Failed)
}
