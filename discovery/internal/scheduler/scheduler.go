// Package scheduler polls for due tracked communities and dispatches
// snapshot scrapes.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/redveille/discovery/internal/store"
)

// Config configures the scheduler.
type Config struct {
	// CheckInterval is how often to poll for due items. Default: 1 minute.
	CheckInterval time.Duration
	// SnapshotTimeout force-fails snapshots stuck in flight longer than
	// this. Default: 30 minutes.
	SnapshotTimeout time.Duration
}

func (c *Config) defaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
	if c.SnapshotTimeout <= 0 {
		c.SnapshotTimeout = 30 * time.Minute
	}
}

// Dispatcher claims a snapshot and queues its scrape. An empty task id with
// nil error means the claim was lost to another in-flight snapshot.
type Dispatcher func(ctx context.Context, communityID string, delay time.Duration) (string, error)

// Scheduler periodically sweeps stale snapshots and schedules scrapes for
// due tracked communities. Concurrent passes are safe: the snapshot claim
// inside the dispatcher is the only coordination point.
type Scheduler struct {
	store    *store.Store
	dispatch Dispatcher
	config   Config
	logger   *slog.Logger
}

// New creates a Scheduler.
func New(st *store.Store, dispatch Dispatcher, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    st,
		dispatch: dispatch,
		config:   cfg,
		logger:   logger,
	}
}

// Run polls on a ticker. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	// Run once immediately on start.
	s.Pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Pass(ctx)
		}
	}
}

// Pass executes one scheduling pass: sweep stuck snapshots, then schedule a
// scrape for every due item. Returns the number of scrapes dispatched.
func (s *Scheduler) Pass(ctx context.Context) int {
	swept, err := s.store.SweepStaleSnapshots(ctx, s.config.SnapshotTimeout)
	if err != nil {
		s.logger.Error("scheduler: sweep stale snapshots", "error", err)
	}
	for _, id := range swept {
		s.logger.Warn("scheduler: snapshot timed out", "snapshot_id", id)
	}

	due, err := s.store.DueTrackables(ctx, time.Now().UnixMilli())
	if err != nil {
		s.logger.Error("scheduler: due trackables", "error", err)
		return 0
	}

	dispatched := 0
	for _, item := range due {
		taskID, err := s.dispatch(ctx, item.CommunityID, 0)
		if err != nil {
			s.logger.Warn("scheduler: dispatch scrape",
				"community_id", item.CommunityID, "error", err)
			continue
		}
		if taskID == "" {
			continue // another snapshot is already in flight
		}
		dispatched++
	}

	if dispatched > 0 {
		s.logger.Debug("scheduler: scheduled", "due", len(due), "dispatched", dispatched)
	}
	return dispatched
}
