// Package retention schedules the periodic sweeps that keep the store
// bounded: span/alert retention and baseline garbage collection (§4's
// store lifecycle operations), driven by robfig/cron the way the teacher
// schedules its own recurring jobs.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tracecore/tracecore/internal/domain/alert"
	"github.com/tracecore/tracecore/internal/logging"
	"github.com/tracecore/tracecore/internal/storage"
)

// Scheduler runs retention sweeps on a cron schedule.
type Scheduler struct {
	spans     storage.SpanStore
	baselines storage.BaselineStore
	alerts    storage.AlertStore
	logger    *logging.Logger

	retentionDays int

	cron *cron.Cron
}

// New builds a Scheduler. retentionDays bounds how long spans (and their
// cascade-deleted alerts/replay rows) are kept.
func New(spans storage.SpanStore, baselines storage.BaselineStore, alerts storage.AlertStore, logger *logging.Logger, retentionDays int) *Scheduler {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Scheduler{
		spans:         spans,
		baselines:     baselines,
		alerts:        alerts,
		logger:        logger,
		retentionDays: retentionDays,
		cron:          cron.New(),
	}
}

// Start registers the sweep jobs and begins running them. Call Stop to halt.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("0 3 * * *", func() { s.runSpanRetention(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("15 3 * * *", func() { s.runBaselineGC(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("*/5 * * * *", func() { s.runAlertExpiry(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

func (s *Scheduler) runSpanRetention(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	n, err := s.spans.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.WithContext(ctx).WithField("error", err).Error("span retention sweep failed")
		return
	}
	s.logger.WithContext(ctx).WithField("deleted", n).Info("span retention sweep completed")
}

func (s *Scheduler) runBaselineGC(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -7)
	n, err := s.baselines.GarbageCollect(ctx, cutoff)
	if err != nil {
		s.logger.WithContext(ctx).WithField("error", err).Error("baseline garbage collection failed")
		return
	}
	s.logger.WithContext(ctx).WithField("removed", n).Info("baseline garbage collection completed")
}

func (s *Scheduler) runAlertExpiry(ctx context.Context) {
	now := time.Now()
	n, err := s.alerts.ExpireStale(ctx, now.Add(-alert.AutoExpire), now)
	if err != nil {
		s.logger.WithContext(ctx).WithField("error", err).Error("alert auto-expiry failed")
		return
	}
	if n > 0 {
		s.logger.WithContext(ctx).WithField("expired", n).Info("stale alerts auto-resolved")
	}
}

// RunNow triggers every sweep immediately, used by tests that don't want to
// wait on the cron schedule. No HTTP route calls it.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.runSpanRetention(ctx)
	s.runBaselineGC(ctx)
	s.runAlertExpiry(ctx)
}
