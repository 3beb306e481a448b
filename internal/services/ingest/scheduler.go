package ingest

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
)

// Scheduler periodically retries embedding for pending passages
type Scheduler struct {
	service *Service
	config  *common.IngestConfig
	cron    *cron.Cron
	logger  arbor.ILogger
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a scheduler for the ingest service
func NewScheduler(service *Service, config *common.IngestConfig, logger arbor.ILogger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		service: service,
		config:  config,
		cron:    cron.New(),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the scheduler with the configured cron expression
func (s *Scheduler) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	schedule := s.config.Schedule
	if schedule == "" {
		schedule = "*/5 * * * *" // Default: every 5 minutes
	}

	// Each tick runs detached with panic recovery. Ticks that fire during
	// shutdown are skipped by the cancelled context.
	_, err := s.cron.AddFunc(schedule, func() {
		common.SafeGoWithContext(s.ctx, s.logger, "reembed-pending", s.runReembed)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("cron_expr", schedule).
		Int("limit", s.config.Limit).
		Msg("Pending embedding scheduler started")

	return nil
}

// Stop halts the scheduler and cancels any runs that have not started
func (s *Scheduler) Stop() {
	if !s.running {
		return
	}
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Pending embedding scheduler stopped")
}

// runReembed is invoked by cron on each tick
func (s *Scheduler) runReembed() {
	limit := s.config.Limit
	if limit <= 0 {
		limit = 50
	}

	recovered, err := s.service.ReembedPending(s.ctx, limit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Scheduled re-embedding run failed")
		return
	}
	if recovered > 0 {
		s.logger.Info().Int("recovered", recovered).Msg("Scheduled re-embedding recovered passages")
	}
}
