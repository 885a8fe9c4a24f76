package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const jobTimeout = 5 * time.Minute

type Config struct {
	ReferralsSpec     string
	NotificationsSpec string
}

type Scheduler struct {
	cron *cron.Cron
	jobs *Jobs
	cfg  Config
	log  *zerolog.Logger
}

type cronLogger struct {
	log *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

func New(jobs *Jobs, cfg Config, log *zerolog.Logger) *Scheduler {
	logger := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger))),
		jobs: jobs,
		cfg:  cfg,
		log:  log,
	}
}

// Start registers both batch jobs. A bad cron expression is a configuration error
// and stops startup.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.ReferralsSpec, s.runReferrals); err != nil {
		return fmt.Errorf("schedule referral job %q: %w", s.cfg.ReferralsSpec, err)
	}
	s.log.Info().Str("schedule", s.cfg.ReferralsSpec).Msg("scheduled referral job")

	if _, err := s.cron.AddFunc(s.cfg.NotificationsSpec, s.runNotifications); err != nil {
		return fmt.Errorf("schedule notification job %q: %w", s.cfg.NotificationsSpec, err)
	}
	s.log.Info().Str("schedule", s.cfg.NotificationsSpec).Msg("scheduled notification job")

	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) runReferrals() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.jobs.ProcessReferrals(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduled referral pass failed")
	}
}

func (s *Scheduler) runNotifications() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.jobs.SendNotifications(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduled notification dispatch failed")
	}
}
