package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Warmer precomputes results ahead of requests
type Warmer interface {
	Warm(ctx context.Context) error
}

type Scheduler struct {
	cron       *cron.Cron
	warmer     Warmer
	spec       string
	jobTimeout time.Duration
	logger     *logrus.Logger
}

// NewScheduler creates a scheduler running warmer on the cron spec
func NewScheduler(warmer Warmer, spec string, jobTimeout time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger), cron.Recover(cron.DiscardLogger))),
		warmer:     warmer,
		spec:       spec,
		jobTimeout: jobTimeout,
		logger:     logger,
	}
}

// Start registers the warm-up job and starts the cron loop. The first run
// happens immediately in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.runWarm(ctx) }); err != nil {
		return fmt.Errorf("invalid warm-up schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	go s.runWarm(ctx)

	s.logger.WithField("spec", s.spec).Info("Scheduler started")
	return nil
}

// Stop stops the cron loop and waits for a running job to finish
func (s *Scheduler) Stop() error {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) runWarm(parent context.Context) {
	if parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, s.jobTimeout)
	defer cancel()

	start := time.Now()
	if err := s.warmer.Warm(ctx); err != nil {
		s.logger.WithError(err).Warn("Cache warm-up failed")
		return
	}

	s.logger.WithField("duration", time.Since(start)).Info("Cache warm-up completed")
}
