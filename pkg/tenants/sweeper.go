package tenants

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/edpsych-connect/connect/pkg/observability"
)

// DefaultSweepSchedule runs the invitation sweep every five minutes
const DefaultSweepSchedule = "@every 5m"

// Sweeper periodically marks overdue invitations expired
type Sweeper struct {
	cron    *cron.Cron
	manager *Manager
	logger  *observability.Logger
	timeout time.Duration
}

// NewSweeper schedules manager.ExpireInvitations on a cron spec such as
// "@every 5m" or "*/10 * * * *"
func NewSweeper(manager *Manager, schedule string, logger *observability.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	s := &Sweeper{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		manager: manager,
		logger:  logger.WithField("job", "invitation_sweeper"),
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// AddFunc schedules another job on the sweeper's cron
func (s *Sweeper) AddFunc(schedule string, job func()) error {
	if _, err := s.cron.AddFunc(schedule, job); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// Start runs the schedule in the background
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("Invitation sweeper started")
}

// Stop stops scheduling and waits for a running sweep to finish or ctx to
// end
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Invitation sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single sweep
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return s.manager.ExpireInvitations(ctx)
}

func (s *Sweeper) run() {
	defer observability.RecoverPanic(s.logger, "invitation sweeper")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Invitation sweep failed")
		return
	}
	if n > 0 {
		s.logger.Infof("Expired %d invitations", n)
	}
}
