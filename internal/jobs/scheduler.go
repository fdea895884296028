package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"librarium/api/internal/repository"
)

// Scheduler runs the housekeeping sweeps: expired refresh sessions and reset
// tokens are purged nightly, overdue loans flagged hourly.
type Scheduler struct {
	cron     *cron.Cron
	sessions *repository.SessionRepository
	resets   *repository.ResetRepository
	loans    *repository.LoanRepository
	log      zerolog.Logger
}

func NewScheduler(
	sessions *repository.SessionRepository,
	resets *repository.ResetRepository,
	loans *repository.LoanRepository,
	log zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		sessions: sessions,
		resets:   resets,
		loans:    loans,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 0 3 * * *", s.purgeExpired); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 * * * *", s.sweepOverdue); err != nil { // hourly
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits briefly for a running job to finish.
func (s *Scheduler) Stop() {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) purgeExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sessions, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("purge expired sessions failed")
	}
	resets, err := s.resets.DeleteExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("purge expired resets failed")
	}

	s.log.Info().
		Int64("sessions", sessions).
		Int64("resets", resets).
		Msg("expired records purged")
}

func (s *Scheduler) sweepOverdue() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	flagged, err := s.loans.MarkOverdue(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("overdue sweep failed")
		return
	}
	if flagged > 0 {
		s.log.Info().Int64("loans", flagged).Msg("loans marked overdue")
	}
}
