package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
)

// Sweeper fails records that have been 분석중 for longer than StuckAfter, which
// happens when a process dies between setting the status and finishing.
type Sweeper struct {
	files      repository.FileRepository
	logger     *slog.Logger
	interval   time.Duration
	stuckAfter time.Duration
	now        func() time.Time
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithStuckAfter(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.stuckAfter = d
		}
	}
}

func withClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

func NewSweeper(files repository.FileRepository, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		files:      files,
		logger:     logger,
		interval:   time.Minute,
		stuckAfter: 10 * time.Minute,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper.started", "interval", s.interval, "stuck_after", s.stuckAfter)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweeper.sweep_failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper.stopped")
			return nil
		case <-t.C:
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.files.MarkStuckFailed(ctx, s.now().Add(-s.stuckAfter), timeoutMessage)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("sweeper.marked_failed", "count", n)
	}
	return n, nil
}
