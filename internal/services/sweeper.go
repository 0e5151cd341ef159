package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExpiredIdempotencyPurger drops lapsed idempotency records.
type ExpiredIdempotencyPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically removes expired reservations. Correctness never
// depends on it: expired rows are already ignored by every read.
type Sweeper struct {
	Reservations ReservationStore
	Idempotency  ExpiredIdempotencyPurger
	Interval     time.Duration
	Now          func() time.Time
}

// NewSweeper builds a Sweeper with the wall clock.
func NewSweeper(r ReservationStore, interval time.Duration) *Sweeper {
	return &Sweeper{Reservations: r, Interval: interval, Now: time.Now}
}

// SweepOnce runs a single pass and returns the number of reservations removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.Reservations.SweepExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	spkSwept.Add(float64(n))

	if s.Idempotency != nil {
		if _, err := s.Idempotency.DeleteExpired(ctx, now); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("idempotency purge failed")
		}
	}
	return n, nil
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log := zerolog.Ctx(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("reservation sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reservation sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Error().Err(err).Msg("reservation sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("removed", n).Msg("expired reservations swept")
			}
		}
	}
}

func (s *Sweeper) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
