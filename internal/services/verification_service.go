package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/spk-service/internal/domain"
	"github.com/tbourn/spk-service/internal/spknum"
)

// Reasons reported for a number that does not verify.
const (
	ReasonMalformed   = "malformed"
	ReasonAlreadyUsed = "already used"
	ReasonExpired     = "expired or unknown"
)

// Verification is the outcome of checking an SPK.
type Verification struct {
	Valid       bool
	Reservation *domain.Reservation
	Reason      string
}

// VerificationService checks that a number is currently reserved and keeps
// the reservation alive while it is being used.
type VerificationService struct {
	Reservations ReservationStore
	Orders       OrderLookup
	Format       spknum.Format
	TTL          time.Duration

	// Retries and Backoff control local retries on storage errors.
	Retries int
	Backoff time.Duration
}

// NewVerificationService returns a VerificationService with three attempts
// and a 50ms linear backoff.
func NewVerificationService(r ReservationStore, o OrderLookup, f spknum.Format, ttl time.Duration) *VerificationService {
	return &VerificationService{
		Reservations: r,
		Orders:       o,
		Format:       f,
		TTL:          ttl,
		Retries:      3,
		Backoff:      50 * time.Millisecond,
	}
}

// Verify reports whether number is reserved at now. A successful check slides
// the reservation expiry to now+TTL.
func (s *VerificationService) Verify(ctx context.Context, number string, now time.Time) (*Verification, error) {
	tr := otel.Tracer("services/VerificationService")
	ctx, span := tr.Start(ctx, "Verify",
		trace.WithAttributes(attribute.String("spk.number", number)),
	)
	defer span.End()

	if !s.Format.Valid(number) {
		spkVerifications.WithLabelValues("malformed").Inc()
		return &Verification{Reason: ReasonMalformed}, nil
	}

	var res *domain.Reservation
	err := s.retry(ctx, func() error {
		r, err := s.Reservations.Extend(ctx, number, now, s.ttl())
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	switch {
	case err == nil:
		spkVerifications.WithLabelValues("valid").Inc()
		return &Verification{Valid: true, Reservation: res}, nil
	case !errors.Is(err, ErrReservationNotFound):
		span.RecordError(err)
		spkVerifications.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	if s.Orders == nil {
		spkVerifications.WithLabelValues("expired").Inc()
		return &Verification{Reason: ReasonExpired}, nil
	}

	var used bool
	err = s.retry(ctx, func() error {
		u, err := s.Orders.ExistsBySPK(ctx, number)
		used = u
		return err
	})
	if err != nil {
		span.RecordError(err)
		spkVerifications.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	if used {
		spkVerifications.WithLabelValues("used").Inc()
		return &Verification{Reason: ReasonAlreadyUsed}, nil
	}
	spkVerifications.WithLabelValues("expired").Inc()
	return &Verification{Reason: ReasonExpired}, nil
}

// retry runs fn until it succeeds, returns ErrReservationNotFound, or the
// attempt budget is spent. Waits grow linearly between attempts.
func (s *VerificationService) retry(ctx context.Context, fn func() error) error {
	attempts := s.Retries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || errors.Is(err, ErrReservationNotFound) {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		zerolog.Ctx(ctx).Warn().Err(err).Int("attempt", i+1).Msg("verification storage error")
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Backoff * time.Duration(i+1)):
		}
	}
	return err
}

func (s *VerificationService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultTTL
	}
	return s.TTL
}
