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
	"gorm.io/gorm"

	"github.com/tbourn/spk-service/internal/spknum"
)

const (
	modeAtomic   = "atomic"
	modeDegraded = "degraded"
	modeReplay   = "replay"

	// DefaultTTL is how long a freshly issued number stays reserved.
	DefaultTTL = 15 * time.Minute
	// DefaultMaxAttempts bounds claim attempts per Generate call.
	DefaultMaxAttempts = 5
)

// Issued is a freshly reserved SPK.
type Issued struct {
	SPK       string
	Prefix    string
	Sequence  int64
	CreatedAt time.Time
	ExpiresAt time.Time
	// Degraded is set when the counter was unavailable and the number came
	// from scanning persisted orders.
	Degraded bool
	// Replayed is set when an Idempotency-Key matched an earlier issuance.
	Replayed bool
}

// GenerationService issues unique, reserved SPK numbers.
type GenerationService struct {
	Counter      Counter
	Reservations ReservationStore
	Orders       OrderLookup

	// Idempotency is optional; without it keys are ignored.
	Idempotency    IdempotencyRepo
	IdempotencyTTL time.Duration

	Format      spknum.Format
	TTL         time.Duration
	MaxAttempts int
	// Location decides which month a timestamp belongs to.
	Location *time.Location
}

// NewGenerationService wires a GenerationService with default TTL, attempt
// budget and UTC month boundaries.
func NewGenerationService(c Counter, r ReservationStore, o OrderLookup, f spknum.Format) *GenerationService {
	return &GenerationService{
		Counter:      c,
		Reservations: r,
		Orders:       o,
		Format:       f,
		TTL:          DefaultTTL,
		MaxAttempts:  DefaultMaxAttempts,
		Location:     time.UTC,
	}
}

// Generate reserves the next number for the month containing now.
//
// The atomic path increments the counter and claims the formatted number.
// If the counter cannot be used, numbers are derived from the highest order
// already persisted for the month and the result is flagged Degraded.
func (s *GenerationService) Generate(ctx context.Context, now time.Time) (*Issued, error) {
	prefix := spknum.Prefix(now.In(s.location()))

	tr := otel.Tracer("services/GenerationService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(attribute.String("spk.prefix", prefix)),
	)
	defer span.End()

	issued, err := s.generate(ctx, prefix, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("spk.number", issued.SPK),
		attribute.Bool("spk.degraded", issued.Degraded),
	)
	return issued, nil
}

func (s *GenerationService) generate(ctx context.Context, prefix string, now time.Time) (*Issued, error) {
	log := zerolog.Ctx(ctx)
	attempts := s.attempts()

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, s.fail("context", fmt.Errorf("%w: %w", ErrGenerationFailed, err))
		}

		seq, err := s.Counter.Increment(ctx, prefix, now)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				// The increment may have landed; its value is lost, never reissued.
				return nil, s.fail("context", fmt.Errorf("%w: %w", ErrGenerationFailed, cerr))
			}
			log.Warn().Err(err).Str("prefix", prefix).Str("mode", modeDegraded).
				Msg("sequence counter unavailable, scanning orders")
			return s.generateDegraded(ctx, prefix, now, fmt.Errorf("%w: %v", ErrCounterUnavailable, err))
		}

		if !s.Format.Fits(seq) {
			log.Error().Str("prefix", prefix).Int64("sequence", seq).Int("width", s.Format.Width).
				Msg("monthly sequence exhausted")
			return nil, s.fail("overflow", fmt.Errorf("%w: prefix %s reached %d", ErrSequenceOverflow, prefix, seq))
		}

		number := s.Format.Compose(prefix, seq)
		issued, outcome, err := s.claim(ctx, prefix, number, seq, now)
		if err != nil {
			return nil, err
		}
		if outcome == claimOrdered {
			// The counter trails the orders table (typically after degraded
			// issuance). Move it past them.
			s.heal(ctx, prefix, now)
		}
		if outcome != claimed {
			continue
		}

		spkGenerated.WithLabelValues(modeAtomic).Inc()
		return issued, nil
	}

	log.Warn().Str("prefix", prefix).Int("attempts", attempts).Msg("spk generation attempts exhausted")
	return nil, s.fail("exhausted", fmt.Errorf("%w: %d attempts exhausted", ErrGenerationFailed, attempts))
}

// generateDegraded claims MaxSequence(prefix)+1, +2, ... until one sticks.
func (s *GenerationService) generateDegraded(ctx context.Context, prefix string, now time.Time, cause error) (*Issued, error) {
	if s.Orders == nil {
		return nil, s.fail("counter", fmt.Errorf("%w: %w", ErrGenerationFailed, cause))
	}
	highest, err := s.Orders.MaxSequence(ctx, prefix, s.Format.Width)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, s.fail("context", fmt.Errorf("%w: %w", ErrGenerationFailed, cerr))
		}
		return nil, s.fail("counter", fmt.Errorf("%w: %w: order scan: %v", ErrGenerationFailed, cause, err))
	}

	candidate := highest + 1
	attempts := s.attempts()
	for i := 0; i < attempts; i++ {
		if !s.Format.Fits(candidate) {
			zerolog.Ctx(ctx).Error().Str("prefix", prefix).Int64("sequence", candidate).
				Msg("monthly sequence exhausted")
			return nil, s.fail("overflow", fmt.Errorf("%w: prefix %s reached %d", ErrSequenceOverflow, prefix, candidate))
		}
		number := s.Format.Compose(prefix, candidate)
		issued, outcome, err := s.claim(ctx, prefix, number, candidate, now)
		if err != nil {
			return nil, err
		}
		candidate++
		if outcome != claimed {
			continue
		}
		issued.Degraded = true
		spkGenerated.WithLabelValues(modeDegraded).Inc()
		zerolog.Ctx(ctx).Warn().Str("spk", issued.SPK).Str("mode", modeDegraded).
			Msg("spk issued without sequence counter")
		return issued, nil
	}
	return nil, s.fail("exhausted", fmt.Errorf("%w: %w: %d degraded attempts exhausted", ErrGenerationFailed, cause, attempts))
}

type claimOutcome int

const (
	claimed claimOutcome = iota
	// claimLost covers a live reservation and transient store errors alike;
	// both spend one attempt.
	claimLost
	// claimOrdered means the number already belongs to an order.
	claimOrdered
)

// claim tries to reserve number. Only a context failure is returned as an
// error; every other miss is reported through the outcome.
func (s *GenerationService) claim(ctx context.Context, prefix, number string, seq int64, now time.Time) (*Issued, claimOutcome, error) {
	log := zerolog.Ctx(ctx)

	ok, err := s.Reservations.Claim(ctx, number, now, s.ttl())
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, claimLost, s.fail("context", fmt.Errorf("%w: %w", ErrGenerationFailed, cerr))
		}
		log.Warn().Err(err).Str("spk", number).Msg("reservation claim failed")
		spkClaimCollisions.WithLabelValues("store_error").Inc()
		return nil, claimLost, nil
	}
	if !ok {
		log.Debug().Str("spk", number).Msg("reservation collision")
		spkClaimCollisions.WithLabelValues("reserved").Inc()
		return nil, claimLost, nil
	}

	if s.Orders != nil {
		used, err := s.Orders.ExistsBySPK(ctx, number)
		if err != nil || used {
			if rerr := s.Reservations.Release(context.WithoutCancel(ctx), number); rerr != nil {
				log.Warn().Err(rerr).Str("spk", number).Msg("release after order check failed")
			}
		}
		switch {
		case err != nil:
			if cerr := ctx.Err(); cerr != nil {
				return nil, claimLost, s.fail("context", fmt.Errorf("%w: %w", ErrGenerationFailed, cerr))
			}
			log.Warn().Err(err).Str("spk", number).Msg("order lookup failed")
			return nil, claimLost, nil
		case used:
			log.Warn().Str("spk", number).Msg("number already used by an order")
			spkClaimCollisions.WithLabelValues("ordered").Inc()
			return nil, claimOrdered, nil
		}
	}

	return &Issued{
		SPK:       number,
		Prefix:    prefix,
		Sequence:  seq,
		CreatedAt: now.UTC(),
		ExpiresAt: now.UTC().Add(s.ttl()),
	}, claimed, nil
}

// heal moves the counter up to the highest persisted order for prefix.
func (s *GenerationService) heal(ctx context.Context, prefix string, now time.Time) {
	highest, err := s.Orders.MaxSequence(ctx, prefix, s.Format.Width)
	if err == nil {
		err = s.Counter.AdvanceTo(ctx, prefix, highest, now)
	}
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("prefix", prefix).Msg("counter resync failed")
		return
	}
	zerolog.Ctx(ctx).Info().Str("prefix", prefix).Int64("advanced_to", highest).Msg("counter advanced past persisted orders")
}

// GenerateIdempotent behaves like Generate, except that a repeated key from
// the same client returns the originally issued number while its reservation
// is still live. Replays slide the reservation forward.
func (s *GenerationService) GenerateIdempotent(ctx context.Context, clientID, key string, now time.Time) (*Issued, error) {
	if key == "" || s.Idempotency == nil {
		return s.Generate(ctx, now)
	}

	rec, err := s.Idempotency.Get(ctx, clientID, key, now)
	switch {
	case err == nil:
		issued, rerr := s.replay(ctx, rec.SPK, now)
		if rerr == nil {
			return issued, nil
		}
		if !errors.Is(rerr, ErrReservationNotFound) {
			return nil, s.fail("idempotency", fmt.Errorf("%w: replay: %v", ErrGenerationFailed, rerr))
		}
		// The earlier number lapsed or was consumed; issue a new one under the same key.
		if ferr := s.Idempotency.Forget(ctx, clientID, key); ferr != nil {
			return nil, s.fail("idempotency", fmt.Errorf("%w: %v", ErrGenerationFailed, ferr))
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, s.fail("idempotency", fmt.Errorf("%w: idempotency lookup: %v", ErrGenerationFailed, err))
	}

	issued, err := s.Generate(ctx, now)
	if err != nil {
		return nil, err
	}

	_, err = s.Idempotency.Save(ctx, clientID, key, issued.SPK, now, s.idempotencyTTL())
	if err == nil {
		return issued, nil
	}

	// A concurrent request with the same key won; hand out its number and
	// drop ours.
	if winner, gerr := s.Idempotency.Get(ctx, clientID, key, now); gerr == nil {
		if replayed, rerr := s.replay(ctx, winner.SPK, now); rerr == nil {
			if relErr := s.Reservations.Release(context.WithoutCancel(ctx), issued.SPK); relErr != nil {
				zerolog.Ctx(ctx).Warn().Err(relErr).Str("spk", issued.SPK).Msg("release of losing idempotent issuance failed")
			}
			return replayed, nil
		}
	}
	zerolog.Ctx(ctx).Warn().Err(err).Str("spk", issued.SPK).Msg("idempotency record not saved")
	return issued, nil
}

func (s *GenerationService) replay(ctx context.Context, number string, now time.Time) (*Issued, error) {
	r, err := s.Reservations.Extend(ctx, number, now, s.ttl())
	if err != nil {
		return nil, err
	}
	prefix, seq, err := s.Format.Parse(number)
	if err != nil {
		return nil, err
	}
	spkGenerated.WithLabelValues(modeReplay).Inc()
	return &Issued{
		SPK:       r.Number,
		Prefix:    prefix,
		Sequence:  seq,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		Replayed:  true,
	}, nil
}

func (s *GenerationService) fail(reason string, err error) error {
	spkGenerationFailures.WithLabelValues(reason).Inc()
	return err
}

func (s *GenerationService) attempts() int {
	if s.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return s.MaxAttempts
}

func (s *GenerationService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultTTL
	}
	return s.TTL
}

func (s *GenerationService) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return s.ttl()
	}
	return s.IdempotencyTTL
}

func (s *GenerationService) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}
