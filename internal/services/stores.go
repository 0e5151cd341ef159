package services

import (
	"context"
	"time"

	"github.com/tbourn/spk-service/internal/domain"
)

// Counter hands out per-prefix sequence values.
type Counter interface {
	// Increment atomically returns the next value for prefix, starting at 1.
	Increment(ctx context.Context, prefix string, now time.Time) (int64, error)

	// AdvanceTo raises the counter to at least value. It never lowers it.
	AdvanceTo(ctx context.Context, prefix string, value int64, now time.Time) error
}

// ReservationStore holds time-boxed claims on formatted numbers.
type ReservationStore interface {
	// Claim returns true if the caller now holds number until now+ttl, false
	// if a live reservation already holds it.
	Claim(ctx context.Context, number string, now time.Time, ttl time.Duration) (bool, error)

	// Extend slides a live reservation to now+ttl, or returns
	// ErrReservationNotFound.
	Extend(ctx context.Context, number string, now time.Time, ttl time.Duration) (*domain.Reservation, error)

	// SweepExpired removes reservations with expires_at <= now.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)

	// Release drops the reservation for number, if any.
	Release(ctx context.Context, number string) error
}

// OrderLookup answers questions about numbers already consumed by orders.
type OrderLookup interface {
	ExistsBySPK(ctx context.Context, spk string) (bool, error)
	MaxSequence(ctx context.Context, prefix string, width int) (int64, error)
}

// OrderRepo persists orders.
type OrderRepo interface {
	OrderLookup
	Create(ctx context.Context, o *domain.Order) error
	EachBatch(ctx context.Context, batchSize int, fn func([]domain.Order) error) error
}

// CounterRepo is the audit view over sequence counters.
type CounterRepo interface {
	Counter
	Get(ctx context.Context, prefix string) (*domain.SequenceCounter, error)
	Count(ctx context.Context) (int64, error)
	ListPage(ctx context.Context, offset, limit int) ([]domain.SequenceCounter, error)
}

// IdempotencyRepo remembers the SPK issued for a client-supplied key.
type IdempotencyRepo interface {
	Get(ctx context.Context, clientID, key string, now time.Time) (*domain.Idempotency, error)
	Save(ctx context.Context, clientID, key, spk string, now time.Time, ttl time.Duration) (*domain.Idempotency, error)
	Forget(ctx context.Context, clientID, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
