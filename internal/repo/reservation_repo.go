package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/spk-service/internal/domain"
)

// claimSQL inserts a fresh reservation or takes over one whose TTL has
// lapsed. A live row makes the conditional update a no-op (0 rows affected).
const claimSQL = `INSERT INTO reservations (number, created_at, expires_at)
VALUES (?, ?, ?)
ON CONFLICT (number) DO UPDATE SET
	created_at = excluded.created_at,
	expires_at = excluded.expires_at
WHERE reservations.expires_at <= ?`

// extendRetries bounds the compare-and-set loop in Extend.
const extendRetries = 3

// ReservationStore keeps SPK reservations in the reservations table.
type ReservationStore struct {
	DB *gorm.DB
}

// NewReservationStore wraps db.
func NewReservationStore(db *gorm.DB) *ReservationStore { return &ReservationStore{DB: db} }

// Claim reserves number until now+ttl. It returns false, without error, when
// a live reservation already holds the number.
func (s *ReservationStore) Claim(ctx context.Context, number string, now time.Time, ttl time.Duration) (bool, error) {
	now = now.UTC()
	res := s.DB.WithContext(ctx).Exec(claimSQL, number, now, now.Add(ttl), now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Extend slides a live reservation to now+ttl and returns it. The new expiry
// is always strictly later than the previous one. A missing or expired
// reservation yields domain.ErrReservationNotFound.
func (s *ReservationStore) Extend(ctx context.Context, number string, now time.Time, ttl time.Duration) (*domain.Reservation, error) {
	now = now.UTC()
	db := s.DB.WithContext(ctx)

	for i := 0; i < extendRetries; i++ {
		var r domain.Reservation
		err := db.Where("number = ? AND expires_at > ?", number, now).First(&r).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		if err != nil {
			return nil, err
		}

		old := r.ExpiresAt.UTC()
		next := now.Add(ttl)
		if !next.After(old) {
			next = old.Add(time.Microsecond)
		}

		// Compare-and-set on the value we read; a concurrent extend or
		// takeover makes this a no-op and we re-read.
		res := db.Model(&domain.Reservation{}).
			Where("number = ? AND expires_at = ?", number, old).
			Update("expires_at", next)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			r.CreatedAt = r.CreatedAt.UTC()
			r.ExpiresAt = next
			return &r, nil
		}
	}
	return nil, errors.New("reservation extend: concurrent update, giving up")
}

// SweepExpired deletes reservations whose expiry is at or before now and
// returns how many rows were removed.
func (s *ReservationStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.Reservation{})
	return res.RowsAffected, res.Error
}

// Release drops the reservation for number. Missing rows are not an error.
func (s *ReservationStore) Release(ctx context.Context, number string) error {
	return s.DB.WithContext(ctx).
		Where("number = ?", number).
		Delete(&domain.Reservation{}).Error
}
