package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/spk-service/internal/domain"
)

// IdempotencyStore maps (client, Idempotency-Key) pairs to the SPK a generate
// call produced.
type IdempotencyStore struct {
	DB *gorm.DB
}

// NewIdempotencyStore wraps db.
func NewIdempotencyStore(db *gorm.DB) *IdempotencyStore { return &IdempotencyStore{DB: db} }

// Get returns a non-expired record or ErrNotFound.
func (s *IdempotencyStore) Get(ctx context.Context, clientID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := s.DB.WithContext(ctx).
		Where("client_id = ? AND key = ? AND expires_at > ?", clientID, key, now.UTC()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save records spk for (clientID, key) until now+ttl. A stale row for the
// same pair is replaced; a live one yields ErrDuplicate.
func (s *IdempotencyStore) Save(ctx context.Context, clientID, key, spk string, now time.Time, ttl time.Duration) (*domain.Idempotency, error) {
	now = now.UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		Key:       key,
		SPK:       spk,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_id = ? AND key = ? AND expires_at <= ?", clientID, key, now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// Forget removes the record for (clientID, key) regardless of expiry.
func (s *IdempotencyStore) Forget(ctx context.Context, clientID, key string) error {
	return s.DB.WithContext(ctx).
		Where("client_id = ? AND key = ?", clientID, key).
		Delete(&domain.Idempotency{}).Error
}

// DeleteExpired drops records whose window has closed.
func (s *IdempotencyStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
