package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/spk-service/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// incrementSQL creates the month row on first use and bumps it otherwise, in
// one statement, so two issuers can never observe the same value.
const incrementSQL = `INSERT INTO sequence_counters (prefix, last_value, created_at, updated_at)
VALUES (?, 1, ?, ?)
ON CONFLICT (prefix) DO UPDATE SET
	last_value = sequence_counters.last_value + 1,
	updated_at = excluded.updated_at
RETURNING last_value`

// advanceSQL raises last_value to the given value but never lowers it.
const advanceSQL = `INSERT INTO sequence_counters (prefix, last_value, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (prefix) DO UPDATE SET
	last_value = excluded.last_value,
	updated_at = excluded.updated_at
WHERE sequence_counters.last_value < excluded.last_value`

// CounterStore persists per-prefix sequence counters.
type CounterStore struct {
	DB *gorm.DB
}

// NewCounterStore wraps db.
func NewCounterStore(db *gorm.DB) *CounterStore { return &CounterStore{DB: db} }

// Increment atomically returns the next sequence value for prefix.
func (s *CounterStore) Increment(ctx context.Context, prefix string, now time.Time) (int64, error) {
	now = now.UTC()
	var next int64
	res := s.DB.WithContext(ctx).Raw(incrementSQL, prefix, now, now).Scan(&next)
	if res.Error != nil {
		return 0, res.Error
	}
	if next <= 0 {
		return 0, errors.New("counter increment returned no value")
	}
	return next, nil
}

// AdvanceTo moves the counter for prefix up to value. A counter already at or
// beyond value is left untouched.
func (s *CounterStore) AdvanceTo(ctx context.Context, prefix string, value int64, now time.Time) error {
	if value <= 0 {
		return nil
	}
	now = now.UTC()
	return s.DB.WithContext(ctx).Exec(advanceSQL, prefix, value, now, now).Error
}

// Get returns the counter row for prefix, or ErrNotFound.
func (s *CounterStore) Get(ctx context.Context, prefix string) (*domain.SequenceCounter, error) {
	var c domain.SequenceCounter
	if err := s.DB.WithContext(ctx).Where("prefix = ?", prefix).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// Count returns the number of counter rows.
func (s *CounterStore) Count(ctx context.Context) (int64, error) {
	var total int64
	err := s.DB.WithContext(ctx).Model(&domain.SequenceCounter{}).Count(&total).Error
	return total, err
}

// ListPage returns counters, most recently created month first.
func (s *CounterStore) ListPage(ctx context.Context, offset, limit int) ([]domain.SequenceCounter, error) {
	var out []domain.SequenceCounter
	err := s.DB.WithContext(ctx).
		Order("created_at desc").
		Order("prefix desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
