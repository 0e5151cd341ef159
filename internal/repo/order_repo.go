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

// ErrDuplicate indicates a unique key is already taken.
var ErrDuplicate = domain.ErrDuplicate

// OrderStore persists the orders that consume SPK numbers.
type OrderStore struct {
	DB *gorm.DB
}

// NewOrderStore wraps db.
func NewOrderStore(db *gorm.DB) *OrderStore { return &OrderStore{DB: db} }

// Create inserts o, assigning an ID and CreatedAt when unset. A second order
// with the same SPK returns ErrDuplicate.
func (s *OrderStore) Create(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if err := s.DB.WithContext(ctx).Create(o).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ExistsBySPK reports whether an order already carries spk.
func (s *OrderStore) ExistsBySPK(ctx context.Context, spk string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).
		Model(&domain.Order{}).
		Where("spk = ?", spk).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

// GetBySPK returns the order holding spk, or ErrNotFound.
func (s *OrderStore) GetBySPK(ctx context.Context, spk string) (*domain.Order, error) {
	var o domain.Order
	if err := s.DB.WithContext(ctx).Where("spk = ?", spk).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// MaxSequence returns the highest sequence among persisted orders for prefix
// whose SPK has the canonical length 4+width, or 0 when there are none.
func (s *OrderStore) MaxSequence(ctx context.Context, prefix string, width int) (int64, error) {
	var highest int64
	err := s.DB.WithContext(ctx).
		Model(&domain.Order{}).
		Select("COALESCE(MAX(CAST(SUBSTR(spk, 5) AS INTEGER)), 0)").
		Where("spk LIKE ? AND LENGTH(spk) = ?", prefix+"%", len(prefix)+width).
		Scan(&highest).Error
	return highest, err
}

// EachBatch walks every order in primary-key order, handing fn batchSize rows
// at a time. Returning an error from fn stops the walk.
func (s *OrderStore) EachBatch(ctx context.Context, batchSize int, fn func([]domain.Order) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	var batch []domain.Order
	res := s.DB.WithContext(ctx).
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		})
	return res.Error
}

// isUniqueViolation recognizes unique-key errors from both drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value") ||
		strings.Contains(low, "sqlstate 23505")
}
