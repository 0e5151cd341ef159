package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/spk-service/internal/domain"
	"github.com/tbourn/spk-service/internal/spknum"
	"github.com/tbourn/spk-service/internal/utils"
)

// ErrCounterNotFound is returned when no counter exists for a prefix.
var ErrCounterNotFound = errors.New("counter not found")

// CounterService exposes read-only counter history and the resync operation.
type CounterService struct {
	Counters CounterRepo
	Orders   OrderLookup
	Format   spknum.Format
}

// ListPage returns a page of counters, most recent month first, and the total.
func (s *CounterService) ListPage(ctx context.Context, page, pageSize int) ([]domain.SequenceCounter, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := utils.Offset(page, pageSize)

	total, err := s.Counters.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.SequenceCounter{}, 0, nil
	}
	items, err := s.Counters.ListPage(ctx, offset, pageSize)
	return items, total, err
}

// Resync raises the counter for prefix to the highest sequence already used
// by an order. It never lowers a counter.
func (s *CounterService) Resync(ctx context.Context, prefix string, now time.Time) (*domain.SequenceCounter, error) {
	if _, _, err := s.Format.Parse(s.Format.Compose(prefix, 1)); err != nil {
		return nil, fmt.Errorf("%w: prefix %q", ErrMalformed, prefix)
	}
	highest, err := s.Orders.MaxSequence(ctx, prefix, s.Format.Width)
	if err != nil {
		return nil, err
	}
	if err := s.Counters.AdvanceTo(ctx, prefix, highest, now); err != nil {
		return nil, err
	}
	c, err := s.Counters.Get(ctx, prefix)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCounterNotFound
	}
	return c, err
}
