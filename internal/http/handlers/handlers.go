// Package handlers exposes the SPK endpoints:
//   - POST /spk/generate   issue and reserve a new number
//   - GET  /spk/verify     check a number before creating an order
//   - GET  /spk/counters   list monthly counters (paginated)
//   - POST /orders         consume a reserved number
//
// Handlers are transport-thin: they bind input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/spk-service/internal/domain"
	"github.com/tbourn/spk-service/internal/services"
	"github.com/tbourn/spk-service/internal/utils"
)

//
// Service contracts (context-aware)
//

// Generator issues SPK numbers. A non-empty key makes the call idempotent
// for clientID.
type Generator interface {
	GenerateIdempotent(ctx context.Context, clientID, key string, now time.Time) (*services.Issued, error)
}

// Verifier reports whether a number may still be used for a new order.
type Verifier interface {
	Verify(ctx context.Context, number string, now time.Time) (*services.Verification, error)
}

// OrderCreator persists orders that consume an SPK.
type OrderCreator interface {
	Create(ctx context.Context, in services.OrderInput, now time.Time) (*domain.Order, error)
}

// CounterLister pages through monthly sequence counters.
type CounterLister interface {
	ListPage(ctx context.Context, page, pageSize int) ([]domain.SequenceCounter, int64, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints over the SPK services.
type Handlers struct {
	gen      Generator
	verifier Verifier
	orders   OrderCreator
	counters CounterLister

	// Now is the clock handed to services; tests pin it.
	Now func() time.Time
}

// New binds handlers to the given services.
func New(gen Generator, verifier Verifier, orders OrderCreator, counters CounterLister) *Handlers {
	return &Handlers{gen: gen, verifier: verifier, orders: orders, counters: counters, Now: time.Now}
}

func (h *Handlers) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses page and page_size, bounding them to [1, 100].
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = max(utils.AtoiDefault(c.Query("page"), defaultPage), 1)
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}
