package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/spk-service/internal/domain"
	"github.com/tbourn/spk-service/internal/http/middleware"
)

// HeaderReplayed marks a generate response that returned an earlier number.
const HeaderReplayed = "Idempotent-Replayed"

//
// DTOs
//

// GenerateResponse is the body of a successful generate call.
type GenerateResponse struct {
	SPK       string    `json:"spk"        example:"06250001"`
	ExpiresAt time.Time `json:"expires_at" example:"2025-06-10T09:15:00Z"`
	// Degraded is true when the counter was unavailable and the number came
	// from scanning existing orders and reservations.
	Degraded bool `json:"degraded"`
	// Replayed is true when an Idempotency-Key returned an earlier number.
	Replayed bool `json:"replayed"`
}

// ReservationView describes a live reservation.
type ReservationView struct {
	SPK              string    `json:"spk"               example:"06250001"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int64     `json:"remaining_seconds" example:"900"`
}

// VerifyResponse reports whether an SPK can be used for a new order.
type VerifyResponse struct {
	Valid       bool             `json:"valid"`
	Reservation *ReservationView `json:"reservation,omitempty"`
	Reason      string           `json:"reason,omitempty" example:"expired or unknown"`
}

// ListCountersResponse wraps a page of counters and pagination information.
type ListCountersResponse struct {
	Counters   []domain.SequenceCounter `json:"counters"`
	Pagination Pagination               `json:"pagination"`
}

//
// Handlers
//

// GenerateSPK godoc
// @ID          generateSPK
// @Summary     Issue a new SPK number
// @Description Atomically allocates the next number of the current month and reserves it. Repeating the call with the same Idempotency-Key returns the same number while it is still reserved.
// @Tags        SPK
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Replay-safe key"  example(order-form-7f3a)
// @Param       X-Client-ID      header  string  false  "Calling workstation"  example(desk-12)
//
// @Success     201  {object}  handlers.GenerateResponse
// @Header      201  {string}  Idempotent-Replayed  "true when an earlier number was returned"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid Idempotency-Key"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Monthly sequence exhausted"
// @Failure     503  {object}  handlers.ErrorResponse  "Generation failed, retry"
// @Router      /spk/generate [post]
func (h *Handlers) GenerateSPK(c *gin.Context) {
	key, _ := middleware.GetIdempotencyKey(c)

	issued, err := h.gen.GenerateIdempotent(c.Request.Context(), middleware.ClientID(c), key, h.now())
	if err != nil {
		serviceError(c, err)
		return
	}
	if issued.Replayed {
		c.Header(HeaderReplayed, "true")
	}
	ok(c, http.StatusCreated, GenerateResponse{
		SPK:       issued.SPK,
		ExpiresAt: issued.ExpiresAt.UTC(),
		Degraded:  issued.Degraded,
		Replayed:  issued.Replayed,
	})
}

// VerifySPK godoc
// @ID          verifySPK
// @Summary     Verify an SPK number
// @Description Valid means the number is well formed, currently reserved, and not used by any order. A valid check slides the reservation forward.
// @Tags        SPK
// @Produce     json
//
// @Param       spk  query  string  true  "SPK number"  example(06250001)
//
// @Success     200  {object}  handlers.VerifyResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing spk"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /spk/verify [get]
func (h *Handlers) VerifySPK(c *gin.Context) {
	number := strings.TrimSpace(c.Query("spk"))
	if number == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "spk query parameter is required")
		return
	}

	now := h.now()
	v, err := h.verifier.Verify(c.Request.Context(), number, now)
	if err != nil {
		serviceError(c, err)
		return
	}

	resp := VerifyResponse{Valid: v.Valid, Reason: v.Reason}
	if r := v.Reservation; r != nil {
		resp.Reservation = &ReservationView{
			SPK:              r.Number,
			CreatedAt:        r.CreatedAt.UTC(),
			ExpiresAt:        r.ExpiresAt.UTC(),
			RemainingSeconds: int64(r.Remaining(now) / time.Second),
		}
	}
	ok(c, http.StatusOK, resp)
}

// ListCounters godoc
// @ID          listCounters
// @Summary     List monthly counters (paginated)
// @Description Returns sequence counters, most recent month first.
// @Tags        SPK
// @Produce     json
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListCountersResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /spk/counters [get]
func (h *Handlers) ListCounters(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.counters.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("list counters")
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list counters")
		return
	}
	ok(c, http.StatusOK, ListCountersResponse{
		Counters:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}
