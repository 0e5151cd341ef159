package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/spk-service/internal/services"
)

// CreateOrderRequest is the JSON payload for creating an order.
type CreateOrderRequest struct {
	// SPK must be a number currently reserved through /spk/generate.
	SPK      string `json:"spk"      binding:"required,spk"          example:"06250001"`
	Customer string `json:"customer" binding:"required,min=1,max=255" example:"PT Sinar Jaya"`
	Notes    string `json:"notes"    binding:"max=2000"               example:"Rush job, 200 units"`
}

// CreateOrder godoc
// @ID          createOrder
// @Summary     Create an order with a reserved SPK
// @Description Consumes a reserved SPK. Fails with spk_not_reserved when the reservation has lapsed.
// @Tags        Orders
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateOrderRequest  true  "Order payload"
//
// @Success     201  {object}  domain.Order
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or malformed spk"
// @Failure     409  {object}  handlers.ErrorResponse  "SPK expired or already used"
// @Failure     503  {object}  handlers.ErrorResponse  "Verification unavailable"
// @Router      /orders [post]
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if failedTag(err) == tagSPK {
			fail(c, http.StatusBadRequest, ErrCodeMalformedSPK, "malformed spk")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	o, err := h.orders.Create(c.Request.Context(), services.OrderInput{
		SPK:      strings.TrimSpace(req.SPK),
		Customer: req.Customer,
		Notes:    req.Notes,
	}, h.now())
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, o)
}
