package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/artisan-market/internal/service"
	"github.com/fjod/artisan-market/pkg/logger"
	"github.com/sirupsen/logrus"
)

type CartHandler struct {
	carts   service.CartReader
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewCartHandler(carts service.CartReader, timeout time.Duration, log logrus.FieldLogger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		log:     log,
	}
}

type CartItemDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CartResponseDTO struct {
	CustomerID string        `json:"customer_id"`
	Items      []CartItemDTO `json:"items"`
	TotalItems int           `json:"total_items"`
}

// GET /cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing customer identity")
		return
	}

	cart, err := h.carts.GetCart(ctx, caller.CustomerID)
	if err != nil {
		logger.FromContext(r.Context(), h.log).WithError(err).Error("get cart failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}

	dto := CartResponseDTO{
		CustomerID: cart.CustomerID,
		Items:      make([]CartItemDTO, 0, len(cart.Items)),
	}
	for _, item := range cart.Items {
		dto.Items = append(dto.Items, CartItemDTO{ProductID: item.ProductID, Quantity: item.Quantity})
		dto.TotalItems += item.Quantity
	}
	respondJSON(w, http.StatusOK, dto)
}
