package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/artisan-market/internal/domain"
	"github.com/fjod/artisan-market/internal/service"
	"github.com/fjod/artisan-market/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type OrdersHandler struct {
	orders  service.OrderService
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewOrdersHandler(orders service.OrderService, timeout time.Duration, log logrus.FieldLogger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		log:     log,
	}
}

type PlaceOrderResponseDTO struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	OrderID    string      `json:"orderId"`
	OrderTotal json.Number `json:"orderTotal"`
	ItemCount  int         `json:"itemCount"`
}

type ProductSnapshotDTO struct {
	Name        string      `json:"name"`
	Category    string      `json:"category"`
	Material    string      `json:"material"`
	ImageURL    string      `json:"image_url"`
	OldPrice    json.Number `json:"old_price"`
	NewPrice    json.Number `json:"new_price"`
	Description string      `json:"description"`
}

type OrderItemDTO struct {
	ProductID string             `json:"product_id"`
	Product   ProductSnapshotDTO `json:"product"`
	Quantity  int                `json:"quantity"`
}

type OrderResponseDTO struct {
	ID          string         `json:"id"`
	CustomerID  string         `json:"customer_id"`
	Items       []OrderItemDTO `json:"items"`
	ItemCount   int            `json:"item_count"`
	Subtotal    json.Number    `json:"subtotal"`
	Tax         json.Number    `json:"tax"`
	Shipping    json.Number    `json:"shipping"`
	TotalAmount json.Number    `json:"total_amount"`
	Status      string         `json:"status"`
	PurchasedAt string         `json:"purchased_at"`
	UpdatedAt   string         `json:"updated_at"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

// POST /orders
func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing customer identity")
		return
	}

	res, err := h.orders.PlaceOrder(ctx, caller.CustomerID)
	if err != nil {
		h.handlePlacementError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, PlaceOrderResponseDTO{
		Success:    res.Success,
		Message:    res.Message,
		OrderID:    res.OrderID.String(),
		OrderTotal: json.Number(res.TotalAmount.StringFixed(2)),
		ItemCount:  res.ItemCount,
	})
}

func (h *OrdersHandler) handlePlacementError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "Cart is empty. Add items before placing an order.")
	case errors.As(err, &stockErr):
		respondError(w, http.StatusBadRequest, "insufficient_stock",
			"Insufficient stock for product: "+stockErr.ProductName)
	case errors.Is(err, domain.ErrTransactionConflict):
		respondError(w, http.StatusServiceUnavailable, "transaction_conflict",
			"The order could not be placed due to a concurrent update. Please retry.")
	default:
		h.internalError(w, r, err)
	}
}

// GET /orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing customer identity")
		return
	}

	orders, err := h.orders.ListOrders(ctx, caller.CustomerID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, convertOrder(o))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing customer identity")
		return
	}

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	if order.CustomerID != caller.CustomerID && !caller.Role.IsStaff() {
		respondError(w, http.StatusForbidden, "forbidden", "order belongs to another customer")
		return
	}

	respondJSON(w, http.StatusOK, convertOrder(order))
}

// PUT /orders/{order_id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller, ok := identityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing customer identity")
		return
	}
	if !caller.Role.IsStaff() {
		respondError(w, http.StatusForbidden, "forbidden", "only managers can change order status")
		return
	}

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.orders.UpdateOrderStatus(ctx, orderID, domain.OrderStatus(req.Status))
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, convertOrder(order))
	case errors.Is(err, domain.ErrInvalidStatus):
		respondError(w, http.StatusBadRequest, "invalid_status", "unknown order status")
	case errors.Is(err, domain.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		respondError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, domain.ErrOrderStatusConflict):
		respondError(w, http.StatusConflict, "status_conflict", "order status changed concurrently, please retry")
	default:
		h.internalError(w, r, err)
	}
}

func (h *OrdersHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context(), h.log).
		WithError(err).
		WithField("request_id", middleware.GetReqID(r.Context())).
		Error("request failed")
	respondError(w, http.StatusInternalServerError, "internal_error", "Failed to process the request. Please try again later.")
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "order_id")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID: item.ProductID,
			Product: ProductSnapshotDTO{
				Name:        item.Product.Name,
				Category:    item.Product.Category,
				Material:    item.Product.Material,
				ImageURL:    item.Product.ImageURL,
				OldPrice:    json.Number(item.Product.OldPrice.StringFixed(2)),
				NewPrice:    json.Number(item.Product.NewPrice.StringFixed(2)),
				Description: item.Product.Description,
			},
			Quantity: item.Quantity,
		})
	}

	return OrderResponseDTO{
		ID:          o.ID.String(),
		CustomerID:  o.CustomerID,
		Items:       items,
		ItemCount:   o.ItemCount,
		Subtotal:    json.Number(o.Subtotal.StringFixed(2)),
		Tax:         json.Number(o.Tax.StringFixed(2)),
		Shipping:    json.Number(o.Shipping.StringFixed(2)),
		TotalAmount: json.Number(o.TotalAmount.StringFixed(2)),
		Status:      o.Status.String(),
		PurchasedAt: o.PurchasedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
