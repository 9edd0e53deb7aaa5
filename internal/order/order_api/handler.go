package order_api

import (
	"errors"
	"fmt"
	"net/http"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/database"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	OrderService *order.OrderService
	Logger       *logger.Logger
}

func NewHandler(orderService *order.OrderService, log *logger.Logger) *Handler {
	return &Handler{OrderService: orderService, Logger: log}
}

// RegisterAdminRoutes mounts the back-office order endpoints.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/{orderId}", h.GetOrder)
		r.Put("/{orderId}/status", h.UpdateOrderStatus)
		r.Put("/{orderId}/discount", h.UpdateOrderDiscount)
		r.Put("/items/{itemId}/discount", h.UpdateOrderItemDiscount)
		r.Put("/items/{itemId}/quantity", h.UpdateOrderItemQuantity)
	})
}

// RegisterUserRoutes mounts checkout and the caller's order history.
func (h *Handler) RegisterUserRoutes(r chi.Router) {
	r.Post("/orders", h.Checkout)
	r.Get("/orders", h.ListMyOrders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	o, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, "GetOrder", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", o))
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	var body struct {
		Status *string `json:"status"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		h.badRequest(w, "UpdateOrderStatus", err.Error())
		return
	}
	if body.Status == nil {
		h.badRequest(w, "UpdateOrderStatus", "status is required")
		return
	}

	o, err := h.OrderService.UpdateOrderStatus(r.Context(), orderID, *body.Status)
	if err != nil {
		h.writeError(w, "UpdateOrderStatus", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order status updated", o))
}

func (h *Handler) UpdateOrderItemDiscount(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")
	var body struct {
		Discount *int64 `json:"discount"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		h.badRequest(w, "UpdateOrderItemDiscount", err.Error())
		return
	}
	if body.Discount == nil {
		h.badRequest(w, "UpdateOrderItemDiscount", "discount is required")
		return
	}

	o, err := h.OrderService.UpdateOrderItemDiscount(r.Context(), itemID, *body.Discount)
	if err != nil {
		h.writeError(w, "UpdateOrderItemDiscount", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Item discount updated", o))
}

func (h *Handler) UpdateOrderItemQuantity(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")
	var body struct {
		Quantity *int64 `json:"quantity"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		h.badRequest(w, "UpdateOrderItemQuantity", err.Error())
		return
	}
	if body.Quantity == nil {
		h.badRequest(w, "UpdateOrderItemQuantity", "quantity is required")
		return
	}

	o, err := h.OrderService.UpdateOrderItemQuantity(r.Context(), itemID, *body.Quantity)
	if err != nil {
		h.writeError(w, "UpdateOrderItemQuantity", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Item quantity updated", o))
}

func (h *Handler) UpdateOrderDiscount(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	var body struct {
		TotalDiscount *int64 `json:"total_discount"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		h.badRequest(w, "UpdateOrderDiscount", err.Error())
		return
	}
	if body.TotalDiscount == nil {
		h.badRequest(w, "UpdateOrderDiscount", "total_discount is required")
		return
	}

	o, err := h.OrderService.UpdateOrderDiscount(r.Context(), orderID, *body.TotalDiscount)
	if err != nil {
		h.writeError(w, "UpdateOrderDiscount", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order discount updated", o))
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, "Checkout", err.Error())
		return
	}

	o, err := h.OrderService.CreateOrder(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		h.writeError(w, "Checkout", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Order placed", o))
}

func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.OrderService.ListOrdersByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "ListMyOrders", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", orders))
}

func (h *Handler) badRequest(w http.ResponseWriter, op, msg string) {
	h.Logger.Warn("API", fmt.Sprintf("%s: %s", op, msg))
	_ = utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid input", msg))
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var (
		status = http.StatusInternalServerError
		msg    = "internal error"
	)
	switch {
	case errors.Is(err, order.ErrOrderInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, order.ErrOrderItemNotFound):
		status, msg = http.StatusNotFound, order.ErrOrderItemNotFound.Error()
	case errors.Is(err, order.ErrOrderNotFound):
		status, msg = http.StatusNotFound, order.ErrOrderNotFound.Error()
	case errors.Is(err, database.ErrRetriesExhausted), errors.Is(err, database.ErrConflict):
		status, msg = http.StatusConflict, "order was modified concurrently, please retry"
	}

	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	}
	_ = utils.WriteJSON(w, status, utils.ErrorResponse(http.StatusText(status), msg))
}
