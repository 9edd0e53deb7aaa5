package analytics_api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ms-storefront/internal/analytics"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/events/{eventId}", h.GetEventSummary)
		r.Get("/orders", h.ListOrders)
	})
}

func (h *Handler) GetEventSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.EventSummary(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeError(w, "GetEventSummary", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", summary))
}

// ListOrders accepts status, user_id, sort (total|created_at), desc, limit and offset.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := analytics.OrderListOptions{
		Status: q.Get("status"),
		UserID: q.Get("user_id"),
		SortBy: q.Get("sort"),
	}
	var err error
	if v := q.Get("desc"); v != "" {
		if opts.SortDesc, err = strconv.ParseBool(v); err != nil {
			h.writeError(w, "ListOrders", fmt.Errorf("%w: desc must be true or false", analytics.ErrInvalidFilter))
			return
		}
	}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		if v := q.Get(name); v != "" {
			if *dst, err = strconv.Atoi(v); err != nil {
				h.writeError(w, "ListOrders", fmt.Errorf("%w: %s must be an integer", analytics.ErrInvalidFilter, name))
				return
			}
		}
	}

	orders, err := h.Service.ListOrders(r.Context(), opts)
	if err != nil {
		h.writeError(w, "ListOrders", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", orders))
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, analytics.ErrInvalidFilter):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, analytics.ErrEventNotFound):
		status, msg = http.StatusNotFound, analytics.ErrEventNotFound.Error()
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Warn("ANALYTICS", fmt.Sprintf("%s: %v", op, err))
	}
	_ = utils.WriteJSON(w, status, utils.ErrorResponse(http.StatusText(status), msg))
}
