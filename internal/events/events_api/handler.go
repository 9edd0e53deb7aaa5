package events_api

import (
	"errors"
	"fmt"
	"net/http"

	"ms-storefront/internal/events"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	EventService *events.EventService
	Logger       *logger.Logger
}

func NewHandler(svc *events.EventService, log *logger.Logger) *Handler {
	return &Handler{EventService: svc, Logger: log}
}

func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/events", h.CreateEvent)
	r.Get("/events/{eventId}", h.GetEvent)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req models.EventRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "CreateEvent", fmt.Errorf("%w: %w", events.ErrEventInvalidInput, err))
		return
	}

	ev, err := h.EventService.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeError(w, "CreateEvent", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Event created", ev))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.EventService.GetEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeError(w, "GetEvent", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", ev))
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var (
		status = http.StatusInternalServerError
		msg    = "internal error"
	)
	switch {
	case errors.Is(err, events.ErrEventInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, events.ErrEventNotFound):
		status, msg = http.StatusNotFound, events.ErrEventNotFound.Error()
	}

	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	}
	_ = utils.WriteJSON(w, status, utils.ErrorResponse(http.StatusText(status), msg))
}
