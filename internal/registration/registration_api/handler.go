package registration_api

import (
	"errors"
	"fmt"
	"net/http"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/database"
	"ms-storefront/internal/inventory"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/registration"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	RegistrationService *registration.RegistrationService
	Logger              *logger.Logger
}

func NewHandler(svc *registration.RegistrationService, log *logger.Logger) *Handler {
	return &Handler{RegistrationService: svc, Logger: log}
}

// RegisterAdminRoutes mounts the back-office registration endpoints.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/registrations", func(r chi.Router) {
		r.Post("/", h.AdminCreateRegistration)
		r.Get("/{registrationId}", h.GetRegistration)
		r.Put("/{registrationId}", h.UpdateRegistrationDetails)
		r.Put("/{registrationId}/status", h.UpdateRegistrationStatus)
	})
	r.Get("/events/{eventId}/registrations", h.ListEventRegistrations)
}

// RegisterUserRoutes mounts self-service registration and passes.
func (h *Handler) RegisterUserRoutes(r chi.Router) {
	r.Post("/registrations", h.CreateRegistration)
	r.Get("/registrations/{registrationId}/pass", h.GetPass)
}

func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.RegistrationService.GetRegistration(r.Context(), chi.URLParam(r, "registrationId"))
	if err != nil {
		h.writeError(w, "GetRegistration", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", reg))
}

func (h *Handler) ListEventRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.RegistrationService.ListEventRegistrations(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeError(w, "ListEventRegistrations", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("", regs))
}

func (h *Handler) UpdateRegistrationStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "registrationId")
	var body struct {
		Status *string `json:"status"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		h.badRequest(w, "UpdateRegistrationStatus", err.Error())
		return
	}
	if body.Status == nil {
		h.badRequest(w, "UpdateRegistrationStatus", "status is required")
		return
	}

	reg, err := h.RegistrationService.UpdateRegistrationStatus(r.Context(), id, *body.Status)
	if err != nil {
		h.writeError(w, "UpdateRegistrationStatus", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registration status updated", reg))
}

func (h *Handler) UpdateRegistrationDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "registrationId")
	var details models.RegistrationDetails
	if err := utils.DecodeJSON(r, &details); err != nil {
		h.badRequest(w, "UpdateRegistrationDetails", err.Error())
		return
	}

	reg, err := h.RegistrationService.UpdateRegistrationDetails(r.Context(), id, details)
	if err != nil {
		h.writeError(w, "UpdateRegistrationDetails", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registration updated", reg))
}

// CreateRegistration always starts the caller's registration in PENDING.
func (h *Handler) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	var req models.RegistrationRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, "CreateRegistration", err.Error())
		return
	}
	if req.Status != "" {
		h.badRequest(w, "CreateRegistration", "status cannot be set on registration")
		return
	}
	h.create(w, r, auth.UserID(r.Context()), req)
}

// AdminCreateRegistration registers a named user, optionally directly in a
// later status.
func (h *Handler) AdminCreateRegistration(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		models.RegistrationRequest
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		h.badRequest(w, "AdminCreateRegistration", err.Error())
		return
	}
	h.create(w, r, body.UserID, body.RegistrationRequest)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, userID string, req models.RegistrationRequest) {
	reg, err := h.RegistrationService.CreateRegistration(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, "CreateRegistration", err)
		return
	}
	_ = utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Registration created", reg))
}

func (h *Handler) GetPass(w http.ResponseWriter, r *http.Request) {
	png, err := h.RegistrationService.IssuePass(r.Context(), chi.URLParam(r, "registrationId"), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "GetPass", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
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
	case errors.Is(err, registration.ErrRegistrationInvalidInput), errors.Is(err, inventory.ErrInvalidSeats):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, registration.ErrRegistrationNotFound):
		status, msg = http.StatusNotFound, registration.ErrRegistrationNotFound.Error()
	case errors.Is(err, registration.ErrEventNotFound):
		status, msg = http.StatusNotFound, registration.ErrEventNotFound.Error()
	case errors.Is(err, registration.ErrRegistrationForbidden):
		// Another user's registration is reported as missing.
		status, msg = http.StatusNotFound, registration.ErrRegistrationNotFound.Error()
	case errors.Is(err, registration.ErrNoPass):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, inventory.ErrInsufficientSeats):
		status, msg = http.StatusConflict, inventory.ErrInsufficientSeats.Error()
	case errors.Is(err, database.ErrRetriesExhausted), errors.Is(err, database.ErrConflict):
		status, msg = http.StatusConflict, "registration was modified concurrently, please retry"
	}

	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	}
	_ = utils.WriteJSON(w, status, utils.ErrorResponse(http.StatusText(status), msg))
}
