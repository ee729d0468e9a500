package handler

import (
	"encoding/json"
	"net/http"

	"roombook/internal/bookings/service"
	"roombook/pkg/client"
	apperrors "roombook/pkg/errors"
	httputil "roombook/pkg/http"
	"roombook/pkg/logger"
	"roombook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

// Create answers 201 with the booking, or 202 with the request id and queue
// position when the request was queued and the wait elapsed.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := httputil.ExtractActorID(r, client.HeaderUserID)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	var req model.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	res, err := h.service.Create(r.Context(), userID, &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if res.Queued {
		if err := httputil.WriteAccepted(w, res); err != nil {
			h.log.Error("failed to write accepted response", "handler", "Create", "operation", "WriteAccepted", "error", err)
		}
		return
	}
	if err := httputil.WriteCreated(w, res.Booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := httputil.ExtractActorID(r, client.HeaderUserID)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	booking, err := h.service.GetByID(r.Context(), service.User(userID), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	h.writeSuccess(w, "GetByID", booking)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := httputil.ExtractActorID(r, client.HeaderUserID)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	bookings, total, err := h.service.ListForUser(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := httputil.ExtractActorID(r, client.HeaderUserID)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	booking, err := h.service.Cancel(r.Context(), service.User(userID), ps.ByName("id"), "")
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	h.writeSuccess(w, "Cancel", booking)
}

func (h *BookingHandler) Modify(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := httputil.ExtractActorID(r, client.HeaderUserID)
	if err != nil {
		h.writeError(w, "Modify", err)
		return
	}

	var mod model.BookingModification
	if err := json.NewDecoder(r.Body).Decode(&mod); err != nil {
		h.writeError(w, "Modify", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.Modify(r.Context(), service.User(userID), ps.ByName("id"), &mod)
	if err != nil {
		h.writeError(w, "Modify", err)
		return
	}

	h.writeSuccess(w, "Modify", booking)
}

// LockStatus is a diagnostics view of the lock and queue on one interval.
func (h *BookingHandler) LockStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	roomID, err := httputil.ExtractInt64Param(r, "roomId")
	if err != nil {
		h.writeError(w, "LockStatus", err)
		return
	}
	query := r.URL.Query()

	status, err := h.service.LockStatus(r.Context(), roomID, query.Get("checkIn"), query.Get("checkOut"))
	if err != nil {
		h.writeError(w, "LockStatus", err)
		return
	}

	h.writeSuccess(w, "LockStatus", status)
}

func (h *BookingHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings", h.List)
	router.GET("/api/v1/bookings/:id", h.GetByID)
	router.PATCH("/api/v1/bookings/:id", h.Modify)
	router.PUT("/api/v1/bookings/:id/cancel", h.Cancel)
	router.GET("/api/v1/locks/status", h.LockStatus)
}
