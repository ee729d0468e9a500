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

// AdminHandler serves the back-office routes. Every route requires X-Admin-ID.
type AdminHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewAdminHandler(service service.BookingService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		log:     log,
	}
}

func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if _, err := httputil.ExtractActorID(r, client.HeaderAdminID); err != nil {
		h.writeError(w, "List", err)
		return
	}

	filter, err := listFilter(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	bookings, total, err := h.service.List(r.Context(), filter, limit, offset)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

// Get shares its path segment with the fixed pending and stats views, since
// the router cannot register them next to the :id wildcard.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	switch ps.ByName("id") {
	case "pending":
		h.Pending(w, r, ps)
	case "stats":
		h.Stats(w, r, ps)
	default:
		h.GetByID(w, r, ps)
	}
}

func (h *AdminHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	adminID, err := httputil.ExtractActorID(r, client.HeaderAdminID)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	booking, err := h.service.GetByID(r.Context(), service.Admin(adminID), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	h.writeSuccess(w, "GetByID", booking)
}

func (h *AdminHandler) Pending(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if _, err := httputil.ExtractActorID(r, client.HeaderAdminID); err != nil {
		h.writeError(w, "Pending", err)
		return
	}
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "Pending", err)
		return
	}

	bookings, total, err := h.service.Pending(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "Pending", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "Pending", "operation", "WritePaginated", "error", err)
	}
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if _, err := httputil.ExtractActorID(r, client.HeaderAdminID); err != nil {
		h.writeError(w, "Stats", err)
		return
	}

	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeError(w, "Stats", err)
		return
	}

	h.writeSuccess(w, "Stats", stats)
}

func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	adminID, err := httputil.ExtractActorID(r, client.HeaderAdminID)
	if err != nil {
		h.writeError(w, "UpdateStatus", err)
		return
	}

	var req model.StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "UpdateStatus", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.UpdateStatus(r.Context(), service.Admin(adminID), ps.ByName("id"), &req)
	if err != nil {
		h.writeError(w, "UpdateStatus", err)
		return
	}

	h.writeSuccess(w, "UpdateStatus", booking)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel is a soft cancel: the booking stays on record as cancelled. The body
// is optional.
func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	adminID, err := httputil.ExtractActorID(r, client.HeaderAdminID)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	var req cancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, "Cancel", apperrors.InvalidInput("Invalid request body"))
			return
		}
	}

	booking, err := h.service.Cancel(r.Context(), service.Admin(adminID), ps.ByName("id"), req.Reason)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	h.writeSuccess(w, "Cancel", booking)
}

func (h *AdminHandler) Notify(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	adminID, err := httputil.ExtractActorID(r, client.HeaderAdminID)
	if err != nil {
		h.writeError(w, "Notify", err)
		return
	}

	var req model.NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Notify", apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.service.NotifyGuest(r.Context(), service.Admin(adminID), ps.ByName("id"), &req); err != nil {
		h.writeError(w, "Notify", err)
		return
	}

	if err := httputil.WriteAccepted(w, map[string]string{"status": "sent"}); err != nil {
		h.log.Error("failed to write accepted response", "handler", "Notify", "operation", "WriteAccepted", "error", err)
	}
}

func listFilter(r *http.Request) (model.BookingFilter, error) {
	var filter model.BookingFilter
	query := r.URL.Query()

	if s := query.Get("status"); s != "" {
		status := model.BookingStatus(s)
		filter.Status = &status
	}
	if query.Get("roomId") != "" {
		id, err := httputil.ExtractInt64Param(r, "roomId")
		if err != nil {
			return filter, err
		}
		filter.RoomID = &id
	}
	if query.Get("userId") != "" {
		id, err := httputil.ExtractInt64Param(r, "userId")
		if err != nil {
			return filter, err
		}
		filter.UserID = &id
	}

	var err error
	if filter.From, err = httputil.ExtractTimeParam(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = httputil.ExtractTimeParam(r, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func (h *AdminHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *AdminHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *AdminHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/admin/bookings", h.List)
	router.GET("/api/v1/admin/bookings/:id", h.Get)
	router.PUT("/api/v1/admin/bookings/:id/status", h.UpdateStatus)
	router.PUT("/api/v1/admin/bookings/:id/cancel", h.Cancel)
	router.POST("/api/v1/admin/bookings/:id/notify", h.Notify)
}
