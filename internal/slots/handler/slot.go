package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"clubsync/internal/slots/service"
	httputil "clubsync/pkg/http"
	"clubsync/pkg/logger"
)

type SlotHandler struct {
	service service.SlotService
	log     *logger.Logger
}

func NewSlotHandler(service service.SlotService, log *logger.Logger) *SlotHandler {
	return &SlotHandler{
		service: service,
		log:     log,
	}
}

func (h *SlotHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/bookings/:id/slots", h.Info)
	router.POST("/api/v1/bookings/:id/slots", h.Attach)
	router.DELETE("/api/v1/bookings/:id/slots/:occupantKey", h.Detach)
	router.PUT("/api/v1/bookings/:id/declared-count", h.SetDeclaredCount)
}

func (h *SlotHandler) Info(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bookingID := ps.ByName("id")

	info, assignments, err := h.service.Info(r.Context(), bookingID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Info", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{
		"slot_info":   info,
		"assignments": assignments,
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "Info", "error", err)
	}
}

func (h *SlotHandler) Attach(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bookingID := ps.ByName("id")

	var req service.AttachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Attach", "error", writeErr)
		}
		return
	}

	if req.AddedBy == "" {
		req.AddedBy = r.Header.Get("X-Staff-ID")
	}

	assignment, info, err := h.service.Attach(r.Context(), bookingID, &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Attach", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, map[string]any{
		"assignment": assignment,
		"slot_info":  info,
	}); err != nil {
		h.log.Error("failed to write created response", "handler", "Attach", "error", err)
	}
}

func (h *SlotHandler) Detach(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bookingID := ps.ByName("id")
	occupantKey := ps.ByName("occupantKey")

	if err := h.service.Detach(r.Context(), bookingID, occupantKey); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Detach", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *SlotHandler) SetDeclaredCount(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bookingID := ps.ByName("id")

	var req struct {
		DeclaredCount int `json:"declared_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "SetDeclaredCount", "error", writeErr)
		}
		return
	}

	if err := h.service.SetDeclaredCount(r.Context(), bookingID, req.DeclaredCount); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "SetDeclaredCount", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}
