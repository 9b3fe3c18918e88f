package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"

	aliasservice "clubsync/internal/alias/service"
	"clubsync/internal/reconcile/service"
	reconcilevalidator "clubsync/internal/reconcile/validator"
	httputil "clubsync/pkg/http"
	"clubsync/pkg/logger"
)

// ReconcileHandler exposes the staff review surface: the unmatched queue,
// candidate suggestions, manual corrections, and the linked-email ledger.
type ReconcileHandler struct {
	service  service.ReconcileService
	aliases  aliasservice.AliasService
	validate *validator.Validate
	log      *logger.Logger
}

func NewReconcileHandler(
	svc service.ReconcileService,
	aliases aliasservice.AliasService,
	log *logger.Logger,
) *ReconcileHandler {
	return &ReconcileHandler{
		service:  svc,
		aliases:  aliases,
		validate: reconcilevalidator.New(),
		log:      log,
	}
}

func (h *ReconcileHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/unmatched", h.ListUnmatched)
	router.GET("/api/v1/needs-players", h.ListNeedsPlayers)
	router.GET("/api/v1/fuzzy-matches/:id", h.FuzzyMatches)
	router.PUT("/api/v1/unmatched/:id/resolve", h.Resolve)
	router.POST("/api/v1/auto-resolve-same-email", h.AutoResolveSameEmail)

	router.GET("/api/v1/linked-emails", h.ListLinkedEmails)
	router.POST("/api/v1/linked-emails", h.LinkEmail)
	router.DELETE("/api/v1/linked-emails/:email", h.UnlinkEmail)
}

func (h *ReconcileHandler) ListUnmatched(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListUnmatched", err)
		return
	}
	search := r.URL.Query().Get("search")

	records, count, err := h.service.ListUnmatched(r.Context(), search, limit, offset)
	if err != nil {
		h.writeError(w, "ListUnmatched", err)
		return
	}

	if err := httputil.WritePaginated(w, records, count, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListUnmatched", "error", err)
	}
}

func (h *ReconcileHandler) ListNeedsPlayers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListNeedsPlayers", err)
		return
	}

	search := r.URL.Query().Get("search")

	records, count, err := h.service.ListNeedsPlayers(r.Context(), search, limit, offset)
	if err != nil {
		h.writeError(w, "ListNeedsPlayers", err)
		return
	}

	if err := httputil.WritePaginated(w, records, count, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListNeedsPlayers", "error", err)
	}
}

func (h *ReconcileHandler) FuzzyMatches(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	record, candidates, err := h.service.FuzzyMatches(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "FuzzyMatches", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{
		"record":     record,
		"candidates": candidates,
	}); err != nil {
		h.log.Error("failed to write success response", "handler", "FuzzyMatches", "error", err)
	}
}

func (h *ReconcileHandler) Resolve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req service.ManualResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadBody(w, "Resolve")
		return
	}
	if err := reconcilevalidator.ValidateStruct(h.validate, &req); err != nil {
		h.writeError(w, "Resolve", err)
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = r.Header.Get("X-Staff-ID")
	}

	result, err := h.service.ResolveManually(r.Context(), ps.ByName("id"), &req)
	if err != nil {
		h.writeError(w, "Resolve", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Resolve", "error", err)
	}
}

func (h *ReconcileHandler) AutoResolveSameEmail(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req service.AutoResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadBody(w, "AutoResolveSameEmail")
		return
	}
	if err := reconcilevalidator.ValidateStruct(h.validate, &req); err != nil {
		h.writeError(w, "AutoResolveSameEmail", err)
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = r.Header.Get("X-Staff-ID")
	}

	resolved, err := h.service.AutoResolveSameEmail(r.Context(), &req)
	if err != nil {
		h.writeError(w, "AutoResolveSameEmail", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{"resolved": resolved}); err != nil {
		h.log.Error("failed to write success response", "handler", "AutoResolveSameEmail", "error", err)
	}
}

type linkEmailRequest struct {
	AlternateEmail string `json:"alternate_email" validate:"required,email"`
	CanonicalEmail string `json:"canonical_email" validate:"required,email"`
}

func (h *ReconcileHandler) LinkEmail(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req linkEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadBody(w, "LinkEmail")
		return
	}
	if err := reconcilevalidator.ValidateStruct(h.validate, &req); err != nil {
		h.writeError(w, "LinkEmail", err)
		return
	}

	link, err := h.aliases.Link(r.Context(), req.AlternateEmail, req.CanonicalEmail, r.Header.Get("X-Staff-ID"))
	if err != nil {
		h.writeError(w, "LinkEmail", err)
		return
	}

	if err := httputil.WriteCreated(w, link); err != nil {
		h.log.Error("failed to write created response", "handler", "LinkEmail", "error", err)
	}
}

func (h *ReconcileHandler) ListLinkedEmails(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListLinkedEmails", err)
		return
	}

	links, count, err := h.aliases.List(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "ListLinkedEmails", err)
		return
	}

	if err := httputil.WritePaginated(w, links, count, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListLinkedEmails", "error", err)
	}
}

func (h *ReconcileHandler) UnlinkEmail(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.aliases.Unlink(r.Context(), ps.ByName("email")); err != nil {
		h.writeError(w, "UnlinkEmail", err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *ReconcileHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "error", writeErr)
	}
}

func (h *ReconcileHandler) writeBadBody(w http.ResponseWriter, handlerName string) {
	if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
		Error: "Invalid request body",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", handlerName, "error", err)
	}
}
