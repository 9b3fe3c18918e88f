package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"clubsync/internal/importer/service"
	"clubsync/pkg/config"
	apperrors "clubsync/pkg/errors"
	httputil "clubsync/pkg/http"
	"clubsync/pkg/logger"
)

type ImportHandler struct {
	service service.ImportService
	cfg     *config.Config
	log     *logger.Logger
}

func NewImportHandler(svc service.ImportService, cfg *config.Config) *ImportHandler {
	return &ImportHandler{
		service: svc,
		cfg:     cfg,
		log:     cfg.Log,
	}
}

func (h *ImportHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/imports/upload", h.Upload)
	router.GET("/api/v1/import-runs", h.ListRuns)
	router.GET("/api/v1/import-runs/:id", h.GetRun)
}

func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.cfg.MaxUploadSize))

	if err := r.ParseMultipartForm(int64(h.cfg.MaxUploadSize)); err != nil {
		h.writeError(w, "Upload", apperrors.InvalidInput("Expected a multipart upload within the size limit"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, "Upload", apperrors.InvalidInput("A CSV file field named 'file' is required"))
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.log.Error("failed to close uploaded file", "handler", "Upload", "error", closeErr)
		}
	}()

	source := r.FormValue("source")
	importedBy := r.FormValue("imported_by")
	if importedBy == "" {
		importedBy = r.Header.Get("X-Staff-ID")
	}

	run, err := h.service.RunImport(r.Context(), source, header.Filename, importedBy, file)
	if err != nil {
		h.writeError(w, "Upload", err)
		return
	}

	if err := httputil.WriteCreated(w, run); err != nil {
		h.log.Error("failed to write created response", "handler", "Upload", "error", err)
	}
}

func (h *ImportHandler) ListRuns(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListRuns", err)
		return
	}

	runs, count, err := h.service.ListRuns(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "ListRuns", err)
		return
	}

	if err := httputil.WritePaginated(w, runs, count, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListRuns", "error", err)
	}
}

func (h *ImportHandler) GetRun(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	run, err := h.service.GetRun(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetRun", err)
		return
	}

	if err := httputil.WriteSuccess(w, run); err != nil {
		h.log.Error("failed to write success response", "handler", "GetRun", "error", err)
	}
}

func (h *ImportHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "error", writeErr)
	}
}
