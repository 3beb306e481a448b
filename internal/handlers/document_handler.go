package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
)

// maxUploadBytes caps document uploads at 32MB
const maxUploadBytes = 32 << 20

// IngestTextRequest is the payload for raw text ingestion
type IngestTextRequest struct {
	Title string `json:"title" validate:"required,min=1,max=300"`
	Text  string `json:"text" validate:"required,min=1"`
}

// DocumentHandler handles document ingestion and management requests
type DocumentHandler struct {
	ingestService interfaces.IngestService
	storage       interfaces.DocumentStorage
	validate      *validator.Validate
	logger        arbor.ILogger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(
	ingestService interfaces.IngestService,
	storage interfaces.DocumentStorage,
	logger arbor.ILogger,
) *DocumentHandler {
	return &DocumentHandler{
		ingestService: ingestService,
		storage:       storage,
		validate:      validator.New(),
		logger:        logger,
	}
}

// UploadHandler handles POST /api/documents/upload multipart requests
func (h *DocumentHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	if len(content) == 0 {
		WriteError(w, http.StatusBadRequest, "Uploaded file is empty")
		return
	}

	h.logger.Info().
		Str("filename", header.Filename).
		Int("size", len(content)).
		Msg("Processing document upload")

	doc, err := h.ingestService.IngestFile(r.Context(), header.Filename, content)
	if err != nil {
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("Document ingestion failed")
		WriteError(w, http.StatusUnprocessableEntity, "Ingestion failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, doc)
}

// IngestTextHandler handles POST /api/documents/text requests
func (h *DocumentHandler) IngestTextHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req IngestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	doc, err := h.ingestService.IngestText(r.Context(), req.Title, req.Text)
	if err != nil {
		h.logger.Error().Err(err).Str("title", req.Title).Msg("Text ingestion failed")
		WriteError(w, http.StatusUnprocessableEntity, "Ingestion failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, doc)
}

// ListHandler handles GET /api/documents requests
func (h *DocumentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit, offset := GetPaginationParams(r)
	docs, err := h.storage.ListDocuments(limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list documents")
		WriteError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}

	total, err := h.storage.CountDocuments()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count documents")
		WriteError(w, http.StatusInternalServerError, "Failed to count documents")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// DocumentHandler handles GET and DELETE /api/documents/{id} requests
func (h *DocumentHandler) DocumentHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusBadRequest, "Invalid document id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := h.storage.GetDocument(id)
		if err != nil {
			WriteError(w, http.StatusNotFound, "Document not found")
			return
		}
		WriteJSON(w, http.StatusOK, doc)

	case http.MethodDelete:
		if _, err := h.storage.GetDocument(id); err != nil {
			WriteError(w, http.StatusNotFound, "Document not found")
			return
		}
		if err := h.ingestService.DeleteDocument(r.Context(), id); err != nil {
			h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to delete document")
			WriteError(w, http.StatusInternalServerError, "Failed to delete document")
			return
		}
		h.logger.Info().Str("document_id", id).Msg("Document deleted")
		WriteJSON(w, http.StatusOK, map[string]string{
			"status": "deleted",
			"id":     id,
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// StatsHandler handles GET /api/documents/stats requests
func (h *DocumentHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := h.ingestService.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to collect corpus stats")
		WriteError(w, http.StatusInternalServerError, "Failed to collect stats")
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// ReembedHandler handles POST /api/documents/reembed requests. It retries
// embedding for passages that failed at ingest time.
func (h *DocumentHandler) ReembedHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = parsePositiveInt(v, 50)
	}

	recovered, err := h.ingestService.ReembedPending(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Reembed pass failed")
		WriteError(w, http.StatusInternalServerError, "Reembed failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "completed",
		"recovered": recovered,
	})
}
