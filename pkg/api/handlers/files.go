package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/shardstore/internal/logger"
	"github.com/marmos91/shardstore/pkg/api/respond"
	"github.com/marmos91/shardstore/pkg/service"
	"github.com/marmos91/shardstore/pkg/transfer"
)

// FileHandler serves the file endpoints: listing, upload, download,
// deletion, and per-file health and integrity reports.
type FileHandler struct {
	service *service.Service
}

// NewFileHandler creates a file handler.
func NewFileHandler(svc *service.Service) *FileHandler {
	return &FileHandler{service: svc}
}

// List handles GET /api/v1/files.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.service.ListFiles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK(files))
}

// Store handles POST /api/v1/files.
//
// Accepts a multipart form with a "file" part and optional "name",
// "type" and "owner" fields. The upload streams straight into the
// chunker; nothing is spooled to disk.
func (h *FileHandler) Store(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		respond.JSON(w, http.StatusBadRequest, respond.Error("multipart form required"))
		return
	}

	req := transfer.StoreRequest{Owner: "anonymous"}
	for {
		part, err := reader.NextPart()
		if err != nil {
			respond.JSON(w, http.StatusBadRequest, respond.Error("multipart form has no file part"))
			return
		}

		switch part.FormName() {
		case "name":
			req.DisplayName = formValue(part)
			continue
		case "type":
			req.TypeTag = formValue(part)
			continue
		case "owner":
			if v := formValue(part); v != "" {
				req.Owner = v
			}
			continue
		case "file":
			req.OriginalFilename = part.FileName()
			if req.DisplayName == "" {
				req.DisplayName = part.FileName()
			}
			req.ContentType = part.Header.Get("Content-Type")

			file, err := h.service.StoreFile(r.Context(), req, part)
			if err != nil {
				logger.Warn("Upload failed", "name", req.DisplayName, "error", err)
				writeError(w, err)
				return
			}
			respond.JSON(w, http.StatusCreated, respond.OK(file))
			return
		default:
			continue
		}
	}
}

// formValue reads a small text field from a multipart part.
func formValue(part *multipart.Part) string {
	data, _ := io.ReadAll(io.LimitReader(part, 1024))
	return strings.TrimSpace(string(data))
}

// Get handles GET /api/v1/files/{id}.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	file, err := h.service.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK(file))
}

// Delete handles DELETE /api/v1/files/{id}.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")
	if err := h.service.DeleteFile(r.Context(), fileID); err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK(map[string]string{"file_id": fileID}))
}

// Content handles GET /api/v1/files/{id}/content.
//
// Streams the reassembled file bytes. Headers are written before the
// stream starts, so a mid-stream failure shows up as a truncated body,
// not an error envelope.
func (h *FileHandler) Content(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")

	file, err := h.service.GetFile(r.Context(), fileID)
	if err != nil {
		writeError(w, err)
		return
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.OriginalFilename+`"`)

	if _, err := h.service.RetrieveFile(r.Context(), fileID, w); err != nil {
		// Too late for a status change if bytes went out already.
		logger.Warn("Download failed", "file_id", fileID, "error", err)
	}
}

// Health handles GET /api/v1/files/{id}/health.
func (h *FileHandler) Health(w http.ResponseWriter, r *http.Request) {
	file, err := h.service.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := h.service.Health().FileHealth(r.Context(), file)
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK(report))
}

// Integrity handles GET /api/v1/files/{id}/integrity.
func (h *FileHandler) Integrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.CheckFileIntegrity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK(report))
}
