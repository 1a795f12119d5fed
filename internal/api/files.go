package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tlindqvist/syncbox/internal/apperr"
	"github.com/tlindqvist/syncbox/internal/fileservice"
)

const maxFileSize = 100 << 20

// FileHandler holds the file route handlers.
type FileHandler struct {
	svc *fileservice.Service
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(svc *fileservice.Service) *FileHandler {
	return &FileHandler{svc: svc}
}

// wildcardPath extracts the file path from the URL wildcard. Supports
// encoded slashes from generated clients (e.g. docs%2Freport.pdf).
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// List handles GET /api/v1/files.
//
//	@Summary		List all file records, tombstones included
//	@Tags			files
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.List(r.Context())
	if err != nil {
		slog.Error("list files failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"total": len(files),
	})
}

// Get handles GET /api/v1/files/*.
//
//	@Summary		Download file content
//	@Tags			files
//	@Produce		octet-stream
//	@Param			path	path		string	true	"File path"
//	@Success		200		{file}		binary
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [get]
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	content, err := h.svc.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get file failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	if m, err := h.svc.GetMetadata(r.Context(), path); err == nil && m != nil {
		w.Header().Set("X-File-Hash", m.Hash)
		w.Header().Set("X-File-Mtime", strconv.FormatInt(m.Mtime, 10))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// Put handles PUT /api/v1/files/*. The body is the raw file content; an
// optional X-Client-Mtime header (Unix ms) preserves the client-side
// modification time.
//
//	@Summary		Upload file content
//	@Tags			files
//	@Accept			octet-stream
//	@Produce		json
//	@Param			path			path		string	true	"File path"
//	@Param			X-Client-Mtime	header		int		false	"Client modification time, Unix ms"
//	@Success		200				{object}	metastore.FileMeta
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [put]
func (h *FileHandler) Put(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFileSize)
	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	var clientMtime *int64
	if hdr := r.Header.Get("X-Client-Mtime"); hdr != "" {
		ms, parseErr := strconv.ParseInt(hdr, 10, 64)
		if parseErr != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid X-Client-Mtime header"))
			return
		}
		clientMtime = &ms
	}

	m, err := h.svc.Put(r.Context(), path, content, clientMtime)
	if err != nil {
		slog.Error("put file failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Delete handles DELETE /api/v1/files/*. Deletion is recorded as a
// tombstone so other clients pick it up through sync.
//
//	@Summary		Delete a file
//	@Tags			files
//	@Param			path	path	string	true	"File path"
//	@Success		204		"File deleted"
//	@Security		BearerAuth
//	@Router			/files/{path} [delete]
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.Delete(r.Context(), path); err != nil {
		slog.Error("delete file failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
