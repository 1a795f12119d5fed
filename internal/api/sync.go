package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tlindqvist/syncbox/internal/syncservice"
)

// SyncHandler holds the delta-sync route handlers.
type SyncHandler struct {
	svc *syncservice.Service
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(svc *syncservice.Service) *SyncHandler {
	return &SyncHandler{svc: svc}
}

// State handles GET /api/v1/sync/state.
//
//	@Summary		Get file records changed since a cursor
//	@Tags			sync
//	@Produce		json
//	@Param			since	query		int	false	"Cursor, Unix ms; omit for a full snapshot"
//	@Success		200		{object}	syncservice.State
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/state [get]
func (h *SyncHandler) State(w http.ResponseWriter, r *http.Request) {
	var since *int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid since parameter"))
			return
		}
		since = &ms
	}
	st, err := h.svc.GetState(r.Context(), since)
	if err != nil {
		slog.Error("sync state failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
