package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/tlindqvist/syncbox/internal/auth"
	"github.com/tlindqvist/syncbox/internal/fileservice"
	"github.com/tlindqvist/syncbox/internal/noteservice"
	"github.com/tlindqvist/syncbox/internal/syncservice"
)

// NewRouter creates a chi router with all API routes mounted. The
// challenge and verify endpoints are open; everything else sits behind
// Bearer token auth. authEnabled false disables enforcement entirely.
func NewRouter(files *fileservice.Service, notes *noteservice.Service, syncSvc *syncservice.Service, mgr *auth.Manager, authEnabled bool) chi.Router {
	ah := NewAuthHandler(mgr)
	fh := NewFileHandler(files)
	nh := NewNoteHandler(notes)
	sh := NewSyncHandler(syncSvc)

	r := chi.NewRouter()

	// Handshake endpoints: must stay reachable without a token.
	r.Post("/auth/challenge", ah.Challenge)
	r.Post("/auth/verify", ah.Verify)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, mgr.ValidateToken))

		// Delta sync.
		r.Get("/sync/state", sh.State)

		// Files.
		r.Get("/files", fh.List)
		r.Get("/files/*", fh.Get)
		r.Put("/files/*", fh.Put)
		r.Delete("/files/*", fh.Delete)

		// Notes. Static segments are matched before the {id} routes.
		r.Get("/notes", nh.List)
		r.Post("/notes", nh.Create)
		r.Get("/notes/tags", nh.Tags)
		r.Get("/notes/search", nh.Search)
		r.Get("/notes/{id}", nh.Get)
		r.Put("/notes/{id}", nh.Update)
		r.Delete("/notes/{id}", nh.Delete)
	})

	return r
}
