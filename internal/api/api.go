// Package api implements the HTTP request layer of the drive.
//
// The handlers are thin: they parse the request, resolve the principal,
// call one store operation and render the result. All policy lives below
// in the tree store and the permission resolver; all byte handling lives in
// the blob store. Domain errors cross this boundary as *tree.StoreError
// values and are translated to HTTP status codes in exactly one place
// (errors.go).
package api

import (
	"net/http"

	"github.com/atticfs/attic/internal/ratelimit"
	"github.com/atticfs/attic/pkg/archive"
	"github.com/atticfs/attic/pkg/blob"
	"github.com/atticfs/attic/pkg/identity"
	"github.com/atticfs/attic/pkg/metrics"
	"github.com/atticfs/attic/pkg/tree"
)

// PrincipalHeader carries the authenticated user's id in canonical hex
// form. Authentication itself is an external collaborator (a proxy or
// gateway); the drive trusts the header and only verifies the user exists.
const PrincipalHeader = "X-Attic-User"

// API holds the handler dependencies.
type API struct {
	store    tree.Store
	blobs    blob.Store
	registry *identity.Registry
	archiver *archive.Builder
	metrics  metrics.HTTPMetrics
	limiter  *ratelimit.Limiter

	// maxFileSize bounds content uploads in bytes.
	maxFileSize uint64
}

// Config configures the API layer.
type Config struct {
	Store       tree.Store
	Blobs       blob.Store
	Registry    *identity.Registry
	Archiver    *archive.Builder
	Metrics     metrics.HTTPMetrics
	MaxFileSize uint64

	// RateLimit caps the request rate of the authenticated surface.
	// Nil disables rate limiting.
	RateLimit *ratelimit.Limiter
}

// New creates the API layer.
func New(cfg Config) *API {
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewHTTPMetrics()
	}
	return &API{
		store:       cfg.Store,
		blobs:       cfg.Blobs,
		registry:    cfg.Registry,
		archiver:    cfg.Archiver,
		metrics:     m,
		limiter:     cfg.RateLimit,
		maxFileSize: cfg.MaxFileSize,
	}
}

// Handler builds the route table.
//
// /healthz and /metrics are unauthenticated and never rate limited;
// everything else goes through the rate limit and principal middleware.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())

	authed := http.NewServeMux()

	authed.HandleFunc("POST /dirs", a.handleCreateDir)
	authed.HandleFunc("GET /dirs/{id}", a.handleGetDir)
	authed.HandleFunc("PUT /dirs/{id}", a.handleRenameDir)
	authed.HandleFunc("DELETE /dirs/{id}", a.handleDeleteDir)
	authed.HandleFunc("PUT /dirs/{id}/grants", a.handleSetGrants)
	authed.HandleFunc("GET /dirs/{id}/archive", a.handleArchive)

	authed.HandleFunc("POST /files", a.handleCreateFile)
	authed.HandleFunc("GET /files/{id}", a.handleGetFile)
	authed.HandleFunc("PUT /files/{id}", a.handleRenameFile)
	authed.HandleFunc("DELETE /files/{id}", a.handleDeleteFile)
	authed.HandleFunc("PUT /files/{id}/data", a.handleUpload)
	authed.HandleFunc("GET /files/{id}/data", a.handleDownload)

	// One-shot convenience endpoints kept for older clients.
	authed.HandleFunc("POST /mkdir/{parent}/{name}", a.handleLegacyMkdir)
	authed.HandleFunc("POST /upload/{dir}/{name}", a.handleLegacyUpload)

	authed.HandleFunc("GET /users", a.handleListUsers)
	authed.HandleFunc("POST /users", a.handleCreateUser)
	authed.HandleFunc("GET /users/{id}", a.handleGetUser)
	authed.HandleFunc("GET /groups", a.handleListGroups)
	authed.HandleFunc("POST /groups", a.handleCreateGroup)
	authed.HandleFunc("GET /groups/{id}", a.handleGetGroup)
	authed.HandleFunc("POST /groups/{id}/members", a.handleAddMember)

	mux.Handle("/", a.withRateLimit(a.withPrincipal(authed)))

	return a.withObservability(mux)
}

// handleHealthz reports readiness of both stores.
func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Healthcheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "tree store unavailable"})
		return
	}
	if err := a.blobs.Healthcheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "blob store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
