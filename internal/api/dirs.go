package api

import (
	"fmt"
	"net/http"

	"github.com/atticfs/attic/internal/logger"
	"github.com/atticfs/attic/pkg/tree"
)

// handleCreateDir creates a directory: POST /dirs {"parent_id": "...", "name": "..."}.
func (a *API) handleCreateDir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parent tree.ID `json:"parent_id"`
		Name   string  `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	dir, err := a.store.CreateDirectory(r.Context(), principal(r), req.Parent, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.renderDir(dir))
}

// handleGetDir lists a directory: GET /dirs/{id}. The response carries the
// breadcrumb path and the children annotated with the caller's access.
func (a *API) handleGetDir(w http.ResponseWriter, r *http.Request) {
	dirID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed directory id")
		return
	}

	listing, err := a.store.ListChildren(r.Context(), principal(r), dirID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	path, err := a.store.Path(r.Context(), dirID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.renderListing(listing, path))
}

// handleRenameDir renames a directory: PUT /dirs/{id} {"name": "..."}.
func (a *API) handleRenameDir(w http.ResponseWriter, r *http.Request) {
	dirID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed directory id")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	dir, err := a.store.RenameDirectory(r.Context(), principal(r), dirID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.renderDir(dir))
}

// handleDeleteDir removes a directory and its subtree: DELETE /dirs/{id}.
// The released blobs are deleted best-effort; anything that survives is
// reclaimed by the collector.
func (a *API) handleDeleteDir(w http.ResponseWriter, r *http.Request) {
	dirID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed directory id")
		return
	}

	released, err := a.store.RemoveDirectory(r.Context(), principal(r), dirID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	for _, contentID := range released {
		a.releaseBlob(r, contentID)
	}

	writeJSON(w, http.StatusOK, map[string]tree.ID{"id": dirID})
}

// handleSetGrants replaces grant sets: PUT /dirs/{id}/grants
// {"read": [...], "write": [...]}. A missing side is left unchanged.
func (a *API) handleSetGrants(w http.ResponseWriter, r *http.Request) {
	dirID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed directory id")
		return
	}
	var req struct {
		Read  []tree.ID `json:"read"`
		Write []tree.ID `json:"write"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	dir, err := a.store.SetDirectoryGrants(r.Context(), principal(r), dirID, req.Read, req.Write)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.renderDir(dir))
}

// handleArchive streams the subtree as a zip: GET /dirs/{id}/archive.
//
// Permission and existence failures surface before the first byte is
// written. Once streaming has begun the status line is already sent, so a
// mid-stream failure can only abort the connection and be logged.
func (a *API) handleArchive(w http.ResponseWriter, r *http.Request) {
	dirID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed directory id")
		return
	}

	dir, err := a.store.GetDirectory(r.Context(), dirID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dir.Name+".zip"))

	hw := &trackingWriter{w: w}
	if err := a.archiver.WriteArchive(r.Context(), principal(r), dirID, hw); err != nil {
		if hw.started {
			// The status line is out; all that is left is to drop the
			// connection and log.
			logger.Warn("Archive of %s aborted mid-stream: %v", dirID, err)
			return
		}
		writeError(w, r, err)
	}
}

// trackingWriter remembers whether any archive bytes reached the response,
// which decides if an error can still become a proper error response.
type trackingWriter struct {
	w       http.ResponseWriter
	started bool
}

func (tw *trackingWriter) Write(p []byte) (int, error) {
	tw.started = true
	return tw.w.Write(p)
}
