package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/atticfs/attic/internal/logger"
	"github.com/atticfs/attic/pkg/blob"
	"github.com/atticfs/attic/pkg/tree"
)

// handleCreateFile registers file metadata: POST /files {"parent_id": "...",
// "name": "..."}. The file starts pending; content arrives via the data
// endpoint.
func (a *API) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parent tree.ID `json:"parent_id"`
		Name   string  `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	file, err := a.store.CreateFile(r.Context(), principal(r), req.Parent, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.renderFile(file))
}

// handleGetFile returns file metadata: GET /files/{id}.
func (a *API) handleGetFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed file id")
		return
	}

	file, err := a.store.GetFile(r.Context(), fileID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.renderFile(file))
}

// handleRenameFile renames a file: PUT /files/{id} {"name": "..."}.
func (a *API) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed file id")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	file, err := a.store.RenameFile(r.Context(), principal(r), fileID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.renderFile(file))
}

// handleDeleteFile removes a file: DELETE /files/{id}. The released blob is
// deleted best-effort; the collector reclaims it otherwise.
func (a *API) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed file id")
		return
	}

	released, err := a.store.RemoveFile(r.Context(), principal(r), fileID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.releaseBlob(r, released)

	writeJSON(w, http.StatusOK, map[string]tree.ID{"id": fileID})
}

// handleUpload streams content into a file: PUT /files/{id}/data.
//
// The upload is two-phase: reserve a ContentID, stream the body into the
// blob store under it, then commit. Until the commit the file keeps serving
// its previous content (or stays pending), so a dropped connection never
// leaves a half-visible write.
func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed file id")
		return
	}

	intent, err := a.store.PrepareWrite(r.Context(), principal(r), fileID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	written, err := a.blobs.Put(r.Context(), intent.ContentID, blob.LimitReader(r.Body, a.maxFileSize))
	if err != nil {
		a.releaseBlob(r, intent.ContentID)
		writeError(w, r, err)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	file, replaced, err := a.store.CommitWrite(r.Context(), principal(r), intent, written, contentType)
	if err != nil {
		a.releaseBlob(r, intent.ContentID)
		writeError(w, r, err)
		return
	}
	a.releaseBlob(r, replaced)
	a.metrics.RecordBytesTransferred("upload", int64(written))

	writeJSON(w, http.StatusOK, a.renderFile(file))
}

// handleDownload streams file content: GET /files/{id}/data.
func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed file id")
		return
	}

	file, err := a.store.PrepareRead(r.Context(), principal(r), fileID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rc, err := a.blobs.Open(r.Context(), file.ContentID)
	if err != nil {
		// A committed file whose blob vanished is a store inconsistency, not
		// a client error.
		if errors.Is(err, blob.ErrContentNotFound) {
			logger.Error("File %s references missing content %s", file.ID, file.ContentID)
			writeErrorCode(w, http.StatusInternalServerError, "internal", "content unavailable")
			return
		}
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatUint(file.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))

	n, err := io.Copy(w, rc)
	if err != nil {
		logger.Warn("Download of %s aborted after %d bytes: %v", file.ID, n, err)
	}
	a.metrics.RecordBytesTransferred("download", n)
}

// releaseBlob deletes a blob best-effort. An empty id (pending file, first
// upload) is a no-op.
func (a *API) releaseBlob(r *http.Request, id tree.ContentID) {
	if id == "" {
		return
	}
	if err := a.blobs.Delete(r.Context(), id); err != nil {
		logger.Warn("Failed to release blob %s: %v", id, err)
	}
}
