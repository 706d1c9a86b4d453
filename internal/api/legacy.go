package api

import (
	"net/http"

	"github.com/atticfs/attic/pkg/blob"
)

// Older clients drive the tree through path-style endpoints that bundle
// several operations into one request. They reuse the same store calls as
// the resource endpoints, so behavior and error codes stay identical.

// handleLegacyMkdir creates a directory in one shot:
// POST /mkdir/{parent}/{name}.
func (a *API) handleLegacyMkdir(w http.ResponseWriter, r *http.Request) {
	parentID, err := pathID(r, "parent")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed directory id")
		return
	}

	dir, err := a.store.CreateDirectory(r.Context(), principal(r), parentID, r.PathValue("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.renderDir(dir))
}

// handleLegacyUpload creates a file and uploads its content in one request:
// POST /upload/{dir}/{name} with the content as the body.
//
// The flow is the same two-phase write as the resource endpoints; if the
// stream fails mid-way the file is left pending and the partial blob is
// released.
func (a *API) handleLegacyUpload(w http.ResponseWriter, r *http.Request) {
	dirID, err := pathID(r, "dir")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed directory id")
		return
	}

	file, err := a.store.CreateFile(r.Context(), principal(r), dirID, r.PathValue("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	intent, err := a.store.PrepareWrite(r.Context(), principal(r), file.ID)
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
