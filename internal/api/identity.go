package api

import (
	"net/http"

	"github.com/atticfs/attic/internal/logger"
	"github.com/atticfs/attic/pkg/tree"
)

// handleListUsers lists all users: GET /users.
func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.registry.Users(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	bodies := make([]userBody, 0, len(users))
	for _, u := range users {
		bodies = append(bodies, renderUser(u))
	}
	writeJSON(w, http.StatusOK, bodies)
}

// handleCreateUser registers a user and creates their root directory:
// POST /users {"name": "..."}.
func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	user, err := a.registry.AddUser(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	root, err := a.store.CreateRoot(r.Context(), user.Name, user.ID)
	if err != nil {
		// The registry entry stays; the next restart's seeding relinks it if
		// a root by the same name appears.
		logger.Error("Failed to create root directory for user %s: %v", user.Name, err)
		writeError(w, r, err)
		return
	}
	if err := a.registry.SetRootDir(r.Context(), user.ID, root.ID); err != nil {
		writeError(w, r, err)
		return
	}
	user.RootDir = root.ID

	writeJSON(w, http.StatusOK, renderUser(user))
}

// handleGetUser returns a user: GET /users/{id}.
func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed user id")
		return
	}

	user, err := a.registry.User(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderUser(user))
}

// handleListGroups lists all groups: GET /groups.
func (a *API) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := a.registry.Groups(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	bodies := make([]groupBody, 0, len(groups))
	for _, g := range groups {
		bodies = append(bodies, a.renderGroup(g))
	}
	writeJSON(w, http.StatusOK, bodies)
}

// handleCreateGroup registers an empty group: POST /groups {"name": "..."}.
func (a *API) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	group, err := a.registry.AddGroup(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.renderGroup(group))
}

// handleGetGroup returns a group with its members: GET /groups/{id}.
func (a *API) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed group id")
		return
	}

	group, err := a.registry.Group(r.Context(), groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.renderGroup(group))
}

// handleAddMember adds a user to a group: POST /groups/{id}/members
// {"user": "..."}.
func (a *API) handleAddMember(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "id")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed group id")
		return
	}
	var req struct {
		User tree.ID `json:"user"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	group, err := a.registry.AddMember(r.Context(), groupID, req.User)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.renderGroup(group))
}
