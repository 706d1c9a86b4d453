package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atticfs/attic/internal/ratelimit"
	"github.com/atticfs/attic/pkg/access"
	"github.com/atticfs/attic/pkg/archive"
	blobMemory "github.com/atticfs/attic/pkg/blob/memory"
	"github.com/atticfs/attic/pkg/identity"
	"github.com/atticfs/attic/pkg/tree"
	treeMemory "github.com/atticfs/attic/pkg/tree/memory"
)

const testMaxFileSize = 64

type fixture struct {
	handler  http.Handler
	store    *treeMemory.MemoryStore
	blobs    *blobMemory.MemoryStore
	registry *identity.Registry

	alice     *identity.User
	bob       *identity.User
	aliceRoot tree.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	registry := identity.NewRegistry()
	store := treeMemory.NewMemoryStore(access.NewResolver(registry))
	blobs := blobMemory.NewMemoryStore()

	alice, err := registry.AddUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := registry.AddUser(ctx, "bob")
	require.NoError(t, err)

	root, err := store.CreateRoot(ctx, "alice", alice.ID)
	require.NoError(t, err)
	require.NoError(t, registry.SetRootDir(ctx, alice.ID, root.ID))

	bobRoot, err := store.CreateRoot(ctx, "bob", bob.ID)
	require.NoError(t, err)
	require.NoError(t, registry.SetRootDir(ctx, bob.ID, bobRoot.ID))

	a := New(Config{
		Store:       store,
		Blobs:       blobs,
		Registry:    registry,
		Archiver:    archive.NewBuilder(store, blobs),
		MaxFileSize: testMaxFileSize,
	})

	return &fixture{
		handler:   a.Handler(),
		store:     store,
		blobs:     blobs,
		registry:  registry,
		alice:     alice,
		bob:       bob,
		aliceRoot: root.ID,
	}
}

// do runs one request through the handler. A nil principal id sends no
// auth header; a JSON-encodable body is marshalled, a string sent raw.
func (fx *fixture) do(t *testing.T, method, path string, principal tree.ID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req := httptest.NewRequest(method, path, reader)
	if principal != 0 {
		req.Header.Set(PrincipalHeader, principal.Hex())
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	detail, ok := body["error"].(map[string]any)
	require.True(t, ok, "no error envelope in %s", rec.Body.String())
	return detail["code"].(string)
}

func TestAuthentication(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodGet, "/dirs/"+fx.aliceRoot.Hex(), 0, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/dirs/"+fx.aliceRoot.Hex(), nil)
	req.Header.Set(PrincipalHeader, "not-hex-zz")
	rec = httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = fx.do(t, http.MethodGet, "/dirs/"+fx.aliceRoot.Hex(), tree.ID(0xdead), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorized", errorCode(t, rec))
}

func TestHealthz(t *testing.T) {
	fx := newFixture(t)

	// Health is served without authentication.
	rec := fx.do(t, http.MethodGet, "/healthz", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestDirectoryLifecycle(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/dirs", fx.alice.ID,
		map[string]string{"parent_id": fx.aliceRoot.Hex(), "name": "docs"})
	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeBody(t, rec)
	require.Equal(t, "docs", created["name"])
	docsID := created["id"].(string)

	// Duplicate name conflicts.
	rec = fx.do(t, http.MethodPost, "/dirs", fx.alice.ID,
		map[string]string{"parent_id": fx.aliceRoot.Hex(), "name": "docs"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "name_conflict", errorCode(t, rec))

	rec = fx.do(t, http.MethodGet, "/dirs/"+fx.aliceRoot.Hex(), fx.alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decodeBody(t, rec)
	require.Len(t, listing["directories"], 1)
	require.Len(t, listing["path"], 1)

	rec = fx.do(t, http.MethodPut, "/dirs/"+docsID, fx.alice.ID,
		map[string]string{"name": "papers"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "papers", decodeBody(t, rec)["name"])

	rec = fx.do(t, http.MethodDelete, "/dirs/"+docsID, fx.alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, docsID, decodeBody(t, rec)["id"])

	rec = fx.do(t, http.MethodGet, "/dirs/"+docsID, fx.alice.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", errorCode(t, rec))
}

func TestPermissionBoundaries(t *testing.T) {
	fx := newFixture(t)

	// Bob cannot see or change Alice's tree.
	rec := fx.do(t, http.MethodGet, "/dirs/"+fx.aliceRoot.Hex(), fx.bob.ID, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden", errorCode(t, rec))

	rec = fx.do(t, http.MethodPost, "/dirs", fx.bob.ID,
		map[string]string{"parent_id": fx.aliceRoot.Hex(), "name": "intrusion"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Roots cannot be deleted, even by their owner.
	rec = fx.do(t, http.MethodDelete, "/dirs/"+fx.aliceRoot.Hex(), fx.alice.ID, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGrantsEndpoint(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	team, err := fx.registry.AddGroup(ctx, "team")
	require.NoError(t, err)
	_, err = fx.registry.AddMember(ctx, team.ID, fx.bob.ID)
	require.NoError(t, err)

	rec := fx.do(t, http.MethodPut, "/dirs/"+fx.aliceRoot.Hex()+"/grants", fx.alice.ID,
		map[string]any{"read": []string{team.ID.Hex()}})
	require.Equal(t, http.StatusOK, rec.Code)

	// The grant makes the listing visible to Bob.
	rec = fx.do(t, http.MethodGet, "/dirs/"+fx.aliceRoot.Hex(), fx.bob.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Only the owner may change grants.
	rec = fx.do(t, http.MethodPut, "/dirs/"+fx.aliceRoot.Hex()+"/grants", fx.bob.ID,
		map[string]any{"write": []string{team.ID.Hex()}})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFileUploadDownload(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/files", fx.alice.ID,
		map[string]string{"parent_id": fx.aliceRoot.Hex(), "name": "notes.txt"})
	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeBody(t, rec)
	fileID := created["id"].(string)
	require.Equal(t, true, created["pending"])
	require.NotContains(t, created, "size")

	// Downloading a pending file reports the distinct conflict code.
	rec = fx.do(t, http.MethodGet, "/files/"+fileID+"/data", fx.alice.ID, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "content_not_ready", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodPut, "/files/"+fileID+"/data", strings.NewReader("hello world"))
	req.Header.Set(PrincipalHeader, fx.alice.ID.Hex())
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	uploaded := decodeBody(t, rec)
	require.Equal(t, false, uploaded["pending"])
	require.Equal(t, float64(11), uploaded["size"])
	require.Equal(t, "text/plain", uploaded["content_type"])

	rec = fx.do(t, http.MethodGet, "/files/"+fileID+"/data", fx.alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello world", rec.Body.String())
	require.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	require.Equal(t, "11", rec.Header().Get("Content-Length"))

	// Re-upload replaces the content and releases the old blob.
	rec = fx.do(t, http.MethodPut, "/files/"+fileID+"/data", fx.alice.ID, "goodbye")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodGet, "/files/"+fileID+"/data", fx.alice.ID, nil)
	require.Equal(t, "goodbye", rec.Body.String())

	ids, err := fx.blobs.List(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 1)

	rec = fx.do(t, http.MethodDelete, "/files/"+fileID, fx.alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, fileID, decodeBody(t, rec)["id"])

	ids, err = fx.blobs.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestUploadTooLarge(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/files", fx.alice.ID,
		map[string]string{"parent_id": fx.aliceRoot.Hex(), "name": "big.bin"})
	require.Equal(t, http.StatusOK, rec.Code)
	fileID := decodeBody(t, rec)["id"].(string)

	oversized := strings.Repeat("x", testMaxFileSize+1)
	rec = fx.do(t, http.MethodPut, "/files/"+fileID+"/data", fx.alice.ID, oversized)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "file_too_large", errorCode(t, rec))

	// The file stays pending and the partial blob is gone.
	rec = fx.do(t, http.MethodGet, "/files/"+fileID, fx.alice.ID, nil)
	require.Equal(t, true, decodeBody(t, rec)["pending"])

	ids, err := fx.blobs.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestLegacyEndpoints(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/mkdir/"+fx.aliceRoot.Hex()+"/photos", fx.alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dirID := decodeBody(t, rec)["id"].(string)

	rec = fx.do(t, http.MethodPost, "/upload/"+dirID+"/cat.jpg", fx.alice.ID, "meow")
	require.Equal(t, http.StatusOK, rec.Code)
	uploaded := decodeBody(t, rec)
	require.Equal(t, false, uploaded["pending"])
	require.Equal(t, float64(4), uploaded["size"])

	fileID := uploaded["id"].(string)
	rec = fx.do(t, http.MethodGet, "/files/"+fileID+"/data", fx.alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "meow", rec.Body.String())
}

func TestUserAndGroupEndpoints(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/users", fx.alice.ID, map[string]string{"name": "carol"})
	require.Equal(t, http.StatusOK, rec.Code)
	carol := decodeBody(t, rec)
	require.Equal(t, "carol", carol["name"])
	require.NotEmpty(t, carol["root_dir"])

	// Registration created a usable root.
	carolID, err := tree.ParseID(carol["id"].(string))
	require.NoError(t, err)
	rec = fx.do(t, http.MethodGet, "/dirs/"+carol["root_dir"].(string), carolID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodPost, "/users", fx.alice.ID, map[string]string{"name": "carol"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "name_conflict", errorCode(t, rec))

	rec = fx.do(t, http.MethodGet, "/users", fx.alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 3)

	rec = fx.do(t, http.MethodPost, "/groups", fx.alice.ID, map[string]string{"name": "team"})
	require.Equal(t, http.StatusOK, rec.Code)
	groupID := decodeBody(t, rec)["id"].(string)

	rec = fx.do(t, http.MethodPost, "/groups/"+groupID+"/members", fx.alice.ID,
		map[string]string{"user": fx.bob.ID.Hex()})
	require.Equal(t, http.StatusOK, rec.Code)
	group := decodeBody(t, rec)
	members := group["members"].([]any)
	require.Len(t, members, 1)
	require.Equal(t, "bob", members[0].(map[string]any)["name"])

	rec = fx.do(t, http.MethodGet, "/groups/"+groupID, fx.alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestArchiveEndpoint(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/mkdir/"+fx.aliceRoot.Hex()+"/docs", fx.alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dirID := decodeBody(t, rec)["id"].(string)

	rec = fx.do(t, http.MethodPost, "/upload/"+dirID+"/a.txt", fx.alice.ID, "alpha")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodGet, "/dirs/"+dirID+"/archive", fx.alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "docs.zip")

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	require.ElementsMatch(t, []string{"docs/", "docs/a.txt"}, names)

	// No read access on the directory: proper error response, no zip bytes.
	rec = fx.do(t, http.MethodGet, "/dirs/"+dirID+"/archive", fx.bob.ID, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimiting(t *testing.T) {
	ctx := context.Background()

	registry := identity.NewRegistry()
	store := treeMemory.NewMemoryStore(access.NewResolver(registry))
	blobs := blobMemory.NewMemoryStore()

	alice, err := registry.AddUser(ctx, "alice")
	require.NoError(t, err)
	root, err := store.CreateRoot(ctx, "alice", alice.ID)
	require.NoError(t, err)
	require.NoError(t, registry.SetRootDir(ctx, alice.ID, root.ID))

	handler := New(Config{
		Store:       store,
		Blobs:       blobs,
		Registry:    registry,
		Archiver:    archive.NewBuilder(store, blobs),
		MaxFileSize: testMaxFileSize,
		RateLimit:   ratelimit.New(1, 2),
	}).Handler()

	get := func(path string, authed bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if authed {
			req.Header.Set(PrincipalHeader, alice.ID.Hex())
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	path := "/dirs/" + root.ID.Hex()
	require.Equal(t, http.StatusOK, get(path, true).Code)
	require.Equal(t, http.StatusOK, get(path, true).Code)

	limited := get(path, true)
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "rate_limited", errorCode(t, limited))

	// Health checks bypass the limiter even with the budget spent.
	require.Equal(t, http.StatusOK, get("/healthz", false).Code)
}
