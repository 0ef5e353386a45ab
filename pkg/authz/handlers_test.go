package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/identity"
)

func newTestRouter(f *resolverFixture) *mux.Router {
	handlers := NewHandlers(nil, f.resolver, f.resolver.logger)
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCheck(t *testing.T) {
	f := newFixture(NopCache{})
	f.addActor(1, func(a *identity.Actor) { a.IsPlatformAdmin = true })
	router := newTestRouter(f)

	t.Run("allowed", func(t *testing.T) {
		rec := doJSON(t, router, "POST", "/authz/check", map[string]interface{}{
			"actor_id": 1, "resource": "projects", "action": "read",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var d Decision
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
		assert.True(t, d.Allowed)
		assert.Equal(t, ReasonPlatformAdmin, d.Reason)
	})

	t.Run("denied", func(t *testing.T) {
		rec := doJSON(t, router, "POST", "/authz/check", map[string]interface{}{
			"actor_id": 404, "resource": "projects", "action": "read",
		})
		require.Equal(t, http.StatusOK, rec.Code, "a denial is a successful check, not an HTTP error")

		var d Decision
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
		assert.False(t, d.Allowed)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/authz/check", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := doJSON(t, router, "POST", "/authz/check", map[string]interface{}{"actor_id": 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandlerCheckBulk(t *testing.T) {
	f := newFixture(NopCache{})
	f.addActor(1, func(a *identity.Actor) { a.IsPlatformAdmin = true })
	router := newTestRouter(f)

	rec := doJSON(t, router, "POST", "/authz/check-bulk", map[string]interface{}{
		"actor_id": 1, "resource": "projects", "action": "read",
		"resource_ids": []string{"a", "b"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results map[string]bool `json:"results"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, map[string]bool{"a": true, "b": true}, resp.Results)
}

func TestHandlerGrantAndRevoke(t *testing.T) {
	f := newFixture(NopCache{})
	f.addActor(1, nil)
	router := newTestRouter(f)

	rec := doJSON(t, router, "POST", "/authz/grants", map[string]interface{}{
		"actor_id": 1, "resource": "projects", "action": "read", "scope": "own",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var p Permission
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.NotZero(t, p.ID)

	d := f.resolver.Check(context.Background(), CheckRequest{ActorID: 1, Resource: "projects", Action: ActionRead})
	assert.True(t, d.Allowed)

	rec = doJSON(t, router, "DELETE", "/authz/grants/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, "DELETE", "/authz/grants/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	t.Run("invalid grant", func(t *testing.T) {
		rec := doJSON(t, router, "POST", "/authz/grants", map[string]interface{}{
			"actor_id": 1, "resource": "projects", "action": "fly", "scope": "own",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandlerGrantRolePermission(t *testing.T) {
	f := newFixture(NopCache{})
	f.addActor(1, nil)
	f.addMembership(1, 1, true, identity.RoleScheduler)
	router := newTestRouter(f)

	rec := doJSON(t, router, "POST", "/authz/roles/scheduler/grants", map[string]interface{}{
		"resource": "schedules", "action": "write", "scope": "tenant",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	tenant1 := int64(1)
	d := f.resolver.Check(context.Background(), CheckRequest{ActorID: 1, Resource: "schedules", Action: ActionWrite, TenantID: &tenant1})
	assert.True(t, d.Allowed)

	t.Run("unknown role in path", func(t *testing.T) {
		rec := doJSON(t, router, "POST", "/authz/roles/warlord/grants", map[string]interface{}{
			"resource": "schedules", "action": "write", "scope": "tenant",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandlerRevokeForResource(t *testing.T) {
	f := newFixture(NopCache{})
	f.addActor(1, nil)
	router := newTestRouter(f)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, router, "POST", "/authz/grants", map[string]interface{}{
			"actor_id": 1, "resource": "projects", "action": "read", "scope": "own",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, router, "POST", "/authz/grants/revoke-resource", map[string]interface{}{
		"actor_id": 1, "resource": "projects",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(2), resp["revoked"])
}

func TestHandlerGetPermissions(t *testing.T) {
	f := newFixture(NopCache{})
	f.addActor(1, nil)
	router := newTestRouter(f)

	rec := doJSON(t, router, "POST", "/authz/grants", map[string]interface{}{
		"actor_id": 1, "resource": "projects", "action": "read", "scope": "own",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, "GET", "/authz/actors/1/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Permissions []Permission `json:"permissions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Permissions, 1)
	assert.Equal(t, Resource("projects"), resp.Permissions[0].Resource)
}

func TestHandlerApplyRoleTemplate(t *testing.T) {
	f := newFixture(NopCache{})
	f.addActor(1, nil)
	f.perms.templates = []RoleTemplate{
		{ID: 1, Role: identity.RoleScheduler, Resource: "schedules", Action: ActionWrite, DefaultScope: ScopeTenant},
	}
	router := newTestRouter(f)

	rec := doJSON(t, router, "POST", "/authz/actors/1/apply-template", map[string]interface{}{
		"role": "scheduler", "tenant_id": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Permissions []Permission `json:"permissions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Permissions, 1)

	t.Run("missing tenant", func(t *testing.T) {
		rec := doJSON(t, router, "POST", "/authz/actors/1/apply-template", map[string]interface{}{
			"role": "scheduler",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
