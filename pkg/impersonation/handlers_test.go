package impersonation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/contextkeys"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/middleware"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

func newTestRouter(f *fixture) *mux.Router {
	handlers := NewHandlers(f.service, observability.NewLogger(observability.ErrorLevel, io.Discard))
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	return router
}

// doJSON issues a request with the given actor on the context. actorID
// zero means anonymous.
func doJSON(t *testing.T, router *mux.Router, f *fixture, method, path string, actorID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)

	if actorID != 0 {
		actor, err := f.ids.GetActor(context.Background(), actorID)
		require.NoError(t, err)
		ctx := contextkeys.WithActor(req.Context(), &middleware.ActorContext{Actor: actor})
		req = req.WithContext(ctx)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStartHandler(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	rec := doJSON(t, router, f, "POST", "/impersonation/sessions", 1,
		map[string]interface{}{"target_actor_id": 2, "reason": validReason})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var session Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	assert.NotZero(t, session.ID)
	assert.Equal(t, int64(1), session.AdminActorID)
	assert.Equal(t, int64(2), session.ImpersonatedActorID)
}

func TestStartHandlerErrors(t *testing.T) {
	tests := []struct {
		name     string
		actorID  int64
		body     interface{}
		wantCode int
	}{
		{"anonymous", 0, map[string]interface{}{"target_actor_id": 2, "reason": validReason}, http.StatusUnauthorized},
		{"missing target", 1, map[string]interface{}{"reason": validReason}, http.StatusBadRequest},
		{"reason too short", 1, map[string]interface{}{"target_actor_id": 2, "reason": "nope"}, http.StatusBadRequest},
		{"not an admin", 2, map[string]interface{}{"target_actor_id": 3, "reason": validReason}, http.StatusForbidden},
		{"target is admin", 1, map[string]interface{}{"target_actor_id": 4, "reason": validReason}, http.StatusForbidden},
		{"target inactive", 1, map[string]interface{}{"target_actor_id": 5, "reason": validReason}, http.StatusForbidden},
		{"target missing", 1, map[string]interface{}{"target_actor_id": 99, "reason": validReason}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			router := newTestRouter(f)
			rec := doJSON(t, router, f, "POST", "/impersonation/sessions", tt.actorID, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestEndHandler(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	session, err := f.service.Start(context.Background(), 1, 2, validReason, "", "")
	require.NoError(t, err)

	path := fmt.Sprintf("/impersonation/sessions/%d", session.ID)
	rec := doJSON(t, router, f, "DELETE", path, 1, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	ended, err := f.service.GetSessionByID(context.Background(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, ended.EndReason)
	assert.Equal(t, EndReasonManualStop, *ended.EndReason)

	// Ending twice conflicts; a missing session is a 404.
	rec = doJSON(t, router, f, "DELETE", path, 1, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = doJSON(t, router, f, "DELETE", "/impersonation/sessions/999", 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, router, f, "DELETE", "/impersonation/sessions/abc", 1, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndHandlerCustomReason(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	session, err := f.service.Start(context.Background(), 1, 2, validReason, "", "")
	require.NoError(t, err)

	rec := doJSON(t, router, f, "DELETE", fmt.Sprintf("/impersonation/sessions/%d", session.ID), 1,
		map[string]string{"end_reason": "admin_deactivated"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	ended, err := f.service.GetSessionByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, EndReasonAdminDeactivated, *ended.EndReason)
}

func TestGetActiveSessionHandler(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	rec := doJSON(t, router, f, "GET", "/impersonation/sessions/active", 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	session, err := f.service.Start(context.Background(), 1, 2, validReason, "", "")
	require.NoError(t, err)

	rec = doJSON(t, router, f, "GET", "/impersonation/sessions/active", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, session.ID, got.ID)

	// Another admin has no active session.
	rec = doJSON(t, router, f, "GET", "/impersonation/sessions/active", 4, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSessionHandler(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	session, err := f.service.Start(context.Background(), 1, 2, validReason, "", "")
	require.NoError(t, err)

	rec := doJSON(t, router, f, "GET", fmt.Sprintf("/impersonation/sessions/%d", session.ID), 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, f, "GET", "/impersonation/sessions/999", 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRecentSessionsHandler(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	for _, target := range []int64{2, 3} {
		_, err := f.service.Start(context.Background(), 1, target, validReason, "", "")
		require.NoError(t, err)
		f.clock.Advance(1)
	}

	rec := doJSON(t, router, f, "GET", "/impersonation/sessions?limit=10", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Sessions, 2)

	rec = doJSON(t, router, f, "GET", "/impersonation/sessions", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckEligibilityHandler(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	rec := doJSON(t, router, f, "POST", "/impersonation/eligibility", 1,
		map[string]interface{}{"target_actor_id": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, true, resp["allowed"])

	rec = doJSON(t, router, f, "POST", "/impersonation/eligibility", 1,
		map[string]interface{}{"target_actor_id": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, false, resp["allowed"])
	assert.NotEmpty(t, resp["reason"])
}
