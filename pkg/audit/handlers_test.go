package audit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// recordingSink returns canned entries and remembers the last filter.
type recordingSink struct {
	entries    []Entry
	lastFilter Filter
	queryErr   error
}

func (s *recordingSink) Write(ctx context.Context, e *Entry) error { return nil }

func (s *recordingSink) Query(ctx context.Context, f Filter) ([]Entry, error) {
	s.lastFilter = f
	return s.entries, s.queryErr
}

func newAuditRouter(sink Sink) *mux.Router {
	handlers := NewHandlers(sink, observability.NewLogger(observability.ErrorLevel, io.Discard))
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	return router
}

func doGet(router *mux.Router, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestQueryHandler(t *testing.T) {
	checked := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sink := &recordingSink{entries: []Entry{
		{ID: 2, ActorID: 7, Resource: "bookings", Action: "read", Allowed: true, CheckedAt: checked},
		{ID: 1, ActorID: 7, Resource: "bookings", Action: "delete", Allowed: false, CheckedAt: checked.Add(-time.Minute)},
	}}
	router := newAuditRouter(sink)

	rec := doGet(router, "/authz/audit?actor_id=7&resource=bookings&allowed=false&limit=50")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Entries []Entry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Entries, 2)
	assert.Equal(t, int64(2), resp.Entries[0].ID)

	require.NotNil(t, sink.lastFilter.ActorID)
	assert.Equal(t, int64(7), *sink.lastFilter.ActorID)
	assert.Equal(t, "bookings", sink.lastFilter.Resource)
	require.NotNil(t, sink.lastFilter.Allowed)
	assert.False(t, *sink.lastFilter.Allowed)
	assert.Equal(t, 50, sink.lastFilter.Limit)
	assert.Nil(t, sink.lastFilter.TenantID)
	assert.Nil(t, sink.lastFilter.Since)
}

func TestQueryHandlerTimeWindow(t *testing.T) {
	sink := &recordingSink{}
	router := newAuditRouter(sink)

	rec := doGet(router, "/authz/audit?since=2026-03-01T08:00:00Z&until=2026-03-01T10:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, sink.lastFilter.Since)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), sink.lastFilter.Since.UTC())
	require.NotNil(t, sink.lastFilter.Until)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), sink.lastFilter.Until.UTC())

	// No matches still returns a JSON array, not null.
	assert.Contains(t, rec.Body.String(), `"entries":[]`)
}

func TestQueryHandlerBadParams(t *testing.T) {
	router := newAuditRouter(&recordingSink{})

	for _, target := range []string{
		"/authz/audit?actor_id=abc",
		"/authz/audit?actor_id=0",
		"/authz/audit?tenant_id=-4",
		"/authz/audit?allowed=maybe",
		"/authz/audit?since=yesterday",
		"/authz/audit?until=03/01/2026",
		"/authz/audit?limit=0",
		"/authz/audit?limit=many",
	} {
		rec := doGet(router, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestQueryHandlerSinkError(t *testing.T) {
	router := newAuditRouter(&recordingSink{queryErr: assert.AnError})

	rec := doGet(router, "/authz/audit")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
