package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/identity"
)

type fakeActorReader struct {
	actors map[int64]*identity.Actor
}

func (f *fakeActorReader) GetActor(ctx context.Context, actorID int64) (*identity.Actor, error) {
	actor, ok := f.actors[actorID]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return actor, nil
}

func newActorReader() *fakeActorReader {
	return &fakeActorReader{actors: map[int64]*identity.Actor{
		1: {ID: 1, Email: "owner@example.com", IsActive: true},
		2: {ID: 2, Email: "gone@example.com", IsActive: true, IsDeleted: true},
		3: {ID: 3, Email: "idle@example.com", IsActive: false},
	}}
}

func captureActorContext(captured **ActorContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = GetActorContext(r)
		w.WriteHeader(http.StatusOK)
	})
}

func TestActorMiddleware(t *testing.T) {
	var captured *ActorContext
	handler := NewActorMiddleware(newActorReader(), false).Handler(captureActorContext(&captured))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Actor-ID", "1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	require.NotNil(t, captured.Actor)
	assert.Equal(t, int64(1), captured.Actor.ID)
	assert.Nil(t, captured.ImpersonatedBy)
}

func TestActorMiddlewareImpersonation(t *testing.T) {
	var captured *ActorContext
	handler := NewActorMiddleware(newActorReader(), false).Handler(captureActorContext(&captured))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Actor-ID", "1")
	req.Header.Set("X-Impersonator-ID", "42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured.ImpersonatedBy)
	assert.Equal(t, int64(42), *captured.ImpersonatedBy)
}

func TestActorMiddlewareRejections(t *testing.T) {
	tests := []struct {
		name    string
		actorID string
	}{
		{"missing header", ""},
		{"malformed id", "abc"},
		{"unknown actor", "99"},
		{"deleted actor", "2"},
		{"inactive actor", "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured *ActorContext
			handler := NewActorMiddleware(newActorReader(), false).Handler(captureActorContext(&captured))

			req := httptest.NewRequest("GET", "/", nil)
			if tt.actorID != "" {
				req.Header.Set("X-Actor-ID", tt.actorID)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, captured)
		})
	}
}

func TestActorMiddlewareOptional(t *testing.T) {
	var captured *ActorContext
	handler := NewActorMiddleware(newActorReader(), true).Handler(captureActorContext(&captured))

	// Anonymous requests pass through with no actor context.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, captured)

	// A forwarded identity is still resolved and still validated.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Actor-ID", "3")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
