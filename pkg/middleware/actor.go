package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/contextkeys"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/identity"
)

// ActorContext is the acting principal attached to a request.
// Authentication itself happens upstream (session or token verification
// at the edge); this service trusts the forwarded actor identity.
type ActorContext struct {
	Actor *identity.Actor
	// ImpersonatedBy is set when an admin is acting as Actor through an
	// impersonation session.
	ImpersonatedBy *int64
}

// ActorReader loads actors for context extraction
type ActorReader interface {
	GetActor(ctx context.Context, actorID int64) (*identity.Actor, error)
}

// ActorMiddleware resolves the forwarded actor identity into an
// ActorContext on the request context.
type ActorMiddleware struct {
	identities ActorReader
	optional   bool // If true, allow requests without an actor
}

// NewActorMiddleware creates actor-context middleware
func NewActorMiddleware(identities ActorReader, optional bool) *ActorMiddleware {
	return &ActorMiddleware{
		identities: identities,
		optional:   optional,
	}
}

// Handler wraps an HTTP handler with actor-context extraction.
// The authenticated actor ID arrives in X-Actor-ID; an active
// impersonation is forwarded in X-Impersonator-ID.
func (m *ActorMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("X-Actor-ID")
		if header == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "missing actor identity")
			return
		}

		actorID, err := strconv.ParseInt(header, 10, 64)
		if err != nil {
			m.unauthorizedResponse(w, "invalid actor identity")
			return
		}

		actor, err := m.identities.GetActor(r.Context(), actorID)
		if errors.Is(err, identity.ErrNotFound) {
			m.unauthorizedResponse(w, "unknown actor")
			return
		}
		if err != nil {
			http.Error(w, "failed to resolve actor", http.StatusInternalServerError)
			return
		}
		if actor.IsDeleted || !actor.IsActive {
			m.unauthorizedResponse(w, "actor is not active")
			return
		}

		actorCtx := &ActorContext{Actor: actor}
		if imp := r.Header.Get("X-Impersonator-ID"); imp != "" {
			if impID, err := strconv.ParseInt(imp, 10, 64); err == nil {
				actorCtx.ImpersonatedBy = &impID
			}
		}

		ctx := contextkeys.WithActor(r.Context(), actorCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *ActorMiddleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetActorContext retrieves the actor context from a request, or nil
// when the request is anonymous.
func GetActorContext(r *http.Request) *ActorContext {
	actorCtx, _ := r.Context().Value(contextkeys.ActorKey).(*ActorContext)
	return actorCtx
}
