package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/anirudh/go-ridebid/internal/auth"
)

// Headers set by the access-control collaborator fronting this service.
// Session management itself is out of scope here; by the time a request
// reaches the core, identity has already been established upstream.
const (
	ActorIDHeader   = "X-Actor-ID"
	ActorRoleHeader = "X-Actor-Role"
)

// Actor resolves the current actor from request headers and stores it on the
// context. Requests without an identity are rejected before they reach any
// mutating operation.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(ActorIDHeader)
		role := r.Header.Get(ActorRoleHeader)

		if id == "" || (role != auth.RoleRider && role != auth.RoleDriver) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "unauthenticated",
				"message": "actor identity headers missing or malformed",
			})
			return
		}

		ctx := auth.WithActor(r.Context(), auth.Actor{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
