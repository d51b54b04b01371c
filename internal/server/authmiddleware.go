package server

import (
	"context"
	"net/http"

	"github.com/ledgerpipe/ledgerpipe/internal/auth"
)

// ActorContextKey is the context key for the authenticated actor name.
const ActorContextKey contextKey = "actor"

// AuthMiddleware validates API keys and injects the actor name into the
// request context. The API key is extracted from the Authorization header
// (Bearer token format).
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("Authorization")
			if apiKey == "" {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			// Remove "Bearer " prefix if present
			if len(apiKey) > 7 && apiKey[:7] == "Bearer " {
				apiKey = apiKey[7:]
			}

			actor, err := authenticator.ValidateAPIKey(apiKey)
			if err != nil {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ActorContextKey, actor)
			AddLogField(ctx, "actor", actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetActor retrieves the authenticated actor name from context.
// Returns an empty string if no actor is set.
func GetActor(ctx context.Context) string {
	if actor, ok := ctx.Value(ActorContextKey).(string); ok {
		return actor
	}
	return ""
}
