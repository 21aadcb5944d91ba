package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
)

// Context keys for middleware
type contextKey string

const (
	RequestIDKey   contextKey = "request_id"
	WorkspaceIDKey contextKey = "workspace_id"
)

// WorkspaceClaim is the JWT claim carrying the caller's workspace.
const WorkspaceClaim = "workspace_id"

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request ID set by RequestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// WorkspaceMiddleware verifies the bearer JWT and scopes the request to the
// workspace named in its workspace_id claim.
func WorkspaceMiddleware(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		scoped := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				writeJSONError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			workspaceID, err := workspaceFromClaims(claims)
			if err != nil {
				slog.Warn("Rejecting token without workspace", "request_id", RequestIDFromContext(r.Context()), "error", err)
				writeJSONError(w, r, http.StatusForbidden, "forbidden", err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), WorkspaceIDKey, workspaceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
		return jwtauth.Verifier(ja)(jwtauth.Authenticator(scoped))
	}
}

// WorkspaceFromContext returns the workspace the request is scoped to, if any.
func WorkspaceFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(WorkspaceIDKey).(int64)
	return id, ok
}

func workspaceFromClaims(claims map[string]interface{}) (int64, error) {
	raw, ok := claims[WorkspaceClaim]
	if !ok {
		return 0, errors.New("token has no workspace_id claim")
	}
	var id int64
	switch v := raw.(type) {
	case float64:
		id = int64(v)
	case int64:
		id = v
	case int:
		id = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid workspace_id claim: %w", err)
		}
		id = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid workspace_id claim: %w", err)
		}
		id = n
	default:
		return 0, fmt.Errorf("invalid workspace_id claim type %T", raw)
	}
	if id <= 0 {
		return 0, errors.New("workspace_id claim must be positive")
	}
	return id, nil
}
