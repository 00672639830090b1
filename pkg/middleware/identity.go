package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/chris/neighborhood-packs/pkg/api"
)

// UserIDHeader carries the caller identity set by the upstream identity provider.
const UserIDHeader = "X-User-ID"

// userIDQuery is accepted on websocket upgrades, where browsers cannot set headers.
const userIDQuery = "user_id"

type userIDKey struct{}

// Identity rejects requests without a caller identity with 401 and stores the
// identity on the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" && isUpgrade(r) {
			userID = strings.TrimSpace(r.URL.Query().Get(userIDQuery))
		}
		if userID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(api.Error{Error: "missing caller identity", Code: "unauthenticated"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the caller identity, or "" outside Identity.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
