package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentity(t *testing.T) {
	var seen string
	h := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/packs", nil)
		req.Header.Set(UserIDHeader, " alice ")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "alice", seen)
	})

	t.Run("Missing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/packs", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"error":"missing caller identity","code":"unauthenticated"}`, rr.Body.String())
	})

	t.Run("Query Only On Upgrade", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/packs?user_id=bob", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		req := httptest.NewRequest(http.MethodGet, "/ws?user_id=bob", nil)
		req.Header.Set("Upgrade", "websocket")
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "bob", seen)
	})
}
