package auth_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	raw, err := auth.SignHS256(secret, userID, roles, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	return raw
}

func newServer() http.Handler {
	log := logger.NewWithWriter(io.Discard)
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(auth.UserID(r.Context())))
	})
	return auth.Middleware(auth.NewHS256Verifier(secret), log)(auth.RequireRole("admin", log)(final))
}

func TestMiddleware_AdminAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders/1", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "admin-1", "admin"))
	rr := httptest.NewRecorder()

	newServer().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "admin-1", rr.Body.String())
}

func TestMiddleware_MissingRole(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders/1", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "user-1", "customer"))
	rr := httptest.NewRecorder()

	newServer().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), `"success":false`)
}

func TestMiddleware_RejectsBadTokens(t *testing.T) {
	expired, err := auth.SignHS256(secret, "admin-1", []string{"admin"}, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	require.NoError(t, err)
	forged, err := auth.SignHS256("other-secret", "admin-1", []string{"admin"}, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"expired":        "Bearer " + expired,
		"wrong secret":   "Bearer " + forged,
		"garbage":        "Bearer not.a.jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr := httptest.NewRecorder()
			newServer().ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestHS256Verifier_RealmRoles(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          "kc-user",
		"exp":          time.Now().Add(time.Hour).Unix(),
		"realm_access": map[string]interface{}{"roles": []string{"admin", "offline_access"}},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	id, err := auth.NewHS256Verifier(secret).Verify(t.Context(), raw)
	require.NoError(t, err)
	assert.Equal(t, "kc-user", id.UserID)
	assert.True(t, id.HasRole("admin"))
	assert.False(t, id.HasRole("superuser"))
}
