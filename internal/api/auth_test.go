package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signTestToken(t *testing.T, secret string, accountID uuid.UUID, role string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": accountID.String(),
		"role":       role,
		"exp":        time.Now().Add(expiresIn).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func authTestHandler(captured *Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, ok := IdentityFrom(r.Context()); ok {
			*captured = identity
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	accountID := uuid.New()
	var captured Identity

	handler := AuthMiddleware(testSecret)(authTestHandler(&captured))

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, testSecret, accountID, "patient", time.Hour))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, accountID, captured.AccountID)
	assert.Equal(t, "patient", captured.Role)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	var captured Identity
	handler := AuthMiddleware(testSecret)(authTestHandler(&captured))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not a bearer token", "Basic abc123"},
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + signTestToken(t, "other-secret", uuid.New(), "patient", time.Hour)},
		{"expired token", "Bearer " + signTestToken(t, testSecret, uuid.New(), "patient", -time.Hour)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, uuid.Nil, captured.AccountID, "identity must not leak into context")
		})
	}
}

func TestAuthMiddlewareRejectsNonHMAC(t *testing.T) {
	// alg=none tokens must not pass even with a well-formed payload.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"account_id": uuid.New().String(),
		"role":       "admin",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	var captured Identity
	handler := AuthMiddleware(testSecret)(authTestHandler(&captured))

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	accountID := uuid.New()

	var captured Identity
	chain := AuthMiddleware(testSecret)(RequireRole("doctor", "admin")(authTestHandler(&captured)))

	req := httptest.NewRequest(http.MethodPost, "/availability", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, testSecret, accountID, "patient", time.Hour))
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/availability", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, testSecret, accountID, "doctor", time.Hour))
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Without the auth middleware in front there is no identity at all.
	bare := RequireRole("doctor")(authTestHandler(&captured))
	req = httptest.NewRequest(http.MethodPost, "/availability", nil)
	rec = httptest.NewRecorder()
	bare.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
