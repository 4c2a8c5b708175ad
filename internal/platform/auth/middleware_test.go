package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	code, _ := body["error"].(string)
	return code
}

func TestRequireFirebaseAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		verifier   *stubTokenVerifier
		roles      []string
		wantStatus int
		wantCode   string
		wantRoles  []string
	}{
		{
			name:   "staff token passes back office gate",
			header: "Bearer token-1",
			verifier: &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-1", Claims: map[string]any{
				"role":  []any{"staff", "STAFF", "admin"},
				"email": "ops@example.com",
			}}},
			roles:      []string{RoleAdmin, RoleStaff},
			wantStatus: http.StatusOK,
			wantRoles:  []string{"staff", "admin"},
		},
		{
			name:       "missing role claim falls back to user",
			header:     "bearer token-2",
			verifier:   &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-2", Claims: map[string]any{}}},
			wantStatus: http.StatusOK,
			wantRoles:  []string{RoleUser},
		},
		{
			name:       "user denied admin route",
			header:     "Bearer token-3",
			verifier:   &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-3", Claims: map[string]any{"role": "user"}}},
			roles:      []string{RoleAdmin},
			wantStatus: http.StatusForbidden,
			wantCode:   "forbidden",
		},
		{
			name:       "missing header",
			verifier:   &stubTokenVerifier{},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthenticated",
		},
		{
			name:       "expired token",
			header:     "Bearer expired",
			verifier:   &stubTokenVerifier{err: ErrTokenExpired},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "token_expired",
		},
		{
			name:       "invalid token",
			header:     "Bearer nope",
			verifier:   &stubTokenVerifier{err: errors.New("bad signature")},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_token",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen *Identity
			authn := NewAuthenticator(tc.verifier)
			handler := authn.RequireFirebaseAuth(tc.roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = IdentityFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantCode != "" {
				assert.Equal(t, tc.wantCode, decodeErrorCode(t, rr))
				return
			}
			require.NotNil(t, seen)
			assert.Equal(t, tc.wantRoles, seen.Roles)
		})
	}
}

func TestRequireFirebaseAuthInvokesIdentityHook(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-9", Claims: map[string]any{}}}
	var hooked string
	authn := NewAuthenticator(verifier, WithIdentityHook(func(ctx context.Context) {
		if identity, ok := IdentityFromContext(ctx); ok {
			hooked = identity.UID
		}
	}))

	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "abc", verifier.received)
	assert.Equal(t, "uid-9", hooked)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	staff := httptest.NewRequest(http.MethodDelete, "/admin/orders", nil)
	staff = staff.WithContext(WithIdentity(staff.Context(), &Identity{UID: "s", Roles: []string{RoleStaff}}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, staff)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	admin := httptest.NewRequest(http.MethodDelete, "/admin/orders", nil)
	admin = admin.WithContext(WithIdentity(admin.Context(), &Identity{UID: "a", Roles: []string{"Admin"}}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, admin)
	assert.Equal(t, http.StatusOK, rr.Code)

	anonymous := httptest.NewRequest(http.MethodDelete, "/admin/orders", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, anonymous)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestIdentityIsBackOffice(t *testing.T) {
	assert.True(t, (&Identity{Roles: []string{"staff"}}).IsBackOffice())
	assert.True(t, (&Identity{Roles: []string{"admin"}}).IsBackOffice())
	assert.False(t, (&Identity{Roles: []string{"user"}}).IsBackOffice())
	var nilIdentity *Identity
	assert.False(t, nilIdentity.IsBackOffice())
}
