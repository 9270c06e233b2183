package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	policy := NewDefaultPolicy(nil, nil)
	mw := NewMiddleware(secret, policy)
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/municipalities", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerForbiddenWithdraw(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "viewer")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/municipalities/1/withdrawals", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_OperatorForbiddenRegisterMunicipality(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "operator")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/municipalities", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_OperatorSettlesAndIdentityReachesHandler(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "operator")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	var gotRole Role
	var gotSubject string
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole = RoleFromContext(r.Context())
		gotSubject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/charges/10/settle", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if gotRole != RoleOperator || gotSubject != "user-1" {
		t.Fatalf("identity not propagated: role=%q subject=%q", gotRole, gotSubject)
	}
}

func TestAuthMiddleware_ExemptHealthz(t *testing.T) {
	mw := NewMiddleware([]byte("test-secret"), NewDefaultPolicy([]string{"/healthz"}, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestRequire(t *testing.T) {
	if err := Require(WithIdentity(httptest.NewRequest(http.MethodGet, "/", nil).Context(), RoleViewer, "u"), RoleOperator); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := Require(httptest.NewRequest(http.MethodGet, "/", nil).Context(), RoleViewer); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func mustToken(t *testing.T, secret []byte, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestPolicy_ReconciliationRequiresAdmin(t *testing.T) {
	policy := NewDefaultPolicy(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation", nil)
	role, ok := policy.RequiredRole(req)
	if !ok || role != RoleAdmin {
		t.Fatalf("expected admin, got %q ok=%v", role, ok)
	}
}

func TestAuthMiddleware_RejectionMessages(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, MessageSessionRequired},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, MessageSessionRequired},
		{"unknown role", "Bearer " + mustToken(t, secret, "auditor"), http.StatusUnauthorized, MessageSessionRequired},
		{"wrong secret", "Bearer " + mustToken(t, []byte("other"), "admin"), http.StatusUnauthorized, MessageSessionRequired},
		{"viewer reconciling", "bearer " + mustToken(t, secret, "viewer"), http.StatusForbidden, MessageAccessDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation", nil)
			req.Header.Set("Authorization", tc.header)
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
			if !strings.Contains(resp.Body.String(), tc.message) {
				t.Fatalf("unexpected body %q", resp.Body.String())
			}
		})
	}
}

func TestRoles(t *testing.T) {
	role, ok := NormalizeRole(" Operator ")
	if !ok || role != RoleOperator {
		t.Fatalf("expected operator, got %q ok=%v", role, ok)
	}
	if _, ok := NormalizeRole("auditor"); ok {
		t.Fatalf("unknown role accepted")
	}
	if !RoleAtLeast(RoleAdmin, RoleOperator) || RoleAtLeast(RoleViewer, RoleOperator) {
		t.Fatalf("unexpected role ordering")
	}
	if RoleAtLeast(Role("auditor"), RoleViewer) {
		t.Fatalf("unknown role must satisfy nothing")
	}
}
