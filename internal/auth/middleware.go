package auth

import (
	"net/http"
	"strings"
)

// Messages shown to ledger clients when a request is turned away.
const (
	MessageSessionRequired = "Sessão expirada ou inexistente. Faça login novamente."
	MessageAccessDenied    = "Perfil sem permissão para esta operação."
)

// Middleware authenticates ledger API requests with a bearer token and
// checks the caller's role against the policy before the handler runs.
type Middleware struct {
	secret []byte
	policy Policy
}

// NewMiddleware constructs the middleware for the token secret and route policy.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{secret: secret, policy: policy}
}

// Wrap guards next. Exempt routes (health, metrics, login) and routes the policy
// does not claim pass straight through; everything else needs a token whose role
// ranks at least as high as the route requires.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, guarded := m.policy.RequiredRole(r)
		if !guarded {
			next.ServeHTTP(w, r)
			return
		}

		identity, ok := m.authenticate(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="assat-psp"`)
			http.Error(w, MessageSessionRequired, http.StatusUnauthorized)
			return
		}
		if !RoleAtLeast(identity.Role, required) {
			http.Error(w, MessageAccessDenied, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity.Role, identity.Subject)))
	})
}

func (m *Middleware) authenticate(r *http.Request) (Identity, bool) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return Identity{}, false
	}
	claims, err := ParseJWT(token, m.secret)
	if err != nil {
		return Identity{}, false
	}
	role, ok := NormalizeRole(claims.Role)
	if !ok || claims.Subject == "" {
		return Identity{}, false
	}
	return Identity{Subject: claims.Subject, Role: role}, true
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
