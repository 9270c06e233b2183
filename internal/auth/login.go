package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"assat-psp/internal/observability/metrics"
)

// LoginHandler exchanges credentials for a bearer token.
type LoginHandler struct {
	store  CredentialStore
	secret []byte
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time
}

// NewLoginHandler constructs a LoginHandler.
func NewLoginHandler(store CredentialStore, secret []byte, ttl time.Duration, logger *log.Logger) (*LoginHandler, error) {
	if store == nil {
		return nil, errors.New("login handler: nil credential store")
	}
	if len(secret) == 0 {
		return nil, errors.New("login handler: empty secret")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LoginHandler{store: store, secret: secret, ttl: ttl, logger: logger, now: time.Now}, nil
}

// ServeHTTP handles POST /api/v1/auth/login.
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	identity, err := h.store.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		metrics.IncLogin(metrics.ResultRejected)
		h.logger.Printf("auth: login rejected user=%q", req.Username)
		http.Error(w, "Incorreto", http.StatusUnauthorized)
		return
	}
	token, expires, err := IssueJWT(h.secret, identity.Subject, identity.Role, h.ttl, h.now())
	if err != nil {
		metrics.IncLogin(metrics.ResultError)
		h.logger.Printf("auth: issue token error: %v", err)
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}
	metrics.IncLogin(metrics.ResultSuccess)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token":      token,
		"expires_at": expires.Format(time.RFC3339),
		"role":       identity.Role,
	})
}
