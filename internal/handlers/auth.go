package handlers

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/loomline/api/internal/platform/auth"
	"github.com/loomline/api/internal/platform/httpx"
)

const (
	maxLoginBodySize       = 4 * 1024
	loginAttemptsPerWindow = 10
	loginWindow            = time.Minute
)

// AuthHandlers issues admin access tokens. There is a single back-office
// principal configured through the environment; the stored credential is the
// hex SHA-256 of the password, never the password itself.
type AuthHandlers struct {
	authn        *auth.Authenticator
	username     string
	passwordHash string
	limiter      *fixedWindowLimiter
}

// NewAuthHandlers constructs login handlers for the configured admin account.
func NewAuthHandlers(authn *auth.Authenticator, username, passwordHash string) *AuthHandlers {
	return &AuthHandlers{
		authn:        authn,
		username:     strings.TrimSpace(username),
		passwordHash: strings.ToLower(strings.TrimSpace(passwordHash)),
		limiter:      newFixedWindowLimiter(loginAttemptsPerWindow, loginWindow, nil),
	}
}

// Routes registers the /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/login", h.login)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.authn == nil || h.username == "" || h.passwordHash == "" {
		httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "admin authentication is not configured", http.StatusServiceUnavailable))
		return
	}

	if !h.limiter.allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("too_many_attempts", "too many login attempts, slow down", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxLoginBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req loginRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	if !h.credentialsMatch(req.Username, req.Password) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "invalid username or password", http.StatusUnauthorized))
		return
	}

	token, expires, err := h.authn.IssueToken(h.username, h.username, []string{auth.RoleAdmin})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_error", "failed to issue token", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: formatTime(expires),
	})
}

func (h *AuthHandlers) credentialsMatch(username, password string) bool {
	sum := sha256.Sum256([]byte(password))
	hashed := hex.EncodeToString(sum[:])

	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(h.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(hashed), []byte(h.passwordHash)) == 1
	return userOK && passOK
}

func clientKey(r *http.Request) string {
	if ip := strings.TrimSpace(r.RemoteAddr); ip != "" {
		if host, _, found := strings.Cut(ip, ":"); found && host != "" {
			return host
		}
		return ip
	}
	return middleware.GetReqID(r.Context())
}
