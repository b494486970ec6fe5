package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"eddisonso.com/edd-directory/internal/apperr"
	"eddisonso.com/edd-directory/internal/auth"
)

// Issuer is the credential issuer behind the auth routes.
type Issuer interface {
	Register(ctx context.Context, in auth.RegisterInput) (int64, error)
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context, tokenString string) error
}

type AuthHandler struct {
	issuer      Issuer
	ipLimiter   *rateLimiter
	userLimiter *rateLimiter
}

func NewAuthHandler(issuer Issuer) *AuthHandler {
	return &AuthHandler{
		issuer:      issuer,
		ipLimiter:   newRateLimiter(20, 15*time.Minute),
		userLimiter: newRateLimiter(10, 15*time.Minute),
	}
}

// Close stops the rate limiter sweepers.
func (h *AuthHandler) Close() {
	h.ipLimiter.close()
	h.userLimiter.close()
}

func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /healthz", healthz)
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", apperr.ErrInvalidInput)
	}
	return nil
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := h.issuer.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, map[string]any{"message": "user registered", "id": id})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	// Rate limit by IP and username
	for _, check := range []struct {
		rl  *rateLimiter
		key string
	}{
		{h.ipLimiter, clientIP(r)},
		{h.userLimiter, strings.ToLower(strings.TrimSpace(req.Username))},
	} {
		if ok, wait := check.rl.allow(check.key); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, r, apperr.ErrRateLimited)
			return
		}
	}

	res, err := h.issuer.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, map[string]any{"token": res.Token, "expires_at": res.ExpiresAt.Unix()})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.issuer.Logout(r.Context(), bearerToken(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"message": "logged out"})
}
