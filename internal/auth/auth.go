package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dishly/dishly/internal/backend"
	"github.com/dishly/dishly/internal/httputil"
	"github.com/dishly/dishly/internal/validate"
)

type contextKey string

const tokenKey contextKey = "token"

const maxAuthBodyBytes = 16 * 1024

// Authenticator is the slice of the backend that owns accounts.
type Authenticator interface {
	Login(ctx context.Context, creds backend.Credentials) (*backend.AuthResult, error)
	Register(ctx context.Context, reg backend.Registration) (*backend.AuthResult, error)
	Logout(ctx context.Context, token string) error
}

type Handler struct {
	backend Authenticator
	cookies Cookies
	now     func() time.Time
}

func NewHandler(b Authenticator, secureCookies bool) *Handler {
	return &Handler{backend: b, cookies: Cookies{Secure: secureCookies}, now: time.Now}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
}

type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	User          *UserHint  `json:"user,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

type tokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, maxAuthBodyBytes, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if msg := validate.Struct(req); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	result, err := h.backend.Login(r.Context(), backend.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		httputil.WriteBackendError(w, "login", err)
		return
	}
	h.startSession(w, result)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.DecodeJSON(r, maxAuthBodyBytes, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if msg := validate.Struct(req); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	result, err := h.backend.Register(r.Context(), backend.Registration{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		httputil.WriteBackendError(w, "register", err)
		return
	}
	h.startSession(w, result)
}

func (h *Handler) startSession(w http.ResponseWriter, result *backend.AuthResult) {
	if result.Token == "" {
		slog.Error("auth: backend returned no token", "user_id", result.User.ID)
		httputil.WriteError(w, http.StatusBadGateway, "could not start session")
		return
	}

	now := h.now()
	expiresAt, err := TokenExpiry(result.Token)
	if err != nil {
		expiresAt = now.Add(DefaultSessionDuration)
	}
	h.cookies.Set(w, result.Token, result.User, expiresAt, now)

	hint := UserHint{ID: result.User.ID, Name: result.User.Name, Avatar: result.User.Avatar}
	httputil.WriteJSON(w, http.StatusOK, sessionResponse{Authenticated: true, User: &hint, ExpiresAt: &expiresAt})
}

// Logout tells the backend best-effort and always clears the cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := TokenFromRequest(r); token != "" {
		if err := h.backend.Logout(r.Context(), token); err != nil {
			slog.Warn("auth: backend logout failed", "error", err)
		}
	}
	h.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// Session reports whether the browser holds a live session.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r)
	if token == "" || Expired(token, h.now()) {
		if token != "" {
			h.cookies.Clear(w)
		}
		httputil.WriteJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}

	resp := sessionResponse{Authenticated: true}
	if hint, ok := UserFromRequest(r); ok {
		resp.User = &hint
	}
	if exp, err := TokenExpiry(token); err == nil {
		resp.ExpiresAt = &exp
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Token hands the bearer token to same-origin scripts that call the backend
// directly.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r)
	if token == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if Expired(token, h.now()) {
		h.cookies.Clear(w)
		httputil.WriteError(w, http.StatusUnauthorized, "session expired")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	resp := tokenResponse{Token: token}
	if exp, err := TokenExpiry(token); err == nil {
		resp.ExpiresAt = &exp
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// RequireToken rejects requests without a live token cookie and stores the
// token in the request context.
func (h *Handler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		if Expired(token, h.now()) {
			h.cookies.Clear(w)
			httputil.WriteError(w, http.StatusUnauthorized, "session expired")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey, token)))
	})
}

// OptionalToken stores a live token in the context when present. Expired
// tokens are dropped and their cookies cleared.
func (h *Handler) OptionalToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token != "" && Expired(token, h.now()) {
			h.cookies.Clear(w)
			token = ""
		}
		if token != "" {
			r = r.WithContext(context.WithValue(r.Context(), tokenKey, token))
		}
		next.ServeHTTP(w, r)
	})
}

func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}
