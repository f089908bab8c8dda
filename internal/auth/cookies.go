package auth

import (
	"encoding/base64"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dishly/dishly/internal/backend"
)

const (
	TokenCookie = "dishly_token"
	UserCookie  = "dishly_user"

	// DefaultSessionDuration sizes cookies for tokens without an exp claim.
	DefaultSessionDuration = 24 * time.Hour
)

// UserHint is the readable, non-authoritative profile kept in a cookie so the
// shell can render the signed-in chrome before any API call.
type UserHint struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type Cookies struct {
	Secure bool
}

// Set stores the bearer token (HttpOnly) and the user hint until expiresAt.
func (c Cookies) Set(w http.ResponseWriter, token string, user backend.User, expiresAt time.Time, now time.Time) {
	maxAge := int(expiresAt.Sub(now) / time.Second)
	if expiresAt.IsZero() {
		maxAge = int(DefaultSessionDuration / time.Second)
	}
	if maxAge <= 0 {
		c.Clear(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})

	hint, err := json.Marshal(UserHint{ID: user.ID, Name: user.Name, Avatar: user.Avatar})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     UserCookie,
		Value:    base64.RawURLEncoding.EncodeToString(hint),
		Path:     "/",
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (c Cookies) Clear(w http.ResponseWriter) {
	for _, name := range []string{TokenCookie, UserCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: name == TokenCookie,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}

// TokenFromRequest returns the bearer token cookie, or "".
func TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(TokenCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// UserFromRequest decodes the user hint cookie.
func UserFromRequest(r *http.Request) (UserHint, bool) {
	cookie, err := r.Cookie(UserCookie)
	if err != nil || cookie.Value == "" {
		return UserHint{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return UserHint{}, false
	}
	var hint UserHint
	if err := json.Unmarshal(raw, &hint); err != nil {
		return UserHint{}, false
	}
	return hint, true
}
