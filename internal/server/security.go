package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dishly/dishly/internal/httputil"
)

type SecurityConfig struct {
	BaseURL         string
	StorageEndpoint string
}

func securityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	strictTransport := strings.HasPrefix(cfg.BaseURL, "https://")

	storageSuffix := ""
	if cfg.StorageEndpoint != "" {
		storageSuffix = " " + cfg.StorageEndpoint
	}
	connectSuffix := storageSuffix
	if origin := socketOrigin(cfg.BaseURL); origin != "" {
		connectSuffix = " " + origin + connectSuffix
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nonce, err := httputil.NewNonce()
			if err != nil {
				slog.Error("generate csp nonce", "error", err)
				httputil.WriteError(w, http.StatusInternalServerError, "internal error")
				return
			}

			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
			w.Header().Set("Permissions-Policy", "camera=(self), microphone=(), geolocation=(self), screen-wake-lock=(self)")

			// blob: media is how the streaming engine feeds segments to the
			// video element.
			csp := fmt.Sprintf(
				"default-src 'self'; img-src 'self' data: blob:%s; media-src 'self' blob:%s; script-src 'self' 'nonce-%s'; style-src 'self' 'nonce-%s'; connect-src 'self'%s; worker-src 'self' blob:; frame-ancestors 'self';",
				storageSuffix, storageSuffix, nonce, nonce, connectSuffix,
			)
			w.Header().Set("Content-Security-Policy", csp)

			if strictTransport {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r.WithContext(httputil.WithNonce(r.Context(), nonce)))
		})
	}
}

// socketOrigin is the ws(s) origin of the live socket. Some browsers do not
// treat it as 'self'.
func socketOrigin(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "https":
		return "wss://" + u.Host
	case "http":
		return "ws://" + u.Host
	}
	return ""
}
