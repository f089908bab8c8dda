package server

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dishly/dishly/internal/auth"
	"github.com/dishly/dishly/internal/feed"
	"github.com/dishly/dishly/internal/httputil"
	"github.com/dishly/dishly/internal/live"
	"github.com/dishly/dishly/internal/ratelimit"
	"github.com/dishly/dishly/internal/recipe"
	"github.com/dishly/dishly/internal/registration"
	"github.com/dishly/dishly/internal/storage"
	"github.com/dishly/dishly/internal/validate"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend is everything the routes need from the platform API.
type Backend interface {
	Pinger
	auth.Authenticator
	feed.Backend
	recipe.Backend
	registration.Backend
	live.Backend
}

type Config struct {
	Backend        Backend
	Storage        storage.ObjectStore
	WebFS          fs.FS
	BaseURL        string
	CORSOrigins    []string
	SecureCookies  bool
	MaxUploadBytes int64

	// StorageEndpoint is added to the CSP so the browser may load and
	// upload media directly.
	StorageEndpoint string

	// TrustedProxies may set X-Forwarded-For; everyone else is keyed by
	// their socket address.
	TrustedProxies []netip.Prefix

	AuthRate       float64
	AuthBurst      int
	APIRequests    int
	APIWindow      time.Duration
	APIRateLimited bool

	Live      live.Config
	DraftTTL  time.Duration
	MaxDrafts int
}

type Server struct {
	router        chi.Router
	cfg           Config
	pinger        Pinger
	authHandler   *auth.Handler
	feedHandler   *feed.Handler
	recipeHandler *recipe.Handler
	regHandler    *registration.Handler
	uploadHandler *storage.UploadHandler
	liveHandler   *live.Handler
	authLimiter   *ratelimit.Limiter
	webFS         fs.FS
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(ratelimit.RealIP(cfg.TrustedProxies))
	r.Use(requestID)
	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:         cfg.BaseURL,
		StorageEndpoint: cfg.StorageEndpoint,
	}))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	s := &Server{router: r, cfg: cfg, webFS: cfg.WebFS}

	if cfg.Backend != nil {
		s.pinger = cfg.Backend
		s.authHandler = auth.NewHandler(cfg.Backend, cfg.SecureCookies)
		s.feedHandler = feed.NewHandler(cfg.Backend)
		s.recipeHandler = recipe.NewHandler(cfg.Backend)
		s.regHandler = registration.NewHandler(cfg.Backend, registration.NewStore(cfg.MaxDrafts, cfg.DraftTTL), cfg.SecureCookies)

		liveCfg := cfg.Live
		liveCfg.BaseURL = cfg.BaseURL
		liveCfg.AllowedOrigins = cfg.CORSOrigins
		s.liveHandler = live.NewHandler(cfg.Backend, liveCfg)

		authRate, authBurst := cfg.AuthRate, cfg.AuthBurst
		if authRate <= 0 || authBurst <= 0 {
			authRate, authBurst = 0.5, 5
		}
		s.authLimiter = ratelimit.NewLimiter("auth", authRate, authBurst)
	}
	if cfg.Storage != nil {
		s.uploadHandler = storage.NewUploadHandler(cfg.Storage, cfg.MaxUploadBytes)
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	if s.authLimiter != nil {
		s.authLimiter.Stop()
	}
}

// CloseSessions tells every live session to go away and refuses new ones.
func (s *Server) CloseSessions() {
	if s.liveHandler != nil {
		s.liveHandler.CloseAll()
	}
}

// WaitSessions blocks until closed live sessions have torn down.
func (s *Server) WaitSessions(ctx context.Context) error {
	if s.liveHandler == nil {
		return nil
	}
	return s.liveHandler.Wait(ctx)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/limits", handleLimits)
	s.router.Handle("/metrics", promhttp.Handler())

	if s.authHandler != nil {
		s.router.Route("/api/auth", func(r chi.Router) {
			r.Use(s.authLimiter.Middleware)
			r.Post("/register", s.authHandler.Register)
			r.Post("/login", s.authHandler.Login)
			r.Post("/logout", s.authHandler.Logout)
		})

		// The live socket is long-lived; it stays outside the request limiter.
		s.router.Get("/api/live", s.liveHandler.ServeHTTP)

		s.router.Group(func(r chi.Router) {
			r.Use(s.apiRateLimit())
			s.apiRoutes(r)
		})
	}

	if s.webFS != nil {
		spa := newSPAFileServer(s.webFS)
		s.router.NotFound(spa.ServeHTTP)
	}
}

func (s *Server) apiRoutes(r chi.Router) {
	r.Get("/api/session", s.authHandler.Session)
	r.Get("/api/session/token", s.authHandler.Token)

	r.Group(func(r chi.Router) {
		r.Use(s.authHandler.OptionalToken)
		r.Get("/api/posts", s.feedHandler.List)
		r.Get("/api/recipes", s.recipeHandler.List)
		r.Get("/api/recipes/{id}", s.recipeHandler.Get)
		r.Get("/api/recipes/{id}/share-links", s.recipeHandler.ShareLinks)
		r.Get("/api/recipes/{id}/reviews", s.recipeHandler.Reviews)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authHandler.RequireToken)

		r.Post("/api/posts", s.feedHandler.Create)
		r.Post("/api/posts/{id}/like", s.feedHandler.Like)
		r.Get("/api/posts/{id}/comments", s.feedHandler.Comments)
		r.Post("/api/posts/{id}/comments", s.feedHandler.AddComment)
		r.Post("/api/users/{id}/follow", s.feedHandler.Follow)

		r.Post("/api/recipes", s.recipeHandler.Create)
		r.Post("/api/recipes/{id}/reviews", s.recipeHandler.AddReview)
		r.Post("/api/recipes/{id}/{action}", s.recipeHandler.Toggle)

		if s.uploadHandler != nil {
			r.Post("/api/uploads", s.uploadHandler.Create)
			r.Post("/api/uploads/confirm", s.uploadHandler.Confirm)
		}

		r.Route("/api/registration", func(r chi.Router) {
			r.Post("/", s.regHandler.Start)
			r.Get("/", s.regHandler.Get)
			r.Delete("/", s.regHandler.Delete)
			r.Put("/restaurant", s.regHandler.PutRestaurant)
			r.Put("/branches", s.regHandler.PutBranches)
			r.Put("/documents", s.regHandler.PutDocuments)
			r.Post("/submit", s.regHandler.Submit)
		})
	})
}

func (s *Server) apiRateLimit() func(http.Handler) http.Handler {
	if !s.cfg.APIRateLimited || s.cfg.APIRequests <= 0 || s.cfg.APIWindow <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.cfg.APIRequests,
		s.cfg.APIWindow,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ratelimit.ClientKey(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteError(w, http.StatusTooManyRequests, "too many requests")
		}),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "backend unreachable",
			})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleLimits(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	httputil.WriteJSON(w, http.StatusOK, validate.FieldLimits())
}
