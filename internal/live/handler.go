package live

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mssola/useragent"

	"github.com/dishly/dishly/internal/auth"
	"github.com/dishly/dishly/internal/interaction"
	"github.com/dishly/dishly/internal/metrics"
	"github.com/dishly/dishly/internal/notify"
	"github.com/dishly/dishly/internal/playback"
)

const defaultOutboundQueue = 64

type Config struct {
	// BaseURL is the public origin of the app; its origin is always allowed.
	BaseURL              string
	AllowedOrigins       []string
	SettleDelay          time.Duration
	InitialCheckDelay    time.Duration
	SessionCheckInterval time.Duration
	OutboundQueue        int
}

// Handler upgrades /api/live requests and runs one Session per connection.
type Handler struct {
	backend  Backend
	cfg      Config
	upgrader websocket.Upgrader
	now      func() time.Time

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closing  bool
	wg       sync.WaitGroup
}

func NewHandler(b Backend, cfg Config) *Handler {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = playback.DefaultSettleDelay
	}
	if cfg.InitialCheckDelay <= 0 {
		cfg.InitialCheckDelay = playback.DefaultInitialCheckDelay
	}
	if cfg.SessionCheckInterval <= 0 {
		cfg.SessionCheckInterval = auth.DefaultCheckInterval
	}
	if cfg.OutboundQueue <= 0 {
		cfg.OutboundQueue = defaultOutboundQueue
	}
	h := &Handler{backend: b, cfg: cfg, now: time.Now, sessions: make(map[*Session]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	if token != "" && auth.Expired(token, h.now()) {
		token = ""
	}
	platform := Platform(r.UserAgent())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.Debug("live: upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	s := newSession(id, platform, conn, h.backend, h.cfg, token, func(s *Session) interaction.Notifier {
		return notify.NewMulti(toastNotifier{s}, notify.NewLog("session", id))
	})

	if !h.track(s) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer h.untrack(s)

	metrics.LiveSessions.WithLabelValues(platform).Inc()
	defer metrics.LiveSessions.WithLabelValues(platform).Dec()

	slog.Info("live: session opened", "session", id, "platform", platform, "authenticated", token != "")
	s.run()
	slog.Info("live: session closed", "session", id)
}

func (h *Handler) track(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions[s] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	h.wg.Done()
}

// CloseAll sends every open session a going-away close frame and refuses new
// ones. http.Server.Shutdown does not touch hijacked connections, so this is
// registered with RegisterOnShutdown.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	h.closing = true
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.closeWith(websocket.CloseGoingAway)
	}
	if len(sessions) > 0 {
		slog.Info("live: closing sessions for shutdown", "count", len(sessions))
	}
}

// Wait blocks until every session has torn down or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open reports the number of running sessions.
func (h *Handler) Open() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		slog.Warn("live: connection rejected, missing Origin header")
		return false
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if base, err := url.Parse(h.cfg.BaseURL); err == nil && base.Host != "" && strings.EqualFold(base.Scheme+"://"+base.Host, origin) {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		// "*" is never honored for the socket.
		if allowed != "*" && strings.EqualFold(allowed, origin) {
			return true
		}
	}
	slog.Warn("live: connection rejected from unauthorized origin", "origin", origin)
	return false
}

// Platform labels a client for metrics: bot, mobile or desktop.
func Platform(userAgent string) string {
	if userAgent == "" {
		return "unknown"
	}
	ua := useragent.New(userAgent)
	switch {
	case ua.Bot():
		return "bot"
	case ua.Mobile():
		return "mobile"
	default:
		return "desktop"
	}
}

// toastNotifier shows notifications as toasts in the session's tab.
type toastNotifier struct {
	s *Session
}

func (t toastNotifier) Success(text string) {
	t.s.enqueue(Toast{Type: TypeToast, Level: ToastSuccess, Text: text})
}

func (t toastNotifier) Error(text string) {
	t.s.enqueue(Toast{Type: TypeToast, Level: ToastError, Text: text})
}
