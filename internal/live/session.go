package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/dishly/dishly/internal/auth"
	"github.com/dishly/dishly/internal/interaction"
	"github.com/dishly/dishly/internal/metrics"
	"github.com/dishly/dishly/internal/playback"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// Session is one browser tab. Its loop goroutine owns the coordinator, the
// players and the cards; every other goroutine talks to it through post.
type Session struct {
	id       string
	platform string
	conn     *websocket.Conn
	backend  Backend
	cfg      Config
	token    string

	ctx    context.Context
	cancel context.CancelFunc

	coordinator *playback.Coordinator
	players     map[string]*livePlayer
	cards       map[string]*card
	notifier    interaction.Notifier
	monitor     *auth.ExpiryMonitor

	inbound chan Inbound
	events  chan func()
	send    chan []byte

	done      chan struct{}
	closeOnce sync.Once
	closeCode int
}

func newSession(id, platform string, conn *websocket.Conn, b Backend, cfg Config, token string, notifier func(*Session) interaction.Notifier) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          id,
		platform:    platform,
		conn:        conn,
		backend:     b,
		cfg:         cfg,
		token:       token,
		ctx:         ctx,
		cancel:      cancel,
		coordinator: playback.NewCoordinator(),
		players:     make(map[string]*livePlayer),
		cards:       make(map[string]*card),
		inbound:     make(chan Inbound),
		events:      make(chan func(), 64),
		send:        make(chan []byte, cfg.OutboundQueue),
		done:        make(chan struct{}),
	}
	s.notifier = notifier(s)

	if token != "" {
		expiresAt, _ := auth.TokenExpiry(token)
		s.monitor = auth.NewExpiryMonitor(expiresAt, cfg.SessionCheckInterval, func() {
			s.post(s.expired)
		})
	}
	return s
}

// run blocks until the connection closes.
func (s *Session) run() {
	go s.writePump()
	go s.readPump()
	if s.monitor != nil {
		s.monitor.Start()
	}
	s.loop()
}

func (s *Session) loop() {
	defer s.teardown()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.inbound:
			s.handle(msg)
		case f := <-s.events:
			f()
		}
	}
}

func (s *Session) handle(msg Inbound) {
	switch msg.Type {
	case TypePlayerMount:
		s.mountPlayer(msg)
	case TypePlayerUnmount:
		s.unmountPlayer(msg.Player)
	case TypePlayerState:
		s.playerState(msg)
	case TypePlayerError:
		s.playerError(msg)
	case TypePlayerVisibility:
		s.playerVisibility(msg)
	case TypeCardMount:
		s.mountCard(msg)
	case TypeCardUnmount:
		s.unmountCard(msg.Card)
	case TypeAction:
		s.action(msg)
	case TypePing:
		s.enqueue(Notice{Type: TypePong})
	default:
		s.sendError("unknown message type")
	}
}

// teardown runs on the loop goroutine once the session is closed.
func (s *Session) teardown() {
	if s.monitor != nil {
		s.monitor.Stop()
	}
	for id := range s.players {
		s.unmountPlayer(id)
	}
	for id := range s.cards {
		s.unmountCard(id)
	}
	s.cancel()
}

// post runs f on the loop. It is safe to call from any goroutine; after the
// session closes f is dropped.
func (s *Session) post(f func()) {
	select {
	case s.events <- f:
	case <-s.done:
	}
}

// AfterFunc schedules f on the loop. A stopped timer never runs f, even if
// it already fired and f is queued.
func (s *Session) AfterFunc(d time.Duration, f func()) func() bool {
	cancelled := false
	t := time.AfterFunc(d, func() {
		s.post(func() {
			if !cancelled {
				f()
			}
		})
	})
	return func() bool {
		cancelled = true
		return t.Stop()
	}
}

func (s *Session) expired() {
	if s.token == "" {
		return
	}
	s.token = ""
	metrics.SessionExpirations.Inc()
	slog.Info("live: session expired", "session", s.id)
	s.enqueue(Notice{Type: TypeSessionExpired})
}

// enqueue queues v for the writer. A client that cannot keep up is
// disconnected.
func (s *Session) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("live: encode message", "session", s.id, "error", err)
		return
	}
	select {
	case <-s.done:
	case s.send <- data:
	default:
		slog.Warn("live: outbound queue full, closing session", "session", s.id)
		s.close()
	}
}

func (s *Session) sendError(text string) {
	s.enqueue(Notice{Type: TypeError, Text: text})
}

func (s *Session) close() {
	s.closeWith(websocket.CloseNormalClosure)
}

// closeWith ends the session; code is sent in the close frame. The first
// call wins.
func (s *Session) closeWith(code int) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		close(s.done)
	})
}

func (s *Session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Error("live: set read deadline", "session", s.id, "error", err)
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("live: unexpected close", "session", s.id, "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.post(func() { s.sendError("invalid message") })
			continue
		}
		select {
		case s.inbound <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case data := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.close()
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("live: write failed", "session", s.id, "error", err)
				s.close()
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.close()
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(s.closeCode, ""))
			return
		}
	}
}
