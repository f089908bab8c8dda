package live

import (
	"fmt"

	"github.com/dishly/dishly/internal/metrics"
	"github.com/dishly/dishly/internal/playback"
)

// remoteMedia is a media engine running in the browser. Commands are sent
// over the socket; the playing state is what the client last reported.
// Pause takes effect locally at once since browsers pause synchronously.
// A play command counts as playing until the client reports back, so a
// player that scrolls away or is preempted before confirming still gets
// its pause.
type remoteMedia struct {
	player  string
	engine  string
	send    func(v any)
	paused  bool
	pending bool
	muted   bool
}

func newRemoteMedia(player, engine string, send func(v any)) *remoteMedia {
	return &remoteMedia{player: player, engine: engine, send: send, paused: true}
}

func (m *remoteMedia) Play() error {
	m.pending = true
	m.command(CommandPlay)
	return nil
}

func (m *remoteMedia) Pause() {
	m.paused = true
	m.pending = false
	m.command(CommandPause)
}

func (m *remoteMedia) Paused() bool {
	return m.paused && !m.pending
}

// report records the state the client last confirmed.
func (m *remoteMedia) report(playing bool) {
	m.paused = !playing
	m.pending = false
}

func (m *remoteMedia) SetMuted(muted bool) {
	m.muted = muted
}

func (m *remoteMedia) command(cmd string) {
	m.send(PlayerCommand{
		Type:    TypePlayerCommand,
		Player:  m.player,
		Engine:  m.engine,
		Command: cmd,
		Muted:   m.muted,
	})
}

// livePlayer ties a playback.Player to its viewport controller and the
// engines it may run on.
type livePlayer struct {
	id       string
	player   *playback.Player
	viewport *playback.Viewport
	stream   *remoteMedia
	native   *remoteMedia
	ratio    float64
}

func (s *Session) mountPlayer(msg Inbound) {
	if msg.Player == "" {
		s.sendError("player id is required")
		return
	}
	if _, ok := s.players[msg.Player]; ok {
		s.unmountPlayer(msg.Player)
	}

	lp := &livePlayer{id: msg.Player}
	lp.stream = newRemoteMedia(msg.Player, EngineStream, s.enqueue)
	lp.player = playback.NewPlayer(playback.NewStreamHandle(lp.stream), func() playback.Handle {
		lp.native = newRemoteMedia(msg.Player, EngineNative, s.enqueue)
		lp.native.muted = lp.stream.muted
		return playback.NewNativeHandle(lp.native)
	})
	lp.viewport = playback.NewViewport(lp.player, playback.ViewportConfig{
		Autoplay:          msg.Autoplay,
		ResumeOnView:      msg.Resume,
		SettleDelay:       s.cfg.SettleDelay,
		InitialCheckDelay: s.cfg.InitialCheckDelay,
	}, s)
	if msg.Ratio != nil {
		lp.ratio = *msg.Ratio
	}

	s.players[msg.Player] = lp
	s.coordinator.Register(lp.player)
	lp.viewport.Mount(func() float64 { return lp.ratio })
}

// unmountPlayer is the single teardown path for a player: explicit unmount,
// remount under the same id and session close all go through it.
func (s *Session) unmountPlayer(id string) {
	lp, ok := s.players[id]
	if !ok {
		return
	}
	lp.viewport.Stop()
	s.coordinator.Unregister(lp.player)
	delete(s.players, id)
}

func (s *Session) playerState(msg Inbound) {
	lp, ok := s.players[msg.Player]
	if !ok {
		return
	}
	media := lp.stream
	if lp.player.FellBack() {
		media = lp.native
	}
	media.report(msg.Playing)
	if !msg.Playing {
		return
	}
	// A confirmation can arrive after the player left the viewport.
	if lp.viewport.Hidden() {
		lp.player.Pause()
		return
	}
	if n := s.coordinator.OnPlay(lp.player); n > 0 {
		metrics.PlaybackPreemptions.Add(float64(n))
	}
}

func (s *Session) playerError(msg Inbound) {
	lp, ok := s.players[msg.Player]
	if !ok {
		return
	}
	err := playback.ErrMediaLoad
	if msg.Message != "" {
		err = fmt.Errorf("%w: %s", playback.ErrMediaLoad, msg.Message)
	}
	if !lp.player.Fail(err) {
		return
	}
	metrics.PlayerFallbacks.Inc()
	s.enqueue(PlayerFallback{Type: TypePlayerFallback, Player: lp.id})
}

func (s *Session) playerVisibility(msg Inbound) {
	lp, ok := s.players[msg.Player]
	if !ok || msg.Ratio == nil {
		return
	}
	lp.ratio = *msg.Ratio
	lp.viewport.Observe(lp.ratio)
}
