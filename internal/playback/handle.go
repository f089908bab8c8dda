package playback

import (
	"errors"
	"log/slog"
)

// ErrMediaLoad marks a fatal media engine error. A player that reports it
// falls back to the native element for the rest of its life.
var ErrMediaLoad = errors.New("media load failed")

// Handle is one mounted, playable media element.
//
// Pause is a no-op when already paused. Play is a no-op when already playing
// and may take effect asynchronously; autoplay rejections are swallowed by the
// implementation. Handles are compared by identity, so implementations are
// pointers.
type Handle interface {
	Play()
	Pause()
	IsPlaying() bool
}

// Muter is implemented by handles that can toggle audio.
type Muter interface {
	SetMuted(muted bool)
}

// Media is the contract of an underlying media engine.
type Media interface {
	Play() error
	Pause()
	Paused() bool
}

// ErrAutoplayBlocked is returned by Media.Play when the browser refuses to
// start audible playback without a user gesture.
var ErrAutoplayBlocked = errors.New("autoplay blocked")

type mutableMedia interface {
	SetMuted(muted bool)
}

// mediaHandle holds what both engine adapters share.
type mediaHandle struct {
	media Media
}

func (h *mediaHandle) Pause() {
	if h.media.Paused() {
		return
	}
	h.media.Pause()
}

func (h *mediaHandle) IsPlaying() bool {
	return !h.media.Paused()
}

func (h *mediaHandle) SetMuted(muted bool) {
	if m, ok := h.media.(mutableMedia); ok {
		m.SetMuted(muted)
	}
}

// StreamHandle adapts the full-featured streaming engine. A rejected play is
// swallowed; a play that fails with ErrMediaLoad is reported to the owning
// Player so it can fall back.
type StreamHandle struct {
	mediaHandle
	onFatal func(error)
}

func NewStreamHandle(m Media) *StreamHandle {
	return &StreamHandle{mediaHandle: mediaHandle{media: m}}
}

func (h *StreamHandle) Play() {
	if !h.media.Paused() {
		return
	}
	err := h.media.Play()
	switch {
	case err == nil:
	case errors.Is(err, ErrMediaLoad) && h.onFatal != nil:
		h.onFatal(err)
	default:
		slog.Debug("playback: stream play rejected", "error", err)
	}
}

func (h *StreamHandle) setFatalHandler(f func(error)) {
	h.onFatal = f
}

// NativeHandle adapts the basic native media element used as a fallback.
// When the browser blocks audible autoplay it retries once muted, which
// browsers always allow.
type NativeHandle struct {
	mediaHandle
}

func NewNativeHandle(m Media) *NativeHandle {
	return &NativeHandle{mediaHandle: mediaHandle{media: m}}
}

func (h *NativeHandle) Play() {
	if !h.media.Paused() {
		return
	}
	err := h.media.Play()
	if err == nil {
		return
	}
	m, ok := h.media.(mutableMedia)
	if !ok || !errors.Is(err, ErrAutoplayBlocked) {
		slog.Debug("playback: native play rejected", "error", err)
		return
	}
	m.SetMuted(true)
	if err := h.media.Play(); err != nil {
		slog.Debug("playback: native muted play rejected", "error", err)
	}
}

type fatalReporter interface {
	setFatalHandler(f func(error))
}

// Player is the handle registered with a Coordinator. It delegates to the
// active engine adapter and swaps to the native fallback after a fatal error
// while keeping its identity.
type Player struct {
	active   Handle
	fallback func() Handle
	failed   bool
}

// NewPlayer wraps primary. fallback builds the native adapter on first
// failure. A fatal error raised by primary while starting switches to the
// fallback and starts it instead.
func NewPlayer(primary Handle, fallback func() Handle) *Player {
	p := &Player{active: primary, fallback: fallback}
	if r, ok := primary.(fatalReporter); ok {
		r.setFatalHandler(func(err error) {
			if p.Fail(err) {
				p.active.Play()
			}
		})
	}
	return p
}

func (p *Player) Play()           { p.active.Play() }
func (p *Player) Pause()          { p.active.Pause() }
func (p *Player) IsPlaying() bool { return p.active.IsPlaying() }

func (p *Player) SetMuted(muted bool) {
	if m, ok := p.active.(Muter); ok {
		m.SetMuted(muted)
	}
}

// FellBack reports whether the player runs on the native fallback.
func (p *Player) FellBack() bool {
	return p.failed
}

// Fail switches to the native fallback. It reports whether a switch happened;
// failures after the first are ignored.
func (p *Player) Fail(err error) bool {
	if p.failed || p.fallback == nil {
		return false
	}
	slog.Warn("playback: engine failed, using native fallback", "error", err)
	p.failed = true
	p.active = p.fallback()
	return true
}
