package playback

import "time"

// VisibleThreshold is the fraction of a player's area that must be on screen
// for it to count as visible.
const VisibleThreshold = 0.5

const (
	DefaultSettleDelay       = 150 * time.Millisecond
	DefaultInitialCheckDelay = 300 * time.Millisecond
)

// Scheduler runs f after d. The returned stop func cancels it and reports
// whether it was still pending.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(d time.Duration, f func()) func() bool

func (s SchedulerFunc) AfterFunc(d time.Duration, f func()) func() bool {
	return s(d, f)
}

type ViewportConfig struct {
	// Autoplay starts playback, muted, whenever the player scrolls into view.
	Autoplay bool
	// ResumeOnView resumes playback on return only if the player was playing
	// when it left the viewport. Ignored when Autoplay is set.
	ResumeOnView      bool
	SettleDelay       time.Duration
	InitialCheckDelay time.Duration
}

// Viewport starts and stops a handle as it crosses VisibleThreshold.
type Viewport struct {
	handle     Handle
	cfg        ViewportConfig
	sched      Scheduler
	visible    bool
	observed   bool
	wasPlaying bool
	stopped    bool
	settle     func() bool
	initial    func() bool
}

func NewViewport(h Handle, cfg ViewportConfig, sched Scheduler) *Viewport {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.InitialCheckDelay <= 0 {
		cfg.InitialCheckDelay = DefaultInitialCheckDelay
	}
	return &Viewport{handle: h, cfg: cfg, sched: sched}
}

// Mount schedules a single check of probe's ratio. Observers only report
// changes, so content that is already on screen at mount needs this.
func (v *Viewport) Mount(probe func() float64) {
	if v.stopped || probe == nil {
		return
	}
	v.initial = v.sched.AfterFunc(v.cfg.InitialCheckDelay, func() {
		v.initial = nil
		v.Observe(probe())
	})
}

// Observe reports the current visible ratio.
func (v *Viewport) Observe(ratio float64) {
	if v.stopped {
		return
	}
	visible := ratio >= VisibleThreshold
	if v.observed && visible == v.visible {
		return
	}
	v.observed = true
	v.visible = visible

	if visible {
		v.enter()
		return
	}
	v.leave()
}

func (v *Viewport) enter() {
	switch {
	case v.cfg.Autoplay:
		v.cancelSettle()
		v.settle = v.sched.AfterFunc(v.cfg.SettleDelay, func() {
			v.settle = nil
			if v.stopped || !v.visible {
				return
			}
			if m, ok := v.handle.(Muter); ok {
				m.SetMuted(true)
			}
			v.handle.Play()
		})
	case v.cfg.ResumeOnView:
		if v.wasPlaying {
			v.wasPlaying = false
			v.handle.Play()
		}
	}
}

func (v *Viewport) leave() {
	v.cancelSettle()
	if v.handle.IsPlaying() {
		v.handle.Pause()
		v.wasPlaying = true
		return
	}
	v.wasPlaying = false
}

// Visible reports the last observed visibility.
func (v *Viewport) Visible() bool {
	return v.visible
}

// Hidden reports whether the last observation put the handle out of view.
// It is false before the first observation.
func (v *Viewport) Hidden() bool {
	return v.observed && !v.visible
}

// WasPlaying reports whether the handle was playing when it left the viewport.
func (v *Viewport) WasPlaying() bool {
	return v.wasPlaying
}

// Stop cancels pending timers. Further observations are ignored.
func (v *Viewport) Stop() {
	if v.stopped {
		return
	}
	v.stopped = true
	v.cancelSettle()
	if v.initial != nil {
		v.initial()
		v.initial = nil
	}
}

func (v *Viewport) cancelSettle() {
	if v.settle != nil {
		v.settle()
		v.settle = nil
	}
}
