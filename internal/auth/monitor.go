package auth

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCheckInterval is how often the expiry monitor polls.
const DefaultCheckInterval = 2 * time.Second

// ExpiryMonitor polls a session's expiry and runs onExpire once when it
// passes or when Trigger is called, whichever comes first.
type ExpiryMonitor struct {
	interval  time.Duration
	expiresAt time.Time
	now       func() time.Time
	onExpire  func()

	loggedOut atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
}

// NewExpiryMonitor watches expiresAt. A zero expiresAt never expires by time.
func NewExpiryMonitor(expiresAt time.Time, interval time.Duration, onExpire func()) *ExpiryMonitor {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &ExpiryMonitor{
		interval:  interval,
		expiresAt: expiresAt,
		now:       time.Now,
		onExpire:  onExpire,
		stop:      make(chan struct{}),
	}
}

// Start polls in the background until Stop or expiry.
func (m *ExpiryMonitor) Start() {
	m.startOnce.Do(func() {
		go m.run()
	})
}

func (m *ExpiryMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if m.Check() || m.loggedOut.Load() {
				return
			}
		}
	}
}

// Check runs one poll. It reports whether this call ran the logout.
func (m *ExpiryMonitor) Check() bool {
	if m.expiresAt.IsZero() || m.now().Before(m.expiresAt) {
		return false
	}
	return m.Trigger()
}

// Trigger runs the logout sequence unless it already ran.
func (m *ExpiryMonitor) Trigger() bool {
	if !m.loggedOut.CompareAndSwap(false, true) {
		return false
	}
	if m.onExpire != nil {
		m.onExpire()
	}
	return true
}

func (m *ExpiryMonitor) LoggedOut() bool {
	return m.loggedOut.Load()
}

func (m *ExpiryMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}
