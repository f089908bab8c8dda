package playback

// Coordinator keeps at most one registered handle playing.
//
// A Coordinator is not safe for concurrent use. It belongs to one runtime
// (a live session) and is only touched from that runtime's goroutine.
type Coordinator struct {
	active  map[Handle]struct{}
	current Handle
}

func NewCoordinator() *Coordinator {
	return &Coordinator{active: make(map[Handle]struct{})}
}

func (c *Coordinator) Register(h Handle) {
	if h == nil {
		return
	}
	c.active[h] = struct{}{}
}

func (c *Coordinator) Unregister(h Handle) {
	if h == nil {
		return
	}
	delete(c.active, h)
	if c.current == h {
		c.current = nil
	}
}

// OnPlay is called when h starts playing. Every other registered handle that
// reports playing is paused before OnPlay returns. The check reads live state,
// so handles paused behind the coordinator's back are handled correctly.
// It returns the number of handles paused.
func (c *Coordinator) OnPlay(h Handle) int {
	paused := 0
	for other := range c.active {
		if other == h {
			continue
		}
		if other.IsPlaying() {
			other.Pause()
			paused++
		}
	}
	c.current = h
	return paused
}

// Current returns the handle that most recently started playing, or nil.
func (c *Coordinator) Current() Handle {
	return c.current
}

func (c *Coordinator) Registered(h Handle) bool {
	_, ok := c.active[h]
	return ok
}

func (c *Coordinator) Len() int {
	return len(c.active)
}
