package interaction

import (
	"context"
	"log/slog"
)

// Kind names an optimistic action.
type Kind string

const (
	Like   Kind = "like"
	Save   Kind = "save"
	Hide   Kind = "hide"
	Follow Kind = "follow"
)

// Notifier surfaces action outcomes to the user. Calls are fire-and-forget.
type Notifier interface {
	Success(text string)
	Error(text string)
}

// Mutation performs the remote change and returns the authoritative value.
type Mutation[T any] func(ctx context.Context, entityID, token string) (T, error)

// Dispatcher runs f on the goroutine that owns the controller. A controller
// without one runs its mutation inline and blocks Invoke until it settles.
type Dispatcher func(f func())

// Config wires a Controller to its collaborators.
type Config[T any] struct {
	Kind     Kind
	Initial  T
	Mutate   Mutation[T]
	Notifier Notifier
	Dispatch Dispatcher
	// OnChange receives every displayed value: optimistic, confirmed or restored.
	OnChange func(value T, pending bool)
	// OnSettled receives the authoritative value after a successful mutation.
	OnSettled func(value T)
	// OnOutcome is called once per settled mutation with its error, if any.
	OnOutcome func(kind Kind, err error)
}

// Controller applies an action locally, confirms it remotely and either
// adopts the server's value or restores the previous one.
//
// All methods must be called from the goroutine Dispatch runs on.
type Controller[T any] struct {
	cfg      Config[T]
	value    T
	inFlight bool
	closed   bool
}

func NewController[T any](cfg Config[T]) *Controller[T] {
	return &Controller[T]{cfg: cfg, value: cfg.Initial}
}

func (c *Controller[T]) Value() T       { return c.value }
func (c *Controller[T]) InFlight() bool { return c.inFlight }
func (c *Controller[T]) Kind() Kind     { return c.cfg.Kind }

// Reset replaces the displayed value with a fresh server value, for example
// when a sibling view pushes an update. It is ignored while a mutation is in
// flight.
func (c *Controller[T]) Reset(value T) {
	if c.inFlight || c.closed {
		return
	}
	c.value = value
	c.changed(false)
}

// Close detaches the controller; pending settlements are dropped.
func (c *Controller[T]) Close() {
	c.closed = true
}

// Invoke runs the action. next derives the optimistic value from the current
// one. ErrInFlight means the call was dropped because the same action is
// still pending; it is not reported to the user.
func (c *Controller[T]) Invoke(ctx context.Context, entityID, token string, next func(prev T) T) error {
	if c.closed {
		return nil
	}
	if entityID == "" {
		c.notifyError(ErrMissingIdentifier)
		return ErrMissingIdentifier
	}
	if token == "" {
		c.notifyError(ErrUnauthenticated)
		return ErrUnauthenticated
	}
	if c.inFlight {
		return ErrInFlight
	}

	previous := c.value
	c.value = next(previous)
	c.inFlight = true
	c.changed(true)

	if c.cfg.Dispatch == nil {
		value, err := c.cfg.Mutate(ctx, entityID, token)
		c.settle(previous, value, err)
		return nil
	}

	go func() {
		value, err := c.cfg.Mutate(ctx, entityID, token)
		c.cfg.Dispatch(func() {
			c.settle(previous, value, err)
		})
	}()
	return nil
}

func (c *Controller[T]) settle(previous, value T, err error) {
	c.inFlight = false
	if c.cfg.OnOutcome != nil {
		c.cfg.OnOutcome(c.cfg.Kind, err)
	}
	if c.closed {
		return
	}

	if err != nil {
		slog.Debug("interaction: rolling back", "kind", c.cfg.Kind, "error", err)
		c.value = previous
		c.changed(false)
		c.notifyError(err)
		return
	}

	c.value = value
	c.changed(false)
	if c.cfg.OnSettled != nil {
		c.cfg.OnSettled(value)
	}
}

func (c *Controller[T]) changed(pending bool) {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(c.value, pending)
	}
}

func (c *Controller[T]) notifyError(err error) {
	if c.cfg.Notifier != nil {
		c.cfg.Notifier.Error(UserMessage(err))
	}
}
