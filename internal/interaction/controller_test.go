package interaction

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type likeState struct {
	Liked bool
	Count int
}

func toggleLike(prev likeState) likeState {
	if prev.Liked {
		return likeState{Liked: false, Count: prev.Count - 1}
	}
	return likeState{Liked: true, Count: prev.Count + 1}
}

type recordingNotifier struct {
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(text string) { n.successes = append(n.successes, text) }
func (n *recordingNotifier) Error(text string)   { n.errors = append(n.errors, text) }

// loop stands in for the owning goroutine: settlements queue up until run.
type loop struct {
	queue chan func()
}

func newLoop() *loop {
	return &loop{queue: make(chan func(), 16)}
}

func (l *loop) dispatch(f func()) { l.queue <- f }

func (l *loop) runOne(t *testing.T) {
	t.Helper()
	select {
	case f := <-l.queue:
		f()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settlement")
	}
}

func TestController_ConvergesToAuthoritativeValue(t *testing.T) {
	l := newLoop()
	var displayed []likeState
	var settled likeState
	c := NewController(Config[likeState]{
		Kind:     Like,
		Initial:  likeState{Liked: false, Count: 10},
		Notifier: &recordingNotifier{},
		Dispatch: l.dispatch,
		Mutate: func(ctx context.Context, id, token string) (likeState, error) {
			return likeState{Liked: true, Count: 10}, nil
		},
		OnChange:  func(v likeState, pending bool) { displayed = append(displayed, v) },
		OnSettled: func(v likeState) { settled = v },
	})

	if err := c.Invoke(context.Background(), "recipe-1", "tok", toggleLike); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if diff := cmp.Diff(likeState{Liked: true, Count: 11}, c.Value()); diff != "" {
		t.Errorf("optimistic value mismatch (-want +got):\n%s", diff)
	}
	if !c.InFlight() {
		t.Error("expected controller to be in flight")
	}

	l.runOne(t)

	want := likeState{Liked: true, Count: 10}
	if diff := cmp.Diff(want, c.Value()); diff != "" {
		t.Errorf("settled value mismatch (-want +got):\n%s", diff)
	}
	if settled != want {
		t.Errorf("OnSettled got %+v, want %+v", settled, want)
	}
	wantDisplayed := []likeState{{Liked: true, Count: 11}, {Liked: true, Count: 10}}
	if diff := cmp.Diff(wantDisplayed, displayed); diff != "" {
		t.Errorf("displayed sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestController_RollsBackOnRemoteFailure(t *testing.T) {
	l := newLoop()
	n := &recordingNotifier{}
	initial := likeState{Liked: true, Count: 3}
	c := NewController(Config[likeState]{
		Kind:     Like,
		Initial:  initial,
		Notifier: n,
		Dispatch: l.dispatch,
		Mutate: func(ctx context.Context, id, token string) (likeState, error) {
			return likeState{}, &RemoteError{Status: 422, Message: "Post was removed"}
		},
	})

	_ = c.Invoke(context.Background(), "post-1", "tok", toggleLike)
	l.runOne(t)

	if c.Value() != initial {
		t.Errorf("value = %+v, want %+v", c.Value(), initial)
	}
	if diff := cmp.Diff([]string{"Post was removed"}, n.errors); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestController_RollsBackOnTransportErrorWithGenericMessage(t *testing.T) {
	l := newLoop()
	n := &recordingNotifier{}
	c := NewController(Config[bool]{
		Kind:     Save,
		Initial:  false,
		Notifier: n,
		Dispatch: l.dispatch,
		Mutate: func(ctx context.Context, id, token string) (bool, error) {
			return false, &TransportError{Op: "toggle save", Err: errors.New("connection reset")}
		},
	})

	_ = c.Invoke(context.Background(), "recipe-1", "tok", func(prev bool) bool { return !prev })
	if !c.Value() {
		t.Fatal("expected optimistic save")
	}
	l.runOne(t)

	if c.Value() {
		t.Error("expected save to roll back")
	}
	if len(n.errors) != 1 || n.errors[0] != GenericFailureMessage {
		t.Errorf("errors = %v, want [%q]", n.errors, GenericFailureMessage)
	}
}

func TestController_SuppressesDuplicateWhileInFlight(t *testing.T) {
	l := newLoop()
	var calls atomic.Int32
	release := make(chan struct{})
	c := NewController(Config[bool]{
		Kind:     Hide,
		Dispatch: l.dispatch,
		Mutate: func(ctx context.Context, id, token string) (bool, error) {
			calls.Add(1)
			<-release
			return true, nil
		},
	})

	if err := c.Invoke(context.Background(), "recipe-1", "tok", func(bool) bool { return true }); err != nil {
		t.Fatalf("first Invoke: %v", err)
	}
	err := c.Invoke(context.Background(), "recipe-1", "tok", func(bool) bool { return true })
	if !errors.Is(err, ErrInFlight) {
		t.Errorf("second Invoke err = %v, want ErrInFlight", err)
	}

	close(release)
	l.runOne(t)

	if calls.Load() != 1 {
		t.Errorf("mutation called %d times, want 1", calls.Load())
	}
	if c.InFlight() {
		t.Error("expected controller to be idle after settlement")
	}
}

func TestController_RejectsMissingInputsWithoutCallingRemote(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		token   string
		wantErr error
		wantMsg string
	}{
		{"missing id", "", "tok", ErrMissingIdentifier, MissingItemMessage},
		{"missing credential", "recipe-1", "", ErrUnauthenticated, LoginRequiredMessage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := &recordingNotifier{}
			called := false
			c := NewController(Config[bool]{
				Kind:     Save,
				Initial:  false,
				Notifier: n,
				Mutate: func(ctx context.Context, id, token string) (bool, error) {
					called = true
					return true, nil
				},
			})

			err := c.Invoke(context.Background(), tc.id, tc.token, func(prev bool) bool { return !prev })

			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
			if called {
				t.Error("expected no remote call")
			}
			if c.Value() {
				t.Error("expected local state to be unchanged")
			}
			if len(n.errors) != 1 || n.errors[0] != tc.wantMsg {
				t.Errorf("errors = %v, want [%q]", n.errors, tc.wantMsg)
			}
		})
	}
}

func TestController_InlineWithoutDispatcher(t *testing.T) {
	c := NewController(Config[int]{
		Kind:    Follow,
		Initial: 1,
		Mutate: func(ctx context.Context, id, token string) (int, error) {
			return 5, nil
		},
	})

	_ = c.Invoke(context.Background(), "user-1", "tok", func(prev int) int { return prev + 1 })

	if c.Value() != 5 {
		t.Errorf("value = %d, want 5", c.Value())
	}
}

func TestController_CloseDropsSettlement(t *testing.T) {
	l := newLoop()
	var changes int
	var outcomes int
	c := NewController(Config[bool]{
		Kind:     Like,
		Dispatch: l.dispatch,
		Mutate: func(ctx context.Context, id, token string) (bool, error) {
			return false, errors.New("boom")
		},
		OnChange:  func(bool, bool) { changes++ },
		OnOutcome: func(Kind, error) { outcomes++ },
	})

	_ = c.Invoke(context.Background(), "post-1", "tok", func(bool) bool { return true })
	c.Close()
	l.runOne(t)

	if changes != 1 {
		t.Errorf("changes = %d, want only the optimistic one", changes)
	}
	if outcomes != 1 {
		t.Errorf("outcomes = %d, want 1", outcomes)
	}
}

func TestController_ResetIgnoredWhileInFlight(t *testing.T) {
	l := newLoop()
	c := NewController(Config[bool]{
		Kind:     Save,
		Dispatch: l.dispatch,
		Mutate: func(ctx context.Context, id, token string) (bool, error) {
			return true, nil
		},
	})

	_ = c.Invoke(context.Background(), "recipe-1", "tok", func(bool) bool { return true })
	c.Reset(false)
	if !c.Value() {
		t.Error("Reset must not clobber a pending optimistic value")
	}
	l.runOne(t)

	c.Reset(false)
	if c.Value() {
		t.Error("expected Reset to apply once idle")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrUnauthenticated, LoginRequiredMessage},
		{ErrMissingIdentifier, MissingItemMessage},
		{&RemoteError{Status: 400, Message: "Already hidden"}, "Already hidden"},
		{&RemoteError{Status: 500}, GenericFailureMessage},
		{&TransportError{Op: "like", Err: context.DeadlineExceeded}, GenericFailureMessage},
	}
	for _, tc := range tests {
		if got := UserMessage(tc.err); got != tc.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
