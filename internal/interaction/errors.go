package interaction

import (
	"errors"
	"fmt"
)

var (
	ErrMissingIdentifier = errors.New("missing entity identifier")
	ErrUnauthenticated   = errors.New("not authenticated")
	ErrInFlight          = errors.New("action already in flight")
)

// RemoteError is a failure reported by the backend.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote failure (status %d)", e.Status)
	}
	return fmt.Sprintf("remote failure (status %d): %s", e.Status, e.Message)
}

// TransportError is a network, timeout or decoding failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

const (
	GenericFailureMessage = "Something went wrong. Please try again."
	LoginRequiredMessage  = "Please login to continue."
	MissingItemMessage    = "This item is no longer available."
)

// UserMessage converts an error into the text shown to the user.
func UserMessage(err error) string {
	var remote *RemoteError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return LoginRequiredMessage
	case errors.Is(err, ErrMissingIdentifier):
		return MissingItemMessage
	case errors.As(err, &remote) && remote.Message != "":
		return remote.Message
	default:
		return GenericFailureMessage
	}
}
