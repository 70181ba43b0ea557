package ntpal

import (
	"context"
	"fmt"

	"github.com/AndrewLester/sntp/pkg/ntp"
	"github.com/pkg/errors"
)

var (
	ErrNotFound          = errors.New("host not found")
	ErrResourceExhausted = errors.New("could not open local endpoint")
	ErrTransport         = errors.New("transport error")
	ErrTimedOut          = errors.New("timed out waiting for reply")
	ErrMalformedPacket   = ntp.ErrMalformedPacket
	ErrKissOfDeath       = ntp.ErrKissOfDeath
)

// Error records a failed exchange. Kind is one of the Err* values above, or
// context.Canceled when the caller gave up.
type Error struct {
	Op   string
	Host string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("ntp %s %s: %v", e.Op, e.Host, e.Kind)
	if e.Err != nil && e.Err != e.Kind {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

// Retryable reports whether a new exchange may be attempted after err.
// Malformed replies and kiss-o'-death are final for that server.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrKissOfDeath), errors.Is(err, ErrMalformedPacket), errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrResourceExhausted),
		errors.Is(err, ErrTransport), errors.Is(err, ErrTimedOut):
		return true
	}
	return false
}
