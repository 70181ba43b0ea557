package ntp

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrMalformedPacket = errors.New("malformed NTP packet")
	ErrKissOfDeath     = errors.New("kiss of death")
)

// KissError is returned for replies with stratum 0. Clients must not retry
// the same server right away.
type KissError struct {
	Code string
}

func (e *KissError) Error() string {
	if e.Code == "" {
		return ErrKissOfDeath.Error()
	}
	return fmt.Sprintf("%v (%s)", ErrKissOfDeath, e.Code)
}

func (e *KissError) Is(target error) bool {
	return target == ErrKissOfDeath
}
