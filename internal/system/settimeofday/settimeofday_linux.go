//go:build linux

package settimeofday

import (
	"time"

	"golang.org/x/sys/unix"
)

// Settimeofday steps the realtime clock to t with microsecond resolution.
func Settimeofday(t time.Time) error {
	timeVal := unix.NsecToTimeval(t.UnixNano())
	return unix.Settimeofday(&timeVal)
}
