package settimeofday

import (
	"time"

	"golang.org/x/sys/unix"
)

// Settimeofday steps the realtime clock to t with microsecond resolution.
func Settimeofday(t time.Time) error {
	timeVal := unix.Timeval{
		Sec:  t.Unix(),
		Usec: int32(t.Nanosecond() / 1e3),
	}
	return unix.Settimeofday(&timeVal)
}
