package ntpal

import (
	"time"

	"github.com/AndrewLester/sntp/internal/system/settimeofday"
	"golang.org/x/sys/unix"
)

// Clock is the local clock read by an exchange. Now gives the wall time
// used for timestamps. Monotonic gives a reading that only moves forward,
// unaffected by steps of the wall clock, and bounds the receive budget.
type Clock interface {
	Now() time.Time
	Monotonic() time.Duration
}

// ClockSetter is a Clock that can be stepped.
type ClockSetter interface {
	Clock
	Set(t time.Time) error
}

var processStart = time.Now()

// SystemClock reads and steps CLOCK_REALTIME. Stepping needs CAP_SYS_TIME
// (or root).
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return time.Now()
	}
	return time.Unix(ts.Unix())
}

func (SystemClock) Monotonic() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return time.Since(processStart)
	}
	return time.Duration(ts.Nano())
}

func (SystemClock) Set(t time.Time) error {
	return settimeofday.Settimeofday(t)
}

// stepTime moves c by offset whole seconds.
func stepTime(c ClockSetter, offset int64) (time.Time, error) {
	to := c.Now().Add(time.Duration(offset) * time.Second)
	return to, c.Set(to)
}
