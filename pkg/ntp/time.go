package ntp

import (
	"math"
	"time"
)

const (
	EraLength   int64   = 4_294_967_296 // 2^32
	EpochDelta  int64   = 2_208_988_800 // 1970 - 1900 in seconds
	ShortLength float64 = 65536         // 2^16
)

// NewTimestamp converts t to the 64-bit NTP timestamp format.
func NewTimestamp(t time.Time) Timestamp {
	// [0,999999999] ns to [0,2^32) fraction
	frac := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return Timestamp{
		Seconds:  uint32(t.Unix() + EpochDelta),
		Fraction: uint32(frac),
	}
}

// Now gets the current time as an NTP timestamp.
func Now() Timestamp {
	return NewTimestamp(time.Now())
}

// Unix returns the whole seconds of t relative to the Unix epoch.
func (t Timestamp) Unix() int64 {
	return int64(t.Seconds) - EpochDelta
}

func (t Timestamp) Time() time.Time {
	nsec := math.Round(float64(t.Fraction) / float64(EraLength) * 1e9)
	return time.Unix(t.Unix(), int64(nsec))
}

func (t Timestamp) IsZero() bool {
	return t.Seconds == 0 && t.Fraction == 0
}

// Seconds converts an NTP short (16.16 fixed point) to seconds.
func (s Short) Seconds() float64 {
	return float64(s) / ShortLength
}

func Log2ToDouble(a int8) float64 {
	if a < 0 {
		return 1.0 / float64(int64(1)<<-a)
	}
	return float64(int64(1) << a)
}
