// Package ntp implements the NTP v4 packet format (RFC 5905) and the SNTP
// clock offset arithmetic (RFC 4330) used by the ntpal client.
package ntp

type Mode byte

const (
	RESERVED Mode = iota
	SYMMETRIC_ACTIVE
	SYMMETRIC_PASSIVE
	CLIENT
	SERVER
	BROADCAST_SERVER
	BROADCAST_CLIENT // Also NTP_CONTROL_MESSAGE
	RESERVED_PRIVATE_USE
)

var modeNames = [...]string{
	"reserved",
	"symmetric active",
	"symmetric passive",
	"client",
	"server",
	"broadcast server",
	"broadcast client",
	"private",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "invalid"
}

// LeapIndicator warns of an impending leap second in the last minute of the
// current day.
type LeapIndicator byte

const (
	NOWARNING LeapIndicator = iota /* no warning */
	ADD_SECOND                     /* last minute of the day has 61 seconds */
	DEL_SECOND                     /* last minute of the day has 59 seconds */
	NOSYNC                         /* unknown (clock unsynchronized) */
)

const (
	VERSION    byte = 4  // NTP version number
	Port            = 123 // NTP port number
	PacketSize      = 48  // header size in bytes, extension fields and MAC excluded
)

type Short uint32

type Timestamp struct {
	Seconds  uint32
	Fraction uint32
}

// Packet is the fixed 48 byte NTP header.
type Packet struct {
	Leap      LeapIndicator /* leap indicator */
	Version   byte          /* version number */
	Mode      Mode          /* mode */
	Stratum   byte          /* stratum */
	Poll      int8          /* poll interval */
	Precision int8          /* precision */
	Rootdelay Short         /* root delay */
	Rootdisp  Short         /* root dispersion */
	Refid     [4]byte       /* reference ID */
	Reftime   Timestamp     /* reference time */
	Org       Timestamp     /* origin timestamp */
	Rec       Timestamp     /* receive timestamp */
	Xmt       Timestamp     /* transmit timestamp */
}
