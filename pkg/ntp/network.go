package ntp

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

var be = binary.BigEndian

// Layout of the first header byte: LI(2) VN(3) Mode(3).
const (
	liMax      = 3
	liOffset   = 6
	vnMax      = 7
	vnOffset   = 3
	modeMax    = 7
	modeOffset = 0
)

// BuildRequest returns a client mode request whose transmit timestamp holds
// unixSeconds converted to the NTP era. Every other field is zero.
func BuildRequest(unixSeconds int64) *Packet {
	return &Packet{
		Leap:    NOWARNING,
		Version: VERSION,
		Mode:    CLIENT,
		Xmt:     Timestamp{Seconds: uint32(unixSeconds + EpochDelta)},
	}
}

// NewRequest is like BuildRequest but keeps the sub-second part of t in the
// transmit fraction.
func NewRequest(t time.Time) *Packet {
	p := BuildRequest(t.Unix())
	p.Xmt = NewTimestamp(t)
	return p
}

func (p *Packet) MarshalBinary() ([]byte, error) {
	if p.Leap > liMax || p.Version > vnMax || p.Mode > modeMax {
		return nil, errors.Errorf("invalid NTP header: leap %d version %d mode %d", p.Leap, p.Version, p.Mode)
	}

	b := make([]byte, PacketSize)
	b[0] = byte(p.Leap)<<liOffset | p.Version<<vnOffset | byte(p.Mode)<<modeOffset
	b[1] = p.Stratum
	b[2] = byte(p.Poll)
	b[3] = byte(p.Precision)
	be.PutUint32(b[4:], uint32(p.Rootdelay))
	be.PutUint32(b[8:], uint32(p.Rootdisp))
	copy(b[12:16], p.Refid[:])
	p.Reftime.put(b[16:])
	p.Org.put(b[24:])
	p.Rec.put(b[32:])
	p.Xmt.put(b[40:])

	return b, nil
}

// UnmarshalBinary decodes the first PacketSize bytes of b. Extension fields
// and MAC trailing the header are ignored.
func (p *Packet) UnmarshalBinary(b []byte) error {
	if len(b) < PacketSize {
		return errors.Wrapf(ErrMalformedPacket, "%d bytes, want %d", len(b), PacketSize)
	}

	p.Leap = LeapIndicator((b[0] >> liOffset) & liMax)
	p.Version = (b[0] >> vnOffset) & vnMax
	p.Mode = Mode((b[0] >> modeOffset) & modeMax)
	p.Stratum = b[1]
	p.Poll = int8(b[2])
	p.Precision = int8(b[3])
	p.Rootdelay = Short(be.Uint32(b[4:]))
	p.Rootdisp = Short(be.Uint32(b[8:]))
	copy(p.Refid[:], b[12:16])
	p.Reftime.get(b[16:])
	p.Org.get(b[24:])
	p.Rec.get(b[32:])
	p.Xmt.get(b[40:])

	return nil
}

// ParseReply decodes a reply datagram.
func ParseReply(b []byte) (*Packet, error) {
	p := &Packet{}
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate rejects replies that carry no usable time. A stratum 0 reply is a
// kiss-o'-death and is reported as a *KissError.
func Validate(p *Packet) error {
	if p.Stratum == 0 {
		return &KissError{Code: p.KissCode()}
	}
	return nil
}

// KissCode returns the ASCII kiss code carried in the reference ID of a
// stratum 0 packet, or "" when it is not printable.
func (p *Packet) KissCode() string {
	if p.Stratum != 0 {
		return ""
	}
	n := 0
	for ; n < len(p.Refid) && p.Refid[n] != 0; n++ {
		if p.Refid[n] < 0x20 || p.Refid[n] > 0x7e {
			return ""
		}
	}
	return string(p.Refid[:n])
}

func (t *Timestamp) put(b []byte) {
	be.PutUint32(b[0:], t.Seconds)
	be.PutUint32(b[4:], t.Fraction)
}

func (t *Timestamp) get(b []byte) {
	t.Seconds = be.Uint32(b[0:])
	t.Fraction = be.Uint32(b[4:])
}
