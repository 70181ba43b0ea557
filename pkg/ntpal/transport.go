package ntpal

import (
	"context"
	"net"
	"net/netip"
	"time"
)

// Transport is the datagram layer used by an exchange.
type Transport interface {
	// Resolve maps host to the address of an NTP server listening on port.
	Resolve(ctx context.Context, host string, port int) (net.Addr, error)
	// Open binds a local endpoint on network ("udp4" or "udp6"). A
	// localPort of 0 picks any free port.
	Open(network string, localPort int) (Endpoint, error)
}

// Endpoint is a bound datagram socket owned by a single exchange.
type Endpoint interface {
	SendTo(b []byte, addr net.Addr) error
	// ReceiveFrom waits at most timeout for one datagram. It returns
	// ErrTimedOut when nothing arrived in time and ctx.Err() when ctx is
	// done first.
	ReceiveFrom(ctx context.Context, timeout time.Duration) ([]byte, net.Addr, error)
	// Close releases the endpoint. Calling it more than once is harmless.
	Close() error
}

func addrPort(a net.Addr) (netip.AddrPort, bool) {
	if a == nil {
		return netip.AddrPort{}, false
	}
	var ap netip.AddrPort
	if u, ok := a.(*net.UDPAddr); ok {
		ap = u.AddrPort()
	} else {
		var err error
		if ap, err = netip.ParseAddrPort(a.String()); err != nil {
			return netip.AddrPort{}, false
		}
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), ap.IsValid()
}

// sameAddr compares IP and port, treating IPv4-mapped IPv6 addresses as IPv4.
// This is stricter than matching the IP alone: a reply from the server's
// host but another source port is discarded.
func sameAddr(a, b net.Addr) bool {
	ap, ok := addrPort(a)
	if !ok {
		return false
	}
	bp, ok := addrPort(b)
	return ok && ap == bp
}

func networkFor(a net.Addr) string {
	if ap, ok := addrPort(a); ok && ap.Addr().Is6() {
		return "udp6"
	}
	return "udp4"
}
