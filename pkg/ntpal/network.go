package ntpal

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const MTU = 1300

var aLongTimeAgo = time.Unix(1, 0)

// UDPTransport sends requests over the host network stack.
type UDPTransport struct {
	// TTL sets the IPv4 TTL or IPv6 hop limit of outgoing requests when
	// non-zero.
	TTL      int
	Resolver *net.Resolver
}

func (t *UDPTransport) Resolve(ctx context.Context, host string, port int) (net.Addr, error) {
	resolver := t.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	addrs, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, errors.Errorf("no addresses for %s", host)
	}

	// Prefer IPv4, NTP pools commonly publish both.
	addr := addrs[0].Unmap()
	for _, a := range addrs {
		if a.Unmap().Is4() {
			addr = a.Unmap()
			break
		}
	}
	return net.UDPAddrFromAddrPort(netip.AddrPortFrom(addr, uint16(port))), nil
}

func (t *UDPTransport) Open(network string, localPort int) (Endpoint, error) {
	conn, err := net.ListenUDP(network, &net.UDPAddr{Port: localPort})
	if err != nil {
		return nil, errors.Wrapf(err, "can't listen on %d/%s", localPort, network)
	}

	if t.TTL > 0 {
		if network == "udp6" {
			err = ipv6.NewConn(conn).SetHopLimit(t.TTL)
		} else {
			err = ipv4.NewConn(conn).SetTTL(t.TTL)
		}
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "setting ttl %d", t.TTL)
		}
	}

	return &udpEndpoint{conn: conn}, nil
}

type udpEndpoint struct {
	conn      *net.UDPConn
	closeOnce sync.Once
	closeErr  error
}

func (e *udpEndpoint) SendTo(b []byte, addr net.Addr) error {
	n, err := e.conn.WriteTo(b, addr)
	if err != nil {
		return err
	}
	if n != len(b) {
		return errors.Errorf("short write: %d of %d bytes", n, len(b))
	}
	return nil
}

func (e *udpEndpoint) ReceiveFrom(ctx context.Context, timeout time.Duration) ([]byte, net.Addr, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if timeout <= 0 {
		return nil, nil, ErrTimedOut
	}
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, err
	}

	// Expire the read as soon as ctx is done.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			e.conn.SetReadDeadline(aLongTimeAgo)
		case <-done:
		}
	}()

	packet := make([]byte, MTU)
	n, addr, err := e.conn.ReadFrom(packet)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil, ErrTimedOut
		}
		return nil, nil, err
	}
	return packet[:n], addr, nil
}

func (e *udpEndpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.conn.Close()
	})
	return e.closeErr
}
