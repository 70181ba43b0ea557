package ntpal

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/AndrewLester/sntp/pkg/ntp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	serverAddr = &net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: ntp.Port}
	strayAddr  = &net.UDPAddr{IP: net.IPv4(198, 51, 100, 7), Port: ntp.Port}
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	elapsed time.Duration
	set     []time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.elapsed += d
}

func (c *fakeClock) Monotonic() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Step moves the wall clock only, like settimeofday from another process.
func (c *fakeClock) Step(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
	c.set = append(c.set, t)
	return nil
}

// datagram is delivered after the clock advanced by wait. step moves the
// wall clock on delivery.
type datagram struct {
	wait time.Duration
	step time.Duration
	from net.Addr
	data []byte
	err  error
}

// fakeTransport replays a script of datagrams. respond builds the script
// from the request once it has been sent.
type fakeTransport struct {
	clock      *fakeClock
	resolveErr error
	openErr    error
	sendErr    error
	respond    func(req *ntp.Packet) []datagram

	endpoint *fakeEndpoint
	network  string
}

func (t *fakeTransport) Resolve(ctx context.Context, host string, port int) (net.Addr, error) {
	if t.resolveErr != nil {
		return nil, t.resolveErr
	}
	return &net.UDPAddr{IP: serverAddr.IP, Port: port}, nil
}

func (t *fakeTransport) Open(network string, localPort int) (Endpoint, error) {
	if t.openErr != nil {
		return nil, t.openErr
	}
	t.network = network
	t.endpoint = &fakeEndpoint{transport: t}
	return t.endpoint, nil
}

type fakeEndpoint struct {
	transport *fakeTransport
	sent      []*ntp.Packet
	incoming  []datagram
	budgets   []time.Duration
	closes    int
}

func (e *fakeEndpoint) SendTo(b []byte, addr net.Addr) error {
	if e.transport.sendErr != nil {
		return e.transport.sendErr
	}
	req, err := ntp.ParseReply(b)
	if err != nil {
		return err
	}
	e.sent = append(e.sent, req)
	if e.transport.respond != nil {
		e.incoming = append(e.incoming, e.transport.respond(req)...)
	}
	return nil
}

func (e *fakeEndpoint) ReceiveFrom(ctx context.Context, timeout time.Duration) ([]byte, net.Addr, error) {
	e.budgets = append(e.budgets, timeout)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	clock := e.transport.clock
	if len(e.incoming) == 0 || e.incoming[0].wait > timeout {
		clock.Advance(timeout)
		return nil, nil, ErrTimedOut
	}
	d := e.incoming[0]
	e.incoming = e.incoming[1:]
	clock.Advance(d.wait)
	clock.Step(d.step)
	return d.data, d.from, d.err
}

func (e *fakeEndpoint) Close() error {
	e.closes++
	return nil
}

func newTestClient(t *fakeTransport, opts ...Option) *Client {
	log := logrus.New()
	log.SetOutput(io.Discard)
	opts = append([]Option{WithTransport(t), WithClock(t.clock), WithLogger(log)}, opts...)
	return NewClient(opts...)
}

// reply builds a server reply to req from a server running offset seconds
// ahead of req's transmit time.
func reply(req *ntp.Packet, offset int64, stratum uint8) []byte {
	at := ntp.Timestamp{Seconds: uint32(int64(req.Xmt.Seconds) + offset)}
	p := &ntp.Packet{
		Version: ntp.VERSION,
		Mode:    ntp.SERVER,
		Stratum: stratum,
		Refid:   [4]byte{'G', 'P', 'S', 0},
		Org:     req.Xmt,
		Rec:     at,
		Xmt:     at,
	}
	b, err := p.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return b
}

var errBoom = errors.New("boom")
