package ntpal

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/AndrewLester/sntp/pkg/ntp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runExchange(ctx context.Context, c *Client) (*exchange, *QueryResult, error) {
	x := &exchange{client: c, host: "time.example.com", log: c.Log}
	result, err := x.run(ctx)
	return x, result, err
}

func serverAhead(offset int64) func(req *ntp.Packet) []datagram {
	return func(req *ntp.Packet) []datagram {
		return []datagram{{from: serverAddr, data: reply(req, offset, 2)}}
	}
}

func TestExchange(t *testing.T) {
	transport := &fakeTransport{clock: newFakeClock(), respond: serverAhead(5)}
	c := newTestClient(transport)

	x, result, err := runExchange(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.Offset)
	assert.Equal(t, int64(0), result.Delay)
	assert.Equal(t, 5*time.Second, result.ClockOffset())
	assert.Equal(t, uint8(2), result.Stratum)
	assert.Equal(t, "192.0.2.1:123", result.Address)
	assert.Equal(t, []State{Sent, AwaitingReply, Validated, Done}, x.path)
	assert.Equal(t, "udp4", transport.network)
	assert.Equal(t, 1, transport.endpoint.closes)

	require.Len(t, transport.endpoint.sent, 1)
	req := transport.endpoint.sent[0]
	assert.Equal(t, ntp.CLIENT, req.Mode)
	assert.Equal(t, ntp.VERSION, req.Version)
	assert.Equal(t, uint32(1_700_000_000+ntp.EpochDelta), req.Xmt.Seconds)
}

func TestExchangeDiscardsOtherPeers(t *testing.T) {
	transport := &fakeTransport{
		clock: newFakeClock(),
		respond: func(req *ntp.Packet) []datagram {
			spoofed := reply(req, 3600, 1)
			return []datagram{
				{wait: 10 * time.Millisecond, from: strayAddr, data: spoofed},
				{wait: 10 * time.Millisecond, from: &net.UDPAddr{IP: serverAddr.IP, Port: 4123}, data: spoofed},
				{wait: 10 * time.Millisecond, from: strayAddr, data: []byte("junk")},
				{wait: 10 * time.Millisecond, from: serverAddr, data: reply(req, -2, 3)},
			}
		},
	}
	c := newTestClient(transport, WithTimeout(time.Second))

	_, result, err := runExchange(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), result.Offset)
	assert.Equal(t, uint8(3), result.Stratum)

	// Each receive gets what is left of the single budget.
	assert.Equal(t, []time.Duration{
		time.Second,
		990 * time.Millisecond,
		980 * time.Millisecond,
		970 * time.Millisecond,
	}, transport.endpoint.budgets)
	assert.Equal(t, 1, transport.endpoint.closes)
}

func TestExchangeBudgetSpansDiscardedDatagrams(t *testing.T) {
	const strays = 5
	transport := &fakeTransport{
		clock: newFakeClock(),
		respond: func(req *ntp.Packet) []datagram {
			var script []datagram
			for i := 0; i < strays; i++ {
				script = append(script, datagram{wait: 30 * time.Millisecond, from: strayAddr, data: reply(req, 0, 1)})
			}
			return append(script, datagram{wait: 30 * time.Millisecond, from: serverAddr, data: reply(req, 5, 2)})
		},
	}
	// Every datagram alone fits the budget, all of them together do not.
	c := newTestClient(transport, WithTimeout(100*time.Millisecond))
	start := transport.clock.Now()

	x, _, err := runExchange(context.Background(), c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimedOut), "got %v", err)
	assert.True(t, Retryable(err))
	assert.Equal(t, []State{Sent, AwaitingReply, TimedOut, Done}, x.path)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		70 * time.Millisecond,
		40 * time.Millisecond,
		10 * time.Millisecond,
	}, transport.endpoint.budgets)
	assert.Equal(t, 100*time.Millisecond, transport.clock.Now().Sub(start))
	assert.Equal(t, 1, transport.endpoint.closes)
}

func TestExchangeBudgetIgnoresClockSteps(t *testing.T) {
	t.Run("forward", func(t *testing.T) {
		transport := &fakeTransport{
			clock: newFakeClock(),
			respond: func(req *ntp.Packet) []datagram {
				return []datagram{
					{wait: 30 * time.Millisecond, step: time.Hour, from: strayAddr, data: reply(req, 0, 1)},
					{wait: 30 * time.Millisecond, from: serverAddr, data: reply(req, 5, 2)},
				}
			},
		}
		c := newTestClient(transport, WithTimeout(100*time.Millisecond))

		_, _, err := runExchange(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, []time.Duration{100 * time.Millisecond, 70 * time.Millisecond}, transport.endpoint.budgets)
	})

	t.Run("backward", func(t *testing.T) {
		transport := &fakeTransport{
			clock: newFakeClock(),
			respond: func(req *ntp.Packet) []datagram {
				var script []datagram
				for i := 0; i < 5; i++ {
					script = append(script, datagram{wait: 30 * time.Millisecond, step: -time.Hour, from: strayAddr, data: reply(req, 0, 1)})
				}
				return script
			},
		}
		c := newTestClient(transport, WithTimeout(100*time.Millisecond))

		_, _, err := runExchange(context.Background(), c)
		assert.True(t, errors.Is(err, ErrTimedOut), "got %v", err)
		assert.Equal(t, []time.Duration{
			100 * time.Millisecond,
			70 * time.Millisecond,
			40 * time.Millisecond,
			10 * time.Millisecond,
		}, transport.endpoint.budgets)
	})
}

func TestExchangeNoReply(t *testing.T) {
	transport := &fakeTransport{clock: newFakeClock()}
	c := newTestClient(transport, WithTimeout(250*time.Millisecond))
	start := transport.clock.Now()

	_, _, err := runExchange(context.Background(), c)
	assert.True(t, errors.Is(err, ErrTimedOut))
	assert.Equal(t, 250*time.Millisecond, transport.clock.Now().Sub(start))
	assert.Equal(t, 1, transport.endpoint.closes)
}

func TestExchangeFailures(t *testing.T) {
	kiss := func(req *ntp.Packet) []datagram {
		p := &ntp.Packet{Version: ntp.VERSION, Mode: ntp.SERVER, Refid: [4]byte{'D', 'E', 'N', 'Y'}, Org: req.Xmt}
		b, _ := p.MarshalBinary()
		return []datagram{{from: serverAddr, data: b}}
	}
	truncated := func(req *ntp.Packet) []datagram {
		return []datagram{{from: serverAddr, data: reply(req, 5, 2)[:ntp.PacketSize-1]}}
	}
	broken := func(req *ntp.Packet) []datagram {
		return []datagram{{err: errBoom}}
	}

	for _, tt := range []struct {
		name      string
		transport *fakeTransport
		kind      error
		state     State
		retryable bool
		opened    bool
	}{
		{"resolve", &fakeTransport{resolveErr: errBoom}, ErrNotFound, TransportError, true, false},
		{"open", &fakeTransport{openErr: errBoom}, ErrResourceExhausted, TransportError, true, false},
		{"send", &fakeTransport{sendErr: errBoom}, ErrTransport, TransportError, true, true},
		{"receive", &fakeTransport{respond: broken}, ErrTransport, TransportError, true, true},
		{"malformed", &fakeTransport{respond: truncated}, ErrMalformedPacket, TransportError, false, true},
		{"kiss of death", &fakeTransport{respond: kiss}, ErrKissOfDeath, Rejected, false, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tt.transport.clock = newFakeClock()
			c := newTestClient(tt.transport)

			x, result, err := runExchange(context.Background(), c)
			assert.Nil(t, result)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			assert.Equal(t, tt.retryable, Retryable(err))

			var exchangeErr *Error
			require.True(t, errors.As(err, &exchangeErr))
			assert.Equal(t, "time.example.com", exchangeErr.Host)

			require.GreaterOrEqual(t, len(x.path), 2)
			assert.Equal(t, tt.state, x.path[len(x.path)-2])
			assert.Equal(t, Done, x.path[len(x.path)-1])

			if tt.opened {
				assert.Equal(t, 1, tt.transport.endpoint.closes)
			} else {
				assert.Nil(t, tt.transport.endpoint)
			}
		})
	}
}

func TestExchangeKissCode(t *testing.T) {
	transport := &fakeTransport{
		clock: newFakeClock(),
		respond: func(req *ntp.Packet) []datagram {
			p := &ntp.Packet{Version: ntp.VERSION, Mode: ntp.SERVER, Refid: [4]byte{'R', 'A', 'T', 'E'}}
			b, _ := p.MarshalBinary()
			return []datagram{{from: serverAddr, data: b}}
		},
	}
	_, _, err := runExchange(context.Background(), newTestClient(transport))

	var kiss *ntp.KissError
	require.True(t, errors.As(err, &kiss))
	assert.Equal(t, "RATE", kiss.Code)
}

func TestExchangeVerifyOriginate(t *testing.T) {
	respond := func(req *ntp.Packet) []datagram {
		stale := *req
		stale.Xmt.Seconds -= 64
		return []datagram{
			{wait: time.Millisecond, from: serverAddr, data: reply(&stale, 100, 2)},
			{wait: time.Millisecond, from: serverAddr, data: reply(req, 1, 2)},
		}
	}

	t.Run("strict", func(t *testing.T) {
		transport := &fakeTransport{clock: newFakeClock(), respond: respond}
		_, result, err := runExchange(context.Background(), newTestClient(transport, WithVerifyOriginate(true)))
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Offset)
		assert.Len(t, transport.endpoint.budgets, 2)
	})

	t.Run("lenient", func(t *testing.T) {
		transport := &fakeTransport{clock: newFakeClock(), respond: respond}
		_, result, err := runExchange(context.Background(), newTestClient(transport))
		require.NoError(t, err)
		// ((t-64+100) - (t-64) + (t+36) - t) / 2
		assert.Equal(t, int64(68), result.Offset)
	})
}

func TestExchangeCanceled(t *testing.T) {
	transport := &fakeTransport{clock: newFakeClock(), respond: serverAhead(5)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x, _, err := runExchange(ctx, newTestClient(transport))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.False(t, Retryable(err))
	assert.Equal(t, []State{Sent, AwaitingReply, Canceled, Done}, x.path)
	assert.Equal(t, 1, transport.endpoint.closes)
}

func TestExchangeDefaults(t *testing.T) {
	transport := &fakeTransport{clock: newFakeClock()}
	c := newTestClient(transport, WithPort(0), WithTimeout(0))

	_, _, err := runExchange(context.Background(), c)
	assert.True(t, errors.Is(err, ErrTimedOut))
	assert.Equal(t, []time.Duration{DefaultTimeout}, transport.endpoint.budgets)
}

func TestSetTime(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	transport := &fakeTransport{clock: clock, respond: serverAhead(-30)}

	result, err := newTestClient(transport).SetTime(context.Background(), "time.example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(-30), result.Offset)
	require.Len(t, clock.set, 1)
	assert.Equal(t, start.Add(-30*time.Second), clock.set[0])
}

func TestSetTimeReadOnlyClock(t *testing.T) {
	clock := newFakeClock()
	transport := &fakeTransport{clock: clock, respond: serverAhead(1)}
	c := newTestClient(transport, WithClock(struct{ Clock }{clock}))

	_, err := c.SetTime(context.Background(), "time.example.com")
	assert.Equal(t, errClockReadOnly, err)
	assert.Nil(t, transport.endpoint, "no exchange without a settable clock")
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Op: "resolve", Host: "time.example.com", Kind: ErrNotFound, Err: errBoom}
	assert.Equal(t, "ntp resolve time.example.com: host not found: boom", err.Error())

	err = &Error{Op: "receive", Host: "time.example.com", Kind: ErrTimedOut, Err: ErrTimedOut}
	assert.Equal(t, "ntp receive time.example.com: timed out waiting for reply", err.Error())
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(errBoom))
	assert.True(t, Retryable(errors.Wrap(ErrTimedOut, "query")))
	assert.False(t, Retryable(&ntp.KissError{Code: "RATE"}))
}
