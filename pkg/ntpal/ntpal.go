package ntpal

import (
	"context"
	"net"
	"time"

	"github.com/AndrewLester/sntp/pkg/ntp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State of a single exchange.
//
//	Idle -> Sent -> AwaitingReply -> Validated      -> Done
//	                              -> TimedOut       -> Done
//	                              -> Rejected       -> Done
//	                              -> TransportError -> Done
//	                              -> Canceled       -> Done
//
// Failures before the request is sent go straight to TransportError.
type State int

const (
	Idle State = iota
	Sent
	AwaitingReply
	Validated
	TimedOut
	Rejected
	TransportError
	Canceled
	Done
)

var stateNames = [...]string{"idle", "sent", "awaiting reply", "validated", "timed out", "rejected", "transport error", "canceled", "done"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

type exchange struct {
	client *Client
	host   string
	log    logrus.FieldLogger
	state  State
	path   []State
}

func (x *exchange) transition(s State) {
	x.log.WithFields(logrus.Fields{"from": x.state, "to": s}).Debug("exchange state")
	x.state = s
	x.path = append(x.path, s)
}

func (x *exchange) fail(s State, op string, kind, err error) error {
	x.transition(s)
	return &Error{Op: op, Host: x.host, Kind: kind, Err: err}
}

func (x *exchange) run(ctx context.Context) (*QueryResult, error) {
	c := x.client
	x.state = Idle
	defer x.transition(Done)

	port := c.Port
	if port == 0 {
		port = ntp.Port
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	server, err := c.Transport.Resolve(ctx, x.host, port)
	if err != nil {
		return nil, x.fail(TransportError, "resolve", ErrNotFound, err)
	}
	x.log = x.log.WithField("address", server)

	endpoint, err := c.Transport.Open(networkFor(server), c.LocalPort)
	if err != nil {
		return nil, x.fail(TransportError, "open", ErrResourceExhausted, err)
	}
	defer func() {
		if err := endpoint.Close(); err != nil {
			x.log.WithError(err).Debug("closing endpoint")
		}
	}()

	request := ntp.BuildRequest(c.Clock.Now().Unix())
	encoded, err := request.MarshalBinary()
	if err != nil {
		return nil, x.fail(TransportError, "send", ErrTransport, err)
	}
	if err := endpoint.SendTo(encoded, server); err != nil {
		return nil, x.fail(TransportError, "send", ErrTransport, err)
	}
	x.transition(Sent)

	deadline := c.Clock.Monotonic() + timeout
	x.transition(AwaitingReply)

	data, err := x.await(ctx, endpoint, server, request.Xmt, deadline)
	switch {
	case err == nil:
	case errors.Is(err, ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return nil, x.fail(TimedOut, "receive", ErrTimedOut, err)
	case errors.Is(err, context.Canceled):
		return nil, x.fail(Canceled, "receive", context.Canceled, err)
	default:
		return nil, x.fail(TransportError, "receive", ErrTransport, err)
	}

	reply, err := ntp.ParseReply(data)
	if err != nil {
		return nil, x.fail(TransportError, "parse", ErrMalformedPacket, err)
	}
	if err := ntp.Validate(reply); err != nil {
		x.log.WithError(err).Warn("server rejected request")
		return nil, x.fail(Rejected, "validate", ErrKissOfDeath, err)
	}
	x.transition(Validated)

	// No receive timestamp is latched, the destination time is read now.
	dst := ntp.Timestamp{Seconds: uint32(c.Clock.Now().Unix() + ntp.EpochDelta)}
	result := &QueryResult{
		Server:    x.host,
		Address:   server.String(),
		Offset:    ntp.EstimateOffset(reply.Rec, reply.Org, reply.Xmt, dst),
		Delay:     ntp.RoundTripDelay(reply.Rec, reply.Org, reply.Xmt, dst),
		Stratum:   reply.Stratum,
		Leap:      reply.Leap,
		Precision: ntp.Log2ToDouble(reply.Precision),
		RefID:     refID(reply),
		Time:      reply.Xmt.Time(),
		Reply:     reply,
	}
	x.log.WithFields(logrus.Fields{
		"sent":    request.Xmt.Seconds,
		"offset":  result.Offset,
		"delay":   result.Delay,
		"stratum": result.Stratum,
	}).Info("exchange complete")

	return result, nil
}

// await receives until a datagram from server arrives or the budget runs
// out. The budget is shared by every receive: discarded datagrams do not
// extend it, and neither do steps of the wall clock.
func (x *exchange) await(ctx context.Context, endpoint Endpoint, server net.Addr, sent ntp.Timestamp, deadline time.Duration) ([]byte, error) {
	c := x.client
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := deadline - c.Clock.Monotonic()
		if remaining <= 0 {
			return nil, ErrTimedOut
		}

		data, from, err := endpoint.ReceiveFrom(ctx, remaining)
		if err != nil {
			return nil, err
		}

		if !sameAddr(from, server) {
			x.log.WithField("from", from).Debug("discarding datagram from unexpected peer")
			continue
		}
		if c.VerifyOriginate && !echoes(data, sent) {
			x.log.WithField("from", from).Debug("discarding reply to another request")
			continue
		}
		return data, nil
	}
}

// echoes reports whether a reply carries sent as its originate timestamp.
// Undecodable replies pass so they are reported as malformed.
func echoes(data []byte, sent ntp.Timestamp) bool {
	reply, err := ntp.ParseReply(data)
	if err != nil {
		return true
	}
	return reply.Org == sent
}

func refID(p *ntp.Packet) string {
	if p.Stratum == 1 {
		// Reference clock identifier, e.g. GPS or PPS.
		return string(trimNUL(p.Refid[:]))
	}
	return net.IP(p.Refid[:]).String()
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
