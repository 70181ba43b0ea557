package ntpal

import (
	"context"
	"os"
	"time"

	"github.com/AndrewLester/sntp/pkg/ntp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errClockReadOnly = errors.New("clock cannot be set")

const DefaultTimeout = 15 * time.Second

type Options struct {
	Port      int           // server port, defaults to 123
	Timeout   time.Duration // budget for the whole receive phase
	LocalPort int           // 0 binds any free port
	TTL       int           // 0 keeps the system default

	// VerifyOriginate discards replies whose originate timestamp does not
	// echo the transmit timestamp of the request.
	VerifyOriginate bool
}

func DefaultOptions() Options {
	return Options{
		Port:    ntp.Port,
		Timeout: DefaultTimeout,
	}
}

// Client performs independent single-server exchanges. It holds no state
// between calls and may be used from several goroutines.
type Client struct {
	Transport Transport
	Clock     Clock
	Log       logrus.FieldLogger
	Options
}

type Option func(*Client)

func WithPort(port int) Option {
	return func(c *Client) { c.Port = port }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.Timeout = timeout }
}

func WithLocalPort(port int) Option {
	return func(c *Client) { c.LocalPort = port }
}

func WithTTL(ttl int) Option {
	return func(c *Client) { c.TTL = ttl }
}

func WithVerifyOriginate(verify bool) Option {
	return func(c *Client) { c.VerifyOriginate = verify }
}

func WithTransport(t Transport) Option {
	return func(c *Client) { c.Transport = t }
}

func WithClock(clock Clock) Option {
	return func(c *Client) { c.Clock = clock }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.Log = log }
}

func NewClient(opts ...Option) *Client {
	c := &Client{Options: DefaultOptions()}
	for _, opt := range opts {
		opt(c)
	}
	if c.Transport == nil {
		c.Transport = &UDPTransport{TTL: c.TTL}
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Log == nil {
		c.Log = NewLogger(os.Stderr)
	}
	return c
}

type QueryResult struct {
	Server    string            `json:"server" yaml:"server"`
	Address   string            `json:"address" yaml:"address"`
	Offset    int64             `json:"offset" yaml:"offset"` // seconds
	Delay     int64             `json:"delay" yaml:"delay"`   // seconds
	Stratum   uint8             `json:"stratum" yaml:"stratum"`
	Leap      ntp.LeapIndicator `json:"leap" yaml:"leap"`
	Precision float64           `json:"precision" yaml:"precision"` // seconds
	RefID     string            `json:"refid" yaml:"refid"`
	Time      time.Time         `json:"time" yaml:"time"` // server transmit time
	Reply     *ntp.Packet       `json:"-" yaml:"-"`
}

func (r *QueryResult) ClockOffset() time.Duration {
	return time.Duration(r.Offset) * time.Second
}

// Query runs one exchange against host and returns the estimated offset of
// the local clock. Errors are never retried here, see Retryable.
func (c *Client) Query(ctx context.Context, host string) (*QueryResult, error) {
	x := &exchange{
		client: c,
		host:   host,
		log:    c.Log.WithField("server", host),
	}
	return x.run(ctx)
}

// SetTime runs one exchange against host and steps the local clock by the
// resulting offset. The client's Clock must implement ClockSetter.
func (c *Client) SetTime(ctx context.Context, host string) (*QueryResult, error) {
	setter, ok := c.Clock.(ClockSetter)
	if !ok {
		return nil, errClockReadOnly
	}

	result, err := c.Query(ctx, host)
	if err != nil {
		return nil, err
	}

	log := c.Log.WithField("server", host)
	log.WithField("time", setter.Now()).Info("time before step")
	to, err := stepTime(setter, result.Offset)
	if err != nil {
		return result, errors.Wrapf(err, "stepping clock by %ds", result.Offset)
	}
	log.WithFields(logrus.Fields{"time": to, "offset": result.Offset}).Info("time stepped")

	return result, nil
}

// Query runs a single exchange with default options.
func Query(host string) (*QueryResult, error) {
	return NewClient().Query(context.Background(), host)
}
