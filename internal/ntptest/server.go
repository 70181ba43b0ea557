// Package ntptest provides an NTP server for tests. It serves time at an
// adjustable offset from the real clock and can be told to misbehave.
package ntptest

import (
	"net"
	"sync"
	"time"

	"github.com/AndrewLester/sntp/pkg/ntp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Server struct {
	net.PacketConn
	Log logrus.FieldLogger

	mu       sync.Mutex // protects the fields below
	offset   time.Duration
	stratum  uint8
	kiss     string
	truncate int
	delay    time.Duration
	requests int
}

type Request struct {
	Client   net.Addr
	Received time.Time
	Packet   []byte
}

// NewServer listens on addr, typically "127.0.0.1:0".
func NewServer(addr string) (*Server, error) {
	l, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return &Server{PacketConn: l, Log: log, stratum: 2}, nil
}

// Port returns the UDP port the server is bound to.
func (s *Server) Port() int {
	return s.LocalAddr().(*net.UDPAddr).Port
}

// SetOffset makes the server run offset ahead of the real clock.
func (s *Server) SetOffset(offset time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = offset
}

func (s *Server) SetStratum(stratum uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stratum = stratum
}

// SetKiss answers every request with a stratum 0 kiss-o'-death carrying code.
func (s *Server) SetKiss(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stratum = 0
	s.kiss = code
}

// SetTruncate cuts replies to n bytes. 0 sends full replies.
func (s *Server) SetTruncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncate = n
}

// SetDelay holds every reply back for d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Requests returns the number of requests received so far.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Serve NTP requests until the server is closed.
func (s *Server) Serve() {
	s.Log.Infof("Started NTP server on %s", s.LocalAddr())

	for {
		req, err := s.Accept()
		if errors.Is(err, net.ErrClosed) {
			// gracefully quit
			return
		} else if err != nil {
			s.Log.Errorf("NTP server failed: %v", err)
			return
		}
		go s.Respond(req)
	}
}

// Accept a single NTP request.
func (s *Server) Accept() (*Request, error) {
	pkt := make([]byte, 1024)
	n, client, err := s.ReadFrom(pkt)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()
	return &Request{
		Client:   client,
		Received: time.Now(),
		Packet:   pkt[:n],
	}, nil
}

// Respond to a single NTP request.
func (s *Server) Respond(r *Request) {
	recv, err := ntp.ParseReply(r.Packet)
	if err != nil {
		s.Log.Errorf("Invalid NTP packet from %s: %v", r.Client, err)
		return
	}
	if recv.Mode != ntp.CLIENT {
		s.Log.Errorf("Invalid NTP mode from %s: %s", r.Client, recv.Mode)
		return
	}

	s.mu.Lock()
	offset, stratum, kiss, truncate, delay := s.offset, s.stratum, s.kiss, s.truncate, s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	received := ntp.NewTimestamp(r.Received.Add(offset))
	resp := ntp.Packet{
		Leap:      ntp.NOWARNING,
		Version:   ntp.VERSION,
		Mode:      ntp.SERVER,
		Stratum:   stratum,
		Poll:      6,
		Precision: -20,
		Reftime:   received,
		Org:       recv.Xmt,
		Rec:       received,
		Xmt:       ntp.NewTimestamp(time.Now().Add(offset)),
	}
	copy(resp.Refid[:], kiss)

	pkt, err := resp.MarshalBinary()
	if err != nil {
		s.Log.Errorf("Creating NTP packet failed: %v", err)
		return
	}
	if truncate > 0 && truncate < len(pkt) {
		pkt = pkt[:truncate]
	}

	if _, err := s.WriteTo(pkt, r.Client); err != nil {
		s.Log.Errorf("Error sending NTP packet to %s: %v", r.Client, err)
	}
}

// SendFrom writes b to addr from a throwaway socket, simulating a stray or
// spoofed datagram from a peer other than the server.
func SendFrom(b []byte, addr net.Addr) error {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.WriteTo(b, addr)
	return err
}
