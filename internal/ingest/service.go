package ingest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/flightdeck/trackerd/internal/message"
	"github.com/flightdeck/trackerd/internal/monitoring"
)

// MessageHandler is the tracker-facing entry point the ingest pipeline
// invokes inline on the reading goroutine for every decoded message
// (spec.md §4.2 "update_from_message(Message) -> Aircraft | null"). It
// is an interface, not a concrete *tracker.Tracker, so internal/ingest
// never needs to import internal/tracker.
type MessageHandler interface {
	UpdateFromMessage(ctx context.Context, msg *message.Message) error
}

// Service is a logical protocol endpoint: a listener set, its clients,
// and an optional shared outbound writer (spec.md §3 "Service").
type Service struct {
	Name       string
	Framing    Framing
	SourceHint message.Source // the fixed source tag this service's decode handler assigns; see sourceFor

	Handler MessageHandler

	HeartbeatInterval time.Duration

	Writer *NetWriter

	listener net.Listener

	mu      sync.RWMutex
	clients map[*Client]struct{}

	connectors []*Connector
}

// NewService creates a Service. Call Listen to accept inbound peers,
// AddConnector to dial outbound ones, or both.
func NewService(name string, framing Framing, sourceHint message.Source, handler MessageHandler) *Service {
	svc := &Service{
		Name:              name,
		Framing:           framing,
		SourceHint:        sourceHint,
		Handler:           handler,
		HeartbeatInterval: 90 * time.Second,
		clients:           make(map[*Client]struct{}),
	}
	svc.Writer = NewNetWriter(svc)
	return svc
}

// Listen binds addr and starts accepting connections. A bind failure is
// fatal per spec.md §4.1 "listen()/bind() failures at startup are
// fatal" -- the caller (cmd/trackerd) turns the returned error into
// os.Exit(1).
func (s *Service) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ingest: listen %s (%s): %w", s.Name, addr, err)
	}
	s.listener = ln

	go s.acceptLoop(ctx)
	return nil
}

func (s *Service) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			monitoring.Logf("ingest: %s accept error: %v", s.Name, err)
			continue
		}
		c := NewClient(conn, s, true)
		s.addClient(c)
		monitoring.Logf("ingest: %s client connected from %s:%s", s.Name, c.Host, c.Port)
		go s.clientReadLoop(ctx, c)
	}
}

// Close stops accepting new connections and closes every current
// client.
func (s *Service) Close() error {
	if s.listener != nil {
		s.listener.Close()
	}
	for _, c := range s.Clients() {
		s.DropClient(c)
	}
	for _, conn := range s.connectors {
		conn.Stop()
	}
	return nil
}

func (s *Service) addClient(c *Client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

// DropClient closes and removes a client (spec.md §4.1 "Failure
// semantics").
func (s *Service) DropClient(c *Client) {
	c.Close()
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	monitoring.Logf("ingest: %s client %s:%s disconnected", s.Name, c.Host, c.Port)
}

// Clients returns a snapshot of the current client set.
func (s *Service) Clients() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

// AddConnector registers an outbound connector belonging to this
// service and starts its state machine (spec.md §4.1 "Outbound
// connectors").
func (s *Service) AddConnector(ctx context.Context, host string, port int, delay time.Duration) *Connector {
	conn := NewConnector(s, host, port, delay)
	s.connectors = append(s.connectors, conn)
	conn.Start(ctx)
	return conn
}

// sourceFor resolves the per-message source tag given this service's
// fixed hint and, for BEAST-in, the frame's CRC outcome (spec.md §4.1
// "Source tagging": "BEAST-in from a remote peer is MODE_S_CHECKED for
// CRC-good frames, MODE_S otherwise").
func (s *Service) sourceFor(crcGood bool) message.Source {
	if s.Framing == FramingBeast && s.SourceHint == message.ModeSChecked && !crcGood {
		return message.ModeS
	}
	return s.SourceHint
}
