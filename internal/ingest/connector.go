package ingest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/flightdeck/trackerd/internal/monitoring"
)

// ConnectorState is the outbound-connector state machine (spec.md §4.1
// "Outbound connectors"): DISCONNECTED -> RESOLVING -> CONNECTING ->
// CONNECTED -> DISCONNECTED on any I/O failure.
type ConnectorState int

const (
	StateDisconnected ConnectorState = iota
	StateResolving
	StateConnecting
	StateConnected
)

func (s ConnectorState) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// dialTimeout bounds a single connect attempt (spec.md §5 "Outbound
// connects have an explicit deadline per attempt").
const dialTimeout = 10 * time.Second

// Connector owns one outbound (host, port) target's reconnect state
// machine, one goroutine per connector per spec.md §6.1 supplement
// ("one goroutine owns one connector's state machine").
type Connector struct {
	svc   *Service
	host  string
	port  int
	delay time.Duration // net_connector_delay: minimum backoff between full attempts

	mu     sync.Mutex
	state  ConnectorState
	client *Client
}

// NewConnector creates a Connector targeting host:port, backing off at
// least delay between attempts.
func NewConnector(svc *Service, host string, port int, delay time.Duration) *Connector {
	return &Connector{svc: svc, host: host, port: port, delay: delay}
}

// State returns the connector's current state.
func (c *Connector) State() ConnectorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connector) setState(s ConnectorState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start launches the connector's reconnect-loop goroutine; it exits
// when ctx is cancelled.
func (c *Connector) Start(ctx context.Context) {
	go c.run(ctx)
}

// Stop disconnects the current client, if any; the run loop's next
// context check will then exit.
func (c *Connector) Stop() {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

func (c *Connector) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.attempt(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.delay):
		}
	}
}

// attempt runs one full RESOLVING -> CONNECTING -> CONNECTED cycle and
// blocks until the connection drops or ctx is cancelled.
func (c *Connector) attempt(ctx context.Context) {
	c.setState(StateResolving)
	addr := fmt.Sprintf("%s:%d", c.host, c.port)

	c.setState(StateConnecting)
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.setState(StateDisconnected)
		monitoring.Logf("ingest: %s connector %s: dial failed: %v", c.svc.Name, addr, err)
		return
	}

	client := NewClient(conn, c.svc, true)
	c.mu.Lock()
	c.client = client
	c.state = StateConnected
	c.mu.Unlock()

	c.svc.addClient(client)
	monitoring.Logf("ingest: %s connector %s: connected", c.svc.Name, addr)

	c.svc.clientReadLoop(ctx, client)

	c.svc.DropClient(client)
	c.mu.Lock()
	c.client = nil
	c.state = StateDisconnected
	c.mu.Unlock()
}
