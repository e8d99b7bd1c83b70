package ingest

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Framing names the per-service byte-stream decoding mode (spec.md §4.1
// "Services and framing modes").
type Framing int

const (
	FramingIgnore Framing = iota
	FramingASCII
	FramingBeast
	FramingBeastCommand
	FramingSBS
)

// clientBufSize is the client read buffer size; a message that never
// completes within it is garbage (spec.md §4.1 step 1).
const clientBufSize = 64 * 1024

// clientGarbageLimit is the persistent-garbage threshold that causes a
// client to be dropped (spec.md §4.1 step 2).
const clientGarbageLimit = 512

// clientSendQueueCap is the per-client outbound queue cap (spec.md §4.1
// "Outbound writers").
const clientSendQueueCap = 128 * 1024

// clientSendDrainTimeout is how long a stalled send queue may go
// undrained before the client is dropped (spec.md §4.1/§5).
const clientSendDrainTimeout = 5 * time.Second

// Client is a single peer connection (spec.md §3 "Client").
type Client struct {
	Conn net.Conn

	Host string
	Port string

	ReceiverIDValue uuid.UUID

	Service *Service

	// Remote marks a network client, whether accepted from a peer or
	// dialed by an outbound connector reading from a configured peer;
	// both set Remote=true on decoded messages per spec.md §4.1 "Source
	// tagging" ("BEAST-in from a remote peer").
	Remote bool

	mu          sync.Mutex
	inBuf       []byte
	outQueue    []byte
	lastRead    time.Time
	garbageRun  int
	closed      bool

	MessagesIn  uint64
	BytesIn     uint64
	BytesOut    uint64
	GarbageDrop uint64
}

// NewClient wraps conn as a freshly-accepted or freshly-dialed Client
// belonging to svc.
func NewClient(conn net.Conn, svc *Service, remote bool) *Client {
	host, port, _ := net.SplitHostPort(conn.RemoteAddr().String())
	return &Client{
		Conn:            conn,
		Host:            host,
		Port:            port,
		ReceiverIDValue: uuid.New(),
		Service:         svc,
		Remote:          remote,
		lastRead:        time.Now(),
	}
}

// ReceiverID satisfies message.ClientRef.
func (c *Client) ReceiverID() string { return c.ReceiverIDValue.String() }

// Closed reports whether Close has already run.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the underlying connection exactly once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Conn.Close()
}

// touchLastRead stamps the last successful read time, used by the idle/
// heartbeat-timeout check (spec.md §4.1 step 4).
func (c *Client) touchLastRead(now time.Time) {
	c.mu.Lock()
	c.lastRead = now
	c.mu.Unlock()
}

// IdleFor reports how long it has been since the last successful read.
func (c *Client) IdleFor(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastRead)
}

// Enqueue appends data to the client's outbound send queue,
// non-blocking; returns false (and expects the caller to drop the
// client) if the queue would exceed clientSendQueueCap.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.outQueue)+len(data) > clientSendQueueCap {
		return false
	}
	c.outQueue = append(c.outQueue, data...)
	return true
}

// drain writes as much of the queue as the connection will accept
// without blocking indefinitely (the caller sets a write deadline).
func (c *Client) drain() (int, error) {
	c.mu.Lock()
	pending := c.outQueue
	c.mu.Unlock()
	if len(pending) == 0 {
		return 0, nil
	}

	c.Conn.SetWriteDeadline(time.Now().Add(clientSendDrainTimeout))
	n, err := c.Conn.Write(pending)

	c.mu.Lock()
	c.outQueue = c.outQueue[n:]
	c.BytesOut += uint64(n)
	c.mu.Unlock()
	return n, err
}

// QueueLen reports the current outbound queue length, for tests and
// back-pressure metrics.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outQueue)
}
