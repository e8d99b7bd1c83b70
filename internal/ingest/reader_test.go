package ingest

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/flightdeck/trackerd/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler is a MessageHandler double whose error and call count are
// both inspectable, for testing deliver's error-path behavior.
type fakeHandler struct {
	err   error
	calls int
}

func (h *fakeHandler) UpdateFromMessage(ctx context.Context, msg *message.Message) error {
	h.calls++
	return h.err
}

func newTestClient(t *testing.T, svc *Service) *Client {
	t.Helper()
	server, clientSide := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		clientSide.Close()
	})
	return NewClient(server, svc, true)
}

func TestDeliverClosesClientOnHandlerError(t *testing.T) {
	handler := &fakeHandler{err: errors.New("boom")}
	svc := NewService("test", FramingBeast, message.ModeSChecked, handler)
	c := newTestClient(t, svc)

	ok := svc.deliver(context.Background(), c, &message.Message{})
	assert.False(t, ok, "deliver must report the client should close on a handler error")
	assert.True(t, c.Closed(), "deliver must close the client on a handler error, matching its own doc comment (spec.md §4.1 step 3)")
}

func TestDeliverKeepsClientOpenOnSuccess(t *testing.T) {
	handler := &fakeHandler{}
	svc := NewService("test", FramingBeast, message.ModeSChecked, handler)
	c := newTestClient(t, svc)

	ok := svc.deliver(context.Background(), c, &message.Message{})
	assert.True(t, ok)
	assert.False(t, c.Closed())
	assert.Equal(t, uint64(1), c.MessagesIn)
}

func TestDeliverWithNilHandlerKeepsClientOpen(t *testing.T) {
	svc := NewService("test", FramingBeast, message.ModeSChecked, nil)
	c := newTestClient(t, svc)

	ok := svc.deliver(context.Background(), c, &message.Message{})
	assert.True(t, ok)
	assert.False(t, c.Closed())
}

// sbsLine joins 22 SBS fields (spec.md §6 "SBS") with commas, leaving
// unset fields blank, matching the BaseStation wire format.
func sbsLine(icaoHex, altFt, lat, lon string) string {
	fields := make([]string, SBSFieldCount)
	fields[0] = "MSG"
	fields[1] = "3"
	fields[2] = "1"
	fields[3] = "1"
	fields[4] = icaoHex
	fields[5] = "1"
	fields[6] = "2026/07/30"
	fields[7] = "12:00:00.000"
	fields[8] = "2026/07/30"
	fields[9] = "12:00:00.000"
	fields[11] = altFt
	fields[14] = lat
	fields[15] = lon
	fields[21] = "0"
	return strings.Join(fields, ",")
}

func TestDispatchSBSLinesStopsOnHandlerError(t *testing.T) {
	handler := &fakeHandler{err: errors.New("boom")}
	svc := NewService("test", FramingSBS, message.SBS, handler)
	c := newTestClient(t, svc)

	first := sbsLine("4CA2C5", "38000", "51.5", "-0.1")
	second := sbsLine("4CA2C6", "39000", "51.6", "-0.2")
	buf := []byte(first + "\n" + second + "\n")

	consumed, garbage, remainder, ok := svc.dispatchSBSLines(context.Background(), c, buf)
	assert.False(t, ok, "a handler error on the first line must stop processing and report closure")
	assert.Equal(t, 1, consumed)
	assert.Equal(t, 0, garbage)
	assert.Equal(t, []byte(second+"\n"), remainder, "the second (unprocessed) line must remain in remainder")
	assert.Equal(t, 1, handler.calls, "the second line must not be dispatched once the handler has errored")
}

func TestDispatchSBSLinesCountsMalformedLinesAsGarbage(t *testing.T) {
	handler := &fakeHandler{}
	svc := NewService("test", FramingSBS, message.SBS, handler)
	c := newTestClient(t, svc)

	bad := "not,a,valid,sbs,line\n"
	good := sbsLine("4CA2C5", "38000", "51.5", "-0.1") + "\n"
	buf := []byte(bad + good)

	consumed, garbage, remainder, ok := svc.dispatchSBSLines(context.Background(), c, buf)
	assert.True(t, ok)
	assert.Equal(t, 2, consumed)
	assert.Equal(t, len(bad), garbage)
	assert.Empty(t, remainder)
	assert.Equal(t, 1, handler.calls)
}

func TestDispatchSBSLinesLeavesPartialLineAsRemainder(t *testing.T) {
	handler := &fakeHandler{}
	svc := NewService("test", FramingSBS, message.SBS, handler)
	c := newTestClient(t, svc)

	partial := "MSG,3,1,1,4CA2C5"
	consumed, garbage, remainder, ok := svc.dispatchSBSLines(context.Background(), c, []byte(partial))
	assert.True(t, ok)
	assert.Equal(t, 0, consumed)
	assert.Equal(t, 0, garbage)
	assert.Equal(t, []byte(partial), remainder)
}

func TestProcessBufferedDropsClientOnBeastHandlerError(t *testing.T) {
	handler := &fakeHandler{err: errors.New("boom")}
	svc := NewService("test", FramingBeast, message.ModeSChecked, handler)
	c := newTestClient(t, svc)

	frame := modeSShortFrame()
	c.mu.Lock()
	c.inBuf = append([]byte{}, frame...)
	c.mu.Unlock()

	ok := svc.processBuffered(context.Background(), c)
	assert.False(t, ok, "a handler error must cause processBuffered to signal the client should be dropped")
}

func TestProcessBufferedKeepsClientOnSuccessfulBeastFrame(t *testing.T) {
	handler := &fakeHandler{}
	svc := NewService("test", FramingBeast, message.ModeSChecked, handler)
	c := newTestClient(t, svc)

	frame := modeSShortFrame()
	c.mu.Lock()
	c.inBuf = append([]byte{}, frame...)
	c.mu.Unlock()

	ok := svc.processBuffered(context.Background(), c)
	assert.True(t, ok)
}

func TestProcessBufferedDropsClientOnPersistentGarbage(t *testing.T) {
	handler := &fakeHandler{}
	svc := NewService("test", FramingBeast, message.ModeSChecked, handler)
	c := newTestClient(t, svc)

	garbage := make([]byte, clientGarbageLimit+1)
	for i := range garbage {
		garbage[i] = 0xFF // never 0x1A, so it never resyncs
	}
	c.mu.Lock()
	c.inBuf = garbage
	c.mu.Unlock()

	ok := svc.processBuffered(context.Background(), c)
	require.False(t, ok, "garbage beyond clientGarbageLimit must drop the client")
}
