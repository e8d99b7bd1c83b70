package ingest

import (
	"context"
	"time"

	"github.com/flightdeck/trackerd/internal/message"
	"github.com/flightdeck/trackerd/internal/monitoring"
)

// readIterationCap and readWallClockCap bound the per-wakeup inner read
// loop for one client (spec.md §4.1 step 1: "at most 32 iterations, hard
// capped at ~200ms of wall clock to preserve fairness" across the many
// clients a single reader goroutine can be asked to service in the
// non-blocking scheduler variant; here each client has its own
// goroutine, but the same cap still bounds how long a single burst of
// reads may starve that client's own heartbeat/idle accounting).
const (
	readIterationCap  = 32
	readWallClockCap  = 200 * time.Millisecond
	readDeadlineSlice = 500 * time.Millisecond
)

// clientReadLoop owns one client's entire lifetime: it reads, frames,
// decodes, and dispatches to the service's handler until the connection
// closes, the context is cancelled, or the client is dropped for
// misbehavior (spec.md §4.1 "Client read loop").
func (s *Service) clientReadLoop(ctx context.Context, c *Client) {
	defer s.DropClient(c)

	readBuf := make([]byte, 16*1024)
	for {
		if ctx.Err() != nil {
			return
		}

		deadline := time.Now().Add(readWallClockCap)
		iterations := 0
		for iterations < readIterationCap && time.Now().Before(deadline) {
			iterations++

			c.Conn.SetReadDeadline(time.Now().Add(readDeadlineSlice))
			n, err := c.Conn.Read(readBuf)
			if n > 0 {
				c.mu.Lock()
				c.inBuf = append(c.inBuf, readBuf[:n]...)
				c.BytesIn += uint64(n)
				if len(c.inBuf) > clientBufSize {
					// A frame that never completes within the buffer is
					// garbage (spec.md §4.1 step 1); drop the oldest half
					// to bound memory and let framing resync.
					c.garbageRun += len(c.inBuf) / 2
					c.inBuf = c.inBuf[len(c.inBuf)/2:]
				}
				c.mu.Unlock()
				c.touchLastRead(time.Now())
			}
			if err != nil {
				if isTimeout(err) {
					break
				}
				return
			}

			if !s.processBuffered(ctx, c) {
				return
			}
		}

		if _, err := c.drain(); err != nil {
			return
		}

		if idle := c.IdleFor(time.Now()); s.HeartbeatInterval > 0 && idle > s.HeartbeatInterval+5*time.Second {
			monitoring.Logf("ingest: %s client %s:%s idle %s, dropping", s.Name, c.Host, c.Port, idle)
			return
		}
	}
}

// processBuffered frames and dispatches every complete message currently
// sitting in c.inBuf, tracking garbage and returning false if the client
// should be dropped (spec.md §4.1 step 2).
func (s *Service) processBuffered(ctx context.Context, c *Client) bool {
	c.mu.Lock()
	buf := c.inBuf
	c.mu.Unlock()
	if len(buf) == 0 {
		return true
	}

	var garbage int
	var remainder []byte

	closeClient := false

	switch s.Framing {
	case FramingBeast, FramingBeastCommand:
		frames, g, rem := ScanBeastFrames(buf)
		garbage, remainder = g, rem
		for _, f := range frames {
			if !s.dispatchBeastFrame(ctx, c, f) {
				closeClient = true
				break
			}
		}

	case FramingASCII:
		frames, g, rem := ScanAsciiFrames(buf)
		garbage, remainder = g, rem
		for _, f := range frames {
			if !s.dispatchAsciiFrame(ctx, c, f) {
				closeClient = true
				break
			}
		}

	case FramingSBS:
		consumed, g, rem, ok := s.dispatchSBSLines(ctx, c, buf)
		garbage, remainder = g, rem
		closeClient = !ok
		_ = consumed

	default:
		remainder = nil
	}

	c.mu.Lock()
	c.inBuf = remainder
	c.garbageRun += garbage
	run := c.garbageRun
	if garbage == 0 && len(remainder) < len(buf) {
		// Forward progress was made on real frames; reset the garbage
		// streak (spec.md §4.1 step 2: the limit tracks *persistent*
		// garbage, not a lifetime total).
		c.garbageRun = 0
		run = 0
	}
	c.GarbageDrop += uint64(garbage)
	c.mu.Unlock()

	if closeClient {
		return false
	}
	if run > clientGarbageLimit {
		monitoring.Logf("ingest: %s client %s:%s exceeded garbage limit, dropping", s.Name, c.Host, c.Port)
		return false
	}
	return true
}

// dispatchBeastFrame decodes and delivers one Beast frame, returning false
// if the handler reported a fatal error and the client must be dropped
// (spec.md §4.1 step 3).
func (s *Service) dispatchBeastFrame(ctx context.Context, c *Client, f BeastFrame) bool {
	var payloadLen int
	switch f.Type {
	case beastTypeModeSShort:
		payloadLen = 7
	case beastTypeModeSLong:
		payloadLen = 14
	default:
		return true
	}
	if len(f.Payload) != payloadLen {
		return true
	}

	crcGood := squitterCRCGood(f.Payload)
	msg, err := decodeFrame(f.Payload, s.sourceFor(crcGood), c.Remote, f.SignalLevel, f.TimestampNS, c, time.Now())
	if err != nil {
		return true
	}
	msg.CRCGood = crcGood
	return s.deliver(ctx, c, msg)
}

// dispatchAsciiFrame decodes and delivers one AVR/ASCII frame, returning
// false if the client must be dropped (spec.md §4.1 step 3).
func (s *Service) dispatchAsciiFrame(ctx context.Context, c *Client, f AsciiFrame) bool {
	crcGood := squitterCRCGood(f.Payload)
	msg, err := decodeFrame(f.Payload, s.sourceFor(crcGood), c.Remote, f.SignalLevel, f.TimestampNS, c, time.Now())
	if err != nil {
		return true
	}
	msg.CRCGood = crcGood
	return s.deliver(ctx, c, msg)
}

// dispatchSBSLines splits buf on newlines and parses each complete line,
// returning the count of malformed lines as garbage, any trailing partial
// line as the remainder (spec.md §6 "SBS"), and whether the client should
// stay open (false if a handler error requires dropping it, spec.md §4.1
// step 3).
func (s *Service) dispatchSBSLines(ctx context.Context, c *Client, buf []byte) (consumed, garbage int, remainder []byte, ok bool) {
	for len(buf) > 0 {
		idx := indexByte(buf, '\n')
		if idx < 0 {
			return consumed, garbage, buf, true
		}
		line := buf[:idx]
		buf = buf[idx+1:]
		consumed++

		sbs, err := ParseSBSLine(string(line))
		if err != nil {
			garbage += len(line) + 1
			continue
		}
		if !s.deliver(ctx, c, sbsToMessage(sbs, c, time.Now())) {
			return consumed, garbage, buf, false
		}
	}
	return consumed, garbage, buf, true
}

func sbsToMessage(sbs SBSLine, c *Client, now time.Time) *message.Message {
	msg := &message.Message{
		Source:     message.SBS,
		SystemTime: now,
		Remote:     c.Remote,
		Client:     c,
		CRCGood:    true,
	}
	addr, err := parseHexUint([]byte(sbs.ICAOHex))
	if err == nil {
		msg.AddrICAO = uint32(addr)
	}

	f := &msg.Fields
	if sbs.HaveCallsign {
		f.HaveCallsign, f.Callsign = true, sbs.Callsign
	}
	if sbs.HaveAltitudeFt {
		f.HaveBaroAlt, f.BaroAltFt = true, sbs.AltitudeFt
	}
	if sbs.HaveGroundSpeedKt {
		f.HaveGroundSpeedKt, f.GroundSpeedKt = true, sbs.GroundSpeedKt
	}
	if sbs.HaveTrack {
		f.HaveTrack, f.TrackDeg = true, sbs.TrackDeg
	}
	if sbs.HaveVerticalRate {
		f.HaveBaroRate, f.BaroRateFpm = true, sbs.VerticalRateFpm
	}
	if sbs.HaveSquawk {
		f.HaveSquawk, f.Squawk = true, sbs.Squawk
	}
	if sbs.HaveGround {
		f.HaveGroundBit, f.OnGround = true, sbs.IsOnGround
	}
	if sbs.HaveLat && sbs.HaveLon {
		// SBS carries an already-resolved position, not a raw CPR pair;
		// the tracker accepts this directly as an MLAT/SBS-sourced fix
		// rather than running it through CPR decode (spec.md §4.2
		// "Position acceptance").
		f.HaveDirectPosition = true
		f.DirectLat = sbs.Lat
		f.DirectLon = sbs.Lon
	}
	return msg
}

// deliver hands a decoded message to the service's handler, reporting
// whether the client should stay open. A non-zero return from the handler
// closes the client (spec.md §4.1 step 3); the caller still owns tearing
// down its own read loop once this returns false.
func (s *Service) deliver(ctx context.Context, c *Client, msg *message.Message) bool {
	c.mu.Lock()
	c.MessagesIn++
	c.mu.Unlock()

	if s.Handler == nil {
		return true
	}
	if err := s.Handler.UpdateFromMessage(ctx, msg); err != nil {
		monitoring.Logf("ingest: %s client %s:%s handler error: %v", s.Name, c.Host, c.Port, err)
		c.Close()
		return false
	}
	return true
}

func isTimeout(err error) bool {
	type timeoutErr interface{ Timeout() bool }
	te, ok := err.(timeoutErr)
	return ok && te.Timeout()
}
