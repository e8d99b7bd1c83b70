package ingest

import (
	"fmt"
	"math"
	"time"

	"github.com/flightdeck/trackerd/internal/cpr"
	"github.com/flightdeck/trackerd/internal/message"
)

// decodeFrame implements the "decode_frame(bytes, sig_level) -> Message |
// Error" pure function spec.md §1 names as an external collaborator, out
// of core scope. A concrete, local implementation is still needed for
// the pipeline to run end to end; it covers the extended-squitter (DF17/
// 18) message types the tracker's invariants and test scenarios exercise
// (spec.md §4.2, §8) and treats the remaining surveillance-reply formats
// (DF4/5/20/21) as carrying only the fields decodable without an
// interrogator-address table.
func decodeFrame(raw []byte, source message.Source, remote bool, sig uint8, hwClock uint64, client message.ClientRef, now time.Time) (*message.Message, error) {
	if len(raw) != 7 && len(raw) != 14 {
		return nil, fmt.Errorf("ingest: decode: unsupported frame length %d", len(raw))
	}

	df := message.DownlinkFormat(raw[0] >> 3)
	msg := &message.Message{
		DF:                 df,
		Source:             source,
		SystemTime:         now,
		HardwareClock12MHz: hwClock,
		SignalLevel:        sig,
		Remote:             remote,
		Client:             client,
		Raw:                raw,
	}

	switch df {
	case message.DFAllCall:
		if len(raw) != 7 {
			return nil, fmt.Errorf("ingest: decode: DF11 with length %d", len(raw))
		}
		msg.CRCGood = squitterCRCGood(raw)
		msg.AddrICAO = addr24(raw[1:4])
		return msg, nil

	case message.DFExtSquitter, message.DFExtSquitterNon:
		if len(raw) != 14 {
			return nil, fmt.Errorf("ingest: decode: DF%d with length %d", df, len(raw))
		}
		msg.CRCGood = squitterCRCGood(raw)
		msg.AddrICAO = addr24(raw[1:4])
		msg.NonICAO = df == message.DFExtSquitterNon
		decodeExtendedSquitter(raw[4:11], msg)
		return msg, nil

	case message.DFCommBAltitude, message.DFCommDExt:
		if len(raw) == 14 {
			msg.AddrICAO = addr24(raw[len(raw)-3 : len(raw)])
		}
		decodeAC13(raw[2:4], msg)
		return msg, nil

	case message.DFCommBIdent:
		if len(raw) == 14 {
			msg.AddrICAO = addr24(raw[len(raw)-3 : len(raw)])
		}
		decodeID13(raw[2:4], msg)
		return msg, nil

	default:
		// Mode A/C short and other short surveillance replies carry no
		// extractable identity on their own and are returned with only
		// the common fields set; no later step matches them to a Mode S
		// aircraft.
		return msg, nil
	}
}

// addr24 packs a 3-byte big-endian ICAO address field.
func addr24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// decodeExtendedSquitter dispatches on the 5-bit type code at the top of
// the 7-byte ME field (spec.md §4.2 lists the position/velocity/ident
// categories this produces fields for).
func decodeExtendedSquitter(me []byte, msg *message.Message) {
	tc := me[0] >> 3

	switch {
	case tc >= 1 && tc <= 4:
		decodeIdentCategory(tc, me, msg)
	case tc >= 5 && tc <= 8:
		decodeSurfacePosition(tc, me, msg)
	case (tc >= 9 && tc <= 18) || (tc >= 20 && tc <= 22):
		decodeAirbornePosition(tc, me, msg)
	case tc == 19:
		decodeVelocity(me, msg)
	case tc == 28:
		decodeAircraftStatus(me, msg)
	case tc == 31:
		decodeOperationalStatus(me, msg)
	}
}

// callsignAlphabet is the 6-bit character set used by identification
// messages (ICAO Annex 10, the fixed "ADS-B" character map).
const callsignAlphabet = "#ABCDEFGHIJKLMNOPQRSTUVWXYZ#####_###############0123456789######"

var categoryByTypeSub = map[[2]byte]string{
	{1, 0}: "D0", {1, 1}: "D1", {1, 2}: "D2", {1, 3}: "D3", {1, 4}: "D4", {1, 5}: "D5", {1, 6}: "D6", {1, 7}: "D7",
	{2, 0}: "A0", {2, 1}: "A1", {2, 2}: "A2", {2, 3}: "A3", {2, 4}: "A4", {2, 5}: "A5", {2, 6}: "A6", {2, 7}: "A7",
	{3, 0}: "B0", {3, 1}: "B1", {3, 2}: "B2", {3, 3}: "B3", {3, 4}: "B4", {3, 5}: "B5", {3, 6}: "B6", {3, 7}: "B7",
	{4, 0}: "C0", {4, 1}: "C1", {4, 2}: "C2", {4, 3}: "C3", {4, 4}: "C4", {4, 5}: "C5", {4, 6}: "C6", {4, 7}: "C7",
}

// decodeIdentCategory handles TC 1-4, "aircraft identification and
// category" (spec.md §3 "callsign; ... category").
func decodeIdentCategory(tc byte, me []byte, msg *message.Message) {
	sub := me[0] & 0x07
	if cat, ok := categoryByTypeSub[[2]byte{tc, sub}]; ok {
		msg.Fields.HaveCategory = true
		msg.Fields.Category = cat
	}

	bits := extractBits(me, 8, 48) // 48 bits of 6-bit characters, starting after the 8-bit TC+CA
	var cs [8]byte
	for i := 0; i < 8; i++ {
		idx := (bits >> uint(42-6*i)) & 0x3f
		cs[i] = callsignAlphabet[idx]
	}
	callsign := trimCallsign(cs[:])
	if callsign != "" {
		msg.Fields.HaveCallsign = true
		msg.Fields.Callsign = callsign
	}
}

func trimCallsign(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == '#' || b[end-1] == '_') {
		end--
	}
	return string(b[:end])
}

// decodeAirbornePosition handles TC 9-18 (barometric altitude) and
// 20-22 (GNSS altitude), spec.md §4.2 "CPR position decoding".
func decodeAirbornePosition(tc byte, me []byte, msg *message.Message) {
	msg.Fields.HaveGroundBit = true
	msg.Fields.OnGround = false

	altField := uint32(extractBits(me, 8, 12))
	if alt, ok := decodeAC12(altField); ok {
		if tc >= 20 {
			msg.Fields.HaveGeomAlt = true
			msg.Fields.GeomAltFt = alt
		} else {
			msg.Fields.HaveBaroAlt = true
			msg.Fields.BaroAltFt = alt
		}
	}

	decodeCPRField(me, cpr.Airborne, msg)
}

// decodeSurfacePosition handles TC 5-8 (spec.md §4.2 "surface ...
// requires a reference point").
func decodeSurfacePosition(tc byte, me []byte, msg *message.Message) {
	msg.Fields.HaveGroundBit = true
	msg.Fields.OnGround = true

	movement := extractBits(me, 5, 7)
	if movement >= 1 && movement <= 124 {
		msg.Fields.HaveGroundSpeedKt = true
		msg.Fields.GroundSpeedKt = decodeMovement(uint32(movement))
	}

	if extractBits(me, 12, 1) == 1 {
		headingRaw := extractBits(me, 13, 7)
		msg.Fields.HaveTrack = true
		msg.Fields.TrackDeg = float64(headingRaw) * 360.0 / 128.0
	}

	decodeCPRField(me, cpr.Surface, msg)
}

func decodeCPRField(me []byte, typ cpr.PositionType, msg *message.Message) {
	msg.Fields.HaveCPR = true
	if typ == cpr.Surface {
		msg.Fields.CPRType = message.CPRSurface
	} else {
		msg.Fields.CPRType = message.CPRAirborne
	}
	msg.Fields.CPROdd = extractBits(me, 21, 1) == 1
	msg.Fields.CPRLatEnc = uint32(extractBits(me, 22, 17))
	msg.Fields.CPRLonEnc = uint32(extractBits(me, 39, 17))
}

// decodeVelocity handles TC 19, subtypes 1-2 (ground velocity, NS/EW)
// and 3-4 (airspeed + heading), spec.md §3 "ground speed; ... heading".
func decodeVelocity(me []byte, msg *message.Message) {
	subtype := me[0] & 0x07

	switch subtype {
	case 1, 2:
		ewSign := extractBits(me, 13, 1)
		ewVel := extractBits(me, 14, 10)
		nsSign := extractBits(me, 24, 1)
		nsVel := extractBits(me, 25, 10)
		if ewVel == 0 || nsVel == 0 {
			return
		}
		ew := float64(ewVel - 1)
		if ewSign == 1 {
			ew = -ew
		}
		ns := float64(nsVel - 1)
		if nsSign == 1 {
			ns = -ns
		}
		if subtype == 2 {
			ew *= 4
			ns *= 4
		}
		speed := hypot(ew, ns)
		msg.Fields.HaveGroundSpeedKt = true
		msg.Fields.GroundSpeedKt = speed
		msg.Fields.HaveTrack = true
		msg.Fields.TrackDeg = headingFromComponents(ew, ns)

	case 3, 4:
		if extractBits(me, 13, 1) == 1 {
			hdgRaw := extractBits(me, 14, 10)
			msg.Fields.HaveMagHeading = true
			msg.Fields.MagHeadingDeg = float64(hdgRaw) * 360.0 / 1024.0
		}
		asRaw := extractBits(me, 25, 10)
		if asRaw > 0 {
			speed := float64(asRaw - 1)
			if subtype == 4 {
				speed *= 4
			}
			if extractBits(me, 24, 1) == 1 {
				msg.Fields.HaveTAS = true
				msg.Fields.TASKt = speed
			} else {
				msg.Fields.HaveIAS = true
				msg.Fields.IASKt = speed
			}
		}
	}

	vrSign := extractBits(me, 35, 1)
	vrRaw := extractBits(me, 36, 9)
	if vrRaw > 0 {
		rate := float64(vrRaw-1) * 64
		if vrSign == 1 {
			rate = -rate
		}
		if extractBits(me, 34, 1) == 1 {
			msg.Fields.HaveGeomRate = true
			msg.Fields.GeomRateFpm = rate
		} else {
			msg.Fields.HaveBaroRate = true
			msg.Fields.BaroRateFpm = rate
		}
	}
}

// decodeAircraftStatus handles TC 28 (emergency/priority status, spec.md
// §3 "emergency").
func decodeAircraftStatus(me []byte, msg *message.Message) {
	subtype := me[0] & 0x07
	if subtype != 1 {
		return
	}
	emergencyState := extractBits(me, 5, 3)
	msg.Fields.HaveEmergency = true
	msg.Fields.Emergency = emergencyStateNames[emergencyState]

	squawk := extractBits(me, 8, 13)
	msg.Fields.HaveSquawk = true
	msg.Fields.Squawk = decodeGillhamSquawk(uint32(squawk))
}

var emergencyStateNames = [8]string{
	"none", "general", "lifeguard", "minfuel", "nordo", "unlawful", "downed", "reserved",
}

// decodeOperationalStatus handles TC 31 (spec.md §3 "Fused scalars" ...
// "Accuracy fields").
func decodeOperationalStatus(me []byte, msg *message.Message) {
	subtype := me[0] & 0x07
	if subtype != 0 && subtype != 1 {
		return
	}

	msg.Fields.HaveNACv = true
	msg.Fields.NACv = int(extractBits(me, 42, 3))
	msg.Fields.HaveNIC = true
	msg.Fields.HaveSIL = true
	msg.Fields.SIL = int(extractBits(me, 51, 2))

	nicSupplA := extractBits(me, 39, 1)
	if subtype == 0 {
		// Airborne: NIC supplement A combines with the TC already seen
		// on position messages to resolve NIC/Rc; without that context
		// here we record only the bit, matching the tracker's own
		// deferred NIC/Rc resolution (spec.md §4.2).
		msg.Fields.NIC = int(nicSupplA)

		// Airborne opstatus also carries the HRD/TAH heading-disambiguation
		// bits the tracker caches onto the Aircraft record (spec.md §4.2
		// "Heading resolution").
		msg.Fields.HaveHRD = true
		msg.Fields.HRD = extractBits(me, 54, 1) == 1
		msg.Fields.HaveTAH = true
		msg.Fields.TAH = extractBits(me, 55, 1) == 1
	}
}

// decodeAC12 decodes a 12-bit Mode-S altitude code. Bit 4 (from the LSB,
// the "Q-bit") set means 25 ft linear steps; clear means the legacy
// 100/500 ft Gillham coding (ICAO Annex 10, a fixed standard table).
func decodeAC12(field uint32) (float64, bool) {
	if field == 0 {
		return 0, false
	}
	if field&0x10 != 0 {
		n := ((field & 0xfe0) >> 1) | (field & 0xf)
		return float64(n)*25 - 1000, true
	}
	return decodeGillhamAltitude(field)
}

// decodeGillhamAltitude decodes the legacy (non-Q-bit) 12-bit Gillham
// altitude coding into 100 ft increments (dump1090-style derivation of
// the ICAO Annex 10 C1-A1-C2-A2-C4-A4-[M]-B1-[X]-B2-D2-B4 layout).
func decodeGillhamAltitude(field uint32) (float64, bool) {
	c1 := (field >> 11) & 1
	a1 := (field >> 10) & 1
	c2 := (field >> 9) & 1
	a2 := (field >> 8) & 1
	c4 := (field >> 7) & 1
	a4 := (field >> 6) & 1
	b1 := (field >> 4) & 1
	b2 := (field >> 2) & 1
	d2 := (field >> 1) & 1
	b4 := field & 1

	hundreds := grayToBinary(a1<<2 | a2<<1 | a4)
	fives := grayToBinary(b1<<2 | b2<<1 | b4)
	tens := grayToBinary(c1<<2 | c2<<1 | c4)

	if hundreds == 0 || hundreds == 5 || hundreds == 6 {
		return 0, false
	}
	if hundreds == 7 {
		hundreds = 5
	}
	if tens%2 == 1 {
		fives = 6 - fives
	}
	_ = d2 // surplus low-order bit, unused at 100 ft resolution

	return float64(hundreds)*500 + float64(tens)*100 + float64(fives)*100/5 - 1000, true
}

func grayToBinary(g uint32) uint32 {
	b := g
	for shift := uint(1); shift < 3; shift++ {
		b ^= g >> shift
	}
	return b
}

// decodeAC13 decodes a DF4/20 13-bit altitude reply field (spec.md §1:
// treated locally only to the extent it does not need an interrogator
// table).
func decodeAC13(b []byte, msg *message.Message) {
	field := uint32(b[0])<<8 | uint32(b[1])
	field &^= 1 << 14 // clear the first reply-field bit, not part of AC13
	mBit := (field >> 6) & 1
	if mBit == 1 {
		return // metric altitude coding, not produced by any observed fleet; skip
	}
	qBit := (field >> 4) & 1
	ac12 := ((field & 0x1fe0) >> 1) | (field & 0xf)
	if qBit == 1 {
		n := ac12
		msg.Fields.HaveBaroAlt = true
		msg.Fields.BaroAltFt = float64(n)*25 - 1000
		return
	}
	if alt, ok := decodeAC12(ac12); ok {
		msg.Fields.HaveBaroAlt = true
		msg.Fields.BaroAltFt = alt
	}
}

// decodeID13 decodes a DF5/21 13-bit identity (squawk) reply field.
func decodeID13(b []byte, msg *message.Message) {
	field := uint32(b[0])<<8 | uint32(b[1])
	field &^= 1 << 14
	msg.Fields.HaveSquawk = true
	msg.Fields.Squawk = decodeGillhamSquawk(field)
}

// decodeGillhamSquawk unpacks a 13-bit Gillham-coded identity field into
// a 4-digit octal squawk string (ICAO Annex 10 A/C transponder code).
func decodeGillhamSquawk(field uint32) string {
	c1 := (field >> 12) & 1
	a1 := (field >> 11) & 1
	c2 := (field >> 10) & 1
	a2 := (field >> 9) & 1
	c4 := (field >> 8) & 1
	a4 := (field >> 7) & 1
	b1 := (field >> 5) & 1
	b2 := (field >> 4) & 1
	b4 := (field >> 3) & 1
	d1 := (field >> 2) & 1
	d2 := (field >> 1) & 1
	d4 := field & 1

	a := a4<<2 | a2<<1 | a1
	b := b4<<2 | b2<<1 | b1
	c := c4<<2 | c2<<1 | c1
	d := d4<<2 | d2<<1 | d1
	return fmt.Sprintf("%d%d%d%d", a, b, c, d)
}

// decodeMovement maps a TC 5-8 surface-movement field (1-124) to knots
// per the piecewise table in the ADS-B surface-position standard.
func decodeMovement(v uint32) float64 {
	switch {
	case v == 1:
		return 0
	case v >= 2 && v <= 8:
		return 0.125 * float64(v-1)
	case v >= 9 && v <= 12:
		return 1 + 0.25*float64(v-9)
	case v >= 13 && v <= 38:
		return 2 + 0.5*float64(v-13)
	case v >= 39 && v <= 93:
		return 15 + 1*float64(v-39)
	case v >= 94 && v <= 108:
		return 70 + 2*float64(v-94)
	case v >= 109 && v <= 123:
		return 100 + 5*float64(v-109)
	default:
		return 175
	}
}

// extractBits reads n bits from b starting at bit offset start (counting
// from the most significant bit of b[0] as bit 0), matching the
// ADS-B/Mode-S convention used throughout the ME-field layouts above.
func extractBits(b []byte, start, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		bitIdx := start + i
		byteIdx := bitIdx / 8
		if byteIdx >= len(b) {
			break
		}
		bit := (b[byteIdx] >> uint(7-bitIdx%8)) & 1
		v = v<<1 | uint64(bit)
	}
	return v
}

func hypot(a, b float64) float64 {
	return math.Hypot(a, b)
}

func headingFromComponents(ew, ns float64) float64 {
	deg := math.Atan2(ew, ns) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
