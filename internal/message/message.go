package message

import "time"

// DownlinkFormat is the Mode-S downlink format (DF) field carried by a
// demodulated frame, used upstream of this package by the ingest framer
// and consulted by the tracker for address-reliability and CPR framing.
type DownlinkFormat int

const (
	DFUnknown        DownlinkFormat = -1
	DFModeACShort    DownlinkFormat = 0
	DFAllCall        DownlinkFormat = 11 // DF11, CRC-verified, no interrogator id
	DFLongAirAir     DownlinkFormat = 16
	DFExtSquitter    DownlinkFormat = 17 // ADS-B
	DFExtSquitterNon DownlinkFormat = 18 // TIS-B / ADS-R via non-transponder squitter
	DFCommBAltitude  DownlinkFormat = 20
	DFCommBIdent     DownlinkFormat = 21
	DFCommDExt       DownlinkFormat = 24
)

// ClientRef is the minimal back-pointer a Message needs into its owning
// Client for accounting (spec.md §3 "Message"); the ingest package
// implements the concrete Client and satisfies this via a thin wrapper so
// internal/message has no dependency on internal/ingest.
type ClientRef interface {
	// ReceiverID returns the client's 128-bit receiver id as a string key.
	ReceiverID() string
}

// Message is the transient decoded frame handed to the tracker. It is
// never stored: update_from_message consumes it and discards it.
type Message struct {
	// AddrICAO is the 24-bit address; NonICAO marks a non-transponder
	// (e.g. TIS-B track file) address, together forming the 25-bit
	// logical identity (spec.md §3 "Aircraft").
	AddrICAO uint32
	NonICAO  bool

	DF     DownlinkFormat
	Source Source

	// SystemTime is the wall-clock stamp assigned on receipt.
	SystemTime time.Time
	// HardwareClock12MHz is the 6-byte 12 MHz Beast timestamp, or 0 if
	// the frame didn't carry one (e.g. ASCII/SBS input).
	HardwareClock12MHz uint64

	// SignalLevel is the Beast 1-byte RSSI-like signal field, 0 if unset.
	SignalLevel uint8
	// CRCGood indicates the frame's CRC (or parity, for Mode A/C)
	// checked out; it is how the ingest framer distinguishes
	// ModeSChecked from plain ModeS on BEAST-in (spec.md §4.1).
	CRCGood bool

	// Remote is true for frames that arrived over the network (BEAST-in
	// from a peer, SBS-in) rather than from a locally attached SDR.
	Remote bool

	Client ClientRef

	// Raw is the undecoded payload, kept for diagnostics and for
	// handlers (e.g. SBS) that need to re-parse fields the generic
	// decoder didn't extract.
	Raw []byte

	Fields Fields
}

// Fields holds the parsed scalar fields a single frame may carry. Not
// every frame populates every field; the tracker consults ValidFoo flags
// (or zero-value checks where a field has no natural invalid marker)
// before using one. This mirrors the "decoded frame plus parsed fields"
// wording in spec.md §3 without prescribing one Mode-S message type per
// field -- a single extended-squitter frame can carry several of these
// at once depending on its type code.
type Fields struct {
	HaveBaroAlt bool
	BaroAltFt   float64

	HaveGeomAlt   bool
	GeomAltFt     float64
	HaveGeomDelta bool
	GeomDeltaFt   float64

	HaveGroundSpeedKt bool
	GroundSpeedKt     float64
	HaveIAS           bool
	IASKt             float64
	HaveTAS           bool
	TASKt             float64
	HaveMach          bool
	Mach              float64

	HaveTrack       bool
	TrackDeg        float64
	HaveMagHeading  bool
	MagHeadingDeg   float64
	HaveTrueHeading bool
	TrueHeadingDeg  float64
	// HeadingAmbiguous marks a heading field that needs opstatus-cached
	// HRD/TAH bits to disambiguate (ground-track vs true vs
	// magnetic-or-true vs track-or-heading), per spec.md §4.2.
	HeadingAmbiguous bool

	// HaveHRD/HaveTAH carry a fresh opstatus HRD/TAH bit, cached by the
	// tracker onto the Aircraft record for later heading resolution
	// (spec.md §4.2 "Heading resolution").
	HaveHRD bool
	HRD     bool
	HaveTAH bool
	TAH     bool

	HaveBaroRate bool
	BaroRateFpm  float64
	HaveGeomRate bool
	GeomRateFpm  float64

	HaveSquawk bool
	Squawk     string

	HaveCallsign bool
	Callsign     string

	HaveEmergency bool
	Emergency     string

	HaveCategory bool
	Category     string

	// Nav intent (MCP/FMS/QNH), spec.md §3 "Fused scalars".
	HaveNavAltitudeMCP bool
	NavAltitudeMCPFt   float64
	HaveNavAltitudeFMS bool
	NavAltitudeFMSFt   float64
	HaveNavHeading     bool
	NavHeadingDeg      float64
	HaveNavQNH         bool
	NavQNHMb           float64
	HaveNavModes       bool
	NavModes           []string

	// Accuracy fields (spec.md §3 "Fused scalars").
	HaveNACp bool
	NACp     int
	HaveNACv bool
	NACv     int
	HaveSIL  bool
	SIL      int
	HaveGVA  bool
	GVA      int
	HaveSDA  bool
	SDA      int
	HaveNIC  bool
	NIC      int
	HaveRc   bool
	RcMeters float64

	// CPR raw frame, present on airborne/surface position messages.
	HaveCPR   bool
	CPRType   CPRPositionType
	CPROdd    bool
	CPRLatEnc uint32
	CPRLonEnc uint32

	// DirectPosition carries an already-resolved lat/lon, as reported by
	// sources that do their own position fix instead of transmitting raw
	// CPR (SBS/BaseStation text feeds, MLAT hubs), spec.md §4.2 "Position
	// acceptance".
	HaveDirectPosition bool
	DirectLat          float64
	DirectLon          float64

	HaveGroundBit bool
	OnGround      bool
}

// CPRPositionType distinguishes the two CPR decode modes named in
// spec.md §4.2.
type CPRPositionType int

const (
	CPRAirborne CPRPositionType = iota
	CPRSurface
)
