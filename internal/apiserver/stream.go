package apiserver

import (
	"google.golang.org/grpc"
)

// StreamRequest is what a client sends to open the aircraft update
// stream, mirroring visualiser.StreamRequest's "pre-generation" shape in
// the teacher repo (a plain struct standing in for a proto message that
// has no .proto file behind it here either).
type StreamRequest struct {
	// SensorID names one receiver of a station that forwards from more
	// than one front end. The Publisher does not filter on it; every
	// stream carries all aircraft.
	SensorID string
	// MinIntervalMillis throttles how often this client receives a
	// batch, independent of the server's own snapshot cadence.
	MinIntervalMillis int
}

// AircraftUpdateBatch is one pushed frame of live aircraft state: a
// timestamp plus one AircraftUpdate per aircraft.
type AircraftUpdateBatch struct {
	NowMillis int64            `json:"now_ms"`
	Aircraft  []AircraftUpdate `json:"aircraft"`
}

// AircraftUpdate is the streaming-channel twin of snapshot.AircraftDoc,
// trimmed to the fields a live map view actually redraws per tick.
type AircraftUpdate struct {
	Hex       string   `json:"hex"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	AltFt     *float64 `json:"alt_baro,omitempty"`
	Track     *float64 `json:"track,omitempty"`
	GSKt      *float64 `json:"gs,omitempty"`
	Callsign  string   `json:"flight,omitempty"`
	GroundAir string   `json:"ground_air"`
	// Reduced marks that AltFt/Track/GSKt/Callsign were populated because
	// this aircraft became eligible for the reduced-bandwidth forward
	// cycle on this tick (spec.md §4.2 "On accept"); position and
	// ground/air state are always sent regardless.
	Reduced bool `json:"reduced,omitempty"`
}

// AircraftStreamServer is the service interface a gRPC handler must
// implement -- the hand-written analogue of what protoc-gen-go-grpc
// would emit from a "service AircraftStream { rpc Stream(...) returns
// (stream ...); }" definition.
type AircraftStreamServer interface {
	Stream(*StreamRequest, AircraftStream_StreamServer) error
}

// AircraftStream_StreamServer is the server-side handle for one open
// stream, matching the generated xxxServer interface shape (embed
// grpc.ServerStream, add one typed Send).
type AircraftStream_StreamServer interface {
	Send(*AircraftUpdateBatch) error
	grpc.ServerStream
}

type aircraftStreamStreamServer struct {
	grpc.ServerStream
}

func (x *aircraftStreamStreamServer) Send(m *AircraftUpdateBatch) error {
	return x.ServerStream.SendMsg(m)
}

func aircraftStreamStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(StreamRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(AircraftStreamServer).Stream(req, &aircraftStreamStreamServer{stream})
}

// ServiceDesc registers AircraftStreamServer on a *grpc.Server, the
// hand-written counterpart of a generated _AircraftStream_serviceDesc.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "trackerd.apiserver.v1.AircraftStream",
	HandlerType: (*AircraftStreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       aircraftStreamStreamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "internal/apiserver/stream.go",
}
