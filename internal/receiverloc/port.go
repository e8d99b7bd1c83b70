package receiverloc

import (
	"io"
	"time"
)

// GPSPorter defines the minimal interface needed for a serial GPS receiver.
// This abstraction enables unit testing without real hardware.
type GPSPorter interface {
	io.ReadWriteCloser
}

// PortOptions describes the serial connection parameters used when opening
// a real GPS receiver. Most NMEA-talking GPS modules default to 4800 or
// 9600 baud, 8N1.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// DefaultPortOptions returns the conventional NMEA serial settings.
func DefaultPortOptions() PortOptions {
	return PortOptions{BaudRate: 4800, DataBits: 8, StopBits: 1, Parity: "N"}
}

// ReadTimeout is how long Monitor waits for a line before checking for
// context cancellation again.
const ReadTimeout = 2 * time.Second

// GPSPortFactory creates GPS serial ports. This abstraction enables
// dependency injection of serial port creation.
type GPSPortFactory interface {
	Open(path string, opts PortOptions) (GPSPorter, error)
}
