package receiverloc

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// serialMode converts PortOptions into the serial.Mode structure required
// by go.bug.st/serial.
func (o PortOptions) serialMode() (*serial.Mode, error) {
	baud := o.BaudRate
	if baud <= 0 {
		baud = 4800
	}
	dataBits := o.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	stopBits := o.StopBits
	if stopBits == 0 {
		stopBits = 1
	}

	mode := &serial.Mode{BaudRate: baud, DataBits: dataBits}
	switch stopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", stopBits)
	}

	switch strings.ToUpper(o.Parity) {
	case "", "N", "NONE":
		mode.Parity = serial.NoParity
	case "E", "EVEN":
		mode.Parity = serial.EvenParity
	case "O", "ODD":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}

	return mode, nil
}

// realGPSPortFactory opens actual serial devices via go.bug.st/serial.
type realGPSPortFactory struct{}

// NewGPSPortFactory returns a GPSPortFactory backed by real serial hardware.
func NewGPSPortFactory() GPSPortFactory {
	return realGPSPortFactory{}
}

func (realGPSPortFactory) Open(path string, opts PortOptions) (GPSPorter, error) {
	mode, err := opts.serialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return port, nil
}

// NewReceiverLocator opens a real GPS receiver at path and wraps it in a
// Locator.
func NewReceiverLocator(path string, opts PortOptions) (*Locator, error) {
	port, err := NewGPSPortFactory().Open(path, opts)
	if err != nil {
		return nil, err
	}
	return NewLocator(port), nil
}
