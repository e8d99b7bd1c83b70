package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeClient string

func (f fakeClient) ReceiverID() string { return string(f) }

func TestMessageClientRef(t *testing.T) {
	m := Message{
		AddrICAO: 0xABCDEF,
		DF:       DFExtSquitter,
		Source:   ADSB,
		Client:   fakeClient("receiver-1"),
	}
	assert.Equal(t, "receiver-1", m.Client.ReceiverID())
	assert.Equal(t, DFExtSquitter, m.DF)
}

func TestDownlinkFormatConstants(t *testing.T) {
	assert.EqualValues(t, 17, DFExtSquitter)
	assert.EqualValues(t, 18, DFExtSquitterNon)
	assert.EqualValues(t, 11, DFAllCall)
}
