package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourcePriorityOrdering(t *testing.T) {
	ordered := []Source{
		Invalid, Indirect, ModeAC, SBS, MLAT, ModeS, Jaero,
		ModeSChecked, TISB, ADSR, ADSB, Prio,
	}
	for i := 1; i < len(ordered); i++ {
		assert.True(t, ordered[i-1].Worse(ordered[i]), "%v should be worse than %v", ordered[i-1], ordered[i])
		assert.True(t, ordered[i].AtLeast(ordered[i-1]))
	}
}

func TestSourceAddressReliable(t *testing.T) {
	reliable := []Source{SBS, ModeSChecked, TISB, ADSR, ADSB, Prio}
	for _, s := range reliable {
		assert.True(t, s.AddressReliable(), "%v should be address-reliable", s)
	}
	unreliable := []Source{Invalid, Indirect, ModeAC, MLAT, ModeS, Jaero}
	for _, s := range unreliable {
		assert.False(t, s.AddressReliable(), "%v should not be address-reliable", s)
	}
}

func TestSourceString(t *testing.T) {
	assert.Equal(t, "adsb", ADSB.String())
	assert.Equal(t, "mode_s_checked", ModeSChecked.String())
	assert.Equal(t, "unknown", Source(999).String())
}
