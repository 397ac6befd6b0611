package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
)

func TestClassifyBuiltUp_Quadrants(t *testing.T) {
	tests := []struct {
		name        string
		oiChange    float64
		priceChange float64
		want        domain.BuiltUpTag
	}{
		{"oi up price up", 10, 5, domain.BuiltUpLong},
		{"oi up price down", 10, -5, domain.BuiltUpShort},
		{"oi down price down", -10, -5, domain.BuiltUpLongUnwind},
		{"oi down price up", -10, 5, domain.BuiltUpShortCover},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, color := ClassifyBuiltUp(tt.oiChange, tt.priceChange)
			assert.Equal(t, tt.want, tag)
			assert.NotEqual(t, domain.ColorNeutral, color)
		})
	}
}

func TestClassifyBuiltUp_ZeroZeroDefaultsNeutral(t *testing.T) {
	tag, color := ClassifyBuiltUp(0, 0)
	assert.Equal(t, domain.BuiltUpLong, tag)
	assert.Equal(t, domain.ColorNeutral, color)
}

func TestVolumeColor(t *testing.T) {
	// Highest volume on the side gets the strong color.
	assert.Equal(t, colorVolumeHighCE, VolumeColor(500, 0, 500, domain.SideCall))
	assert.Equal(t, colorVolumeHighPE, VolumeColor(500, 0, 500, domain.SidePut))

	// Zero highest never counts as strong.
	assert.Equal(t, domain.ColorNeutral, VolumeColor(0, 0, 0, domain.SideCall))

	// 70% jump over previous gets the tint.
	assert.Equal(t, colorVolumeSurgeCE, VolumeColor(170, 100, 500, domain.SideCall))
	assert.Equal(t, colorVolumeSurgePE, VolumeColor(170, 100, 500, domain.SidePut))

	// 69% jump does not.
	assert.Equal(t, domain.ColorNeutral, VolumeColor(169, 100, 500, domain.SideCall))

	// No previous snapshot: percent check skipped.
	assert.Equal(t, domain.ColorNeutral, VolumeColor(400, 0, 500, domain.SideCall))
}

func TestOIColor_HighestAlwaysStrong(t *testing.T) {
	// Strong color regardless of percent change, including a big drop.
	color, fade := OIColor(500, 5000, 500, domain.SideCall)
	assert.Equal(t, colorOIHighCE, color)
	assert.False(t, fade)

	color, fade = OIColor(500, 0, 500, domain.SidePut)
	assert.Equal(t, colorOIHighPE, color)
	assert.False(t, fade)
}

func TestOIColor_BuildAndUnwind(t *testing.T) {
	// +65% build.
	color, fade := OIColor(1650, 1000, 5000, domain.SideCall)
	assert.Equal(t, colorOIBuildCE, color)
	assert.False(t, fade)

	// -64% unwind fades.
	color, fade = OIColor(1000, 2800, 5000, domain.SideCall)
	assert.Equal(t, colorOIDecay, color)
	assert.True(t, fade)

	// +59% stays neutral.
	color, fade = OIColor(159, 100, 5000, domain.SidePut)
	assert.Equal(t, domain.ColorNeutral, color)
	assert.False(t, fade)
}

func TestOIColor_ZeroPreviousGuardsDivision(t *testing.T) {
	color, fade := OIColor(100, 0, 500, domain.SideCall)
	assert.Equal(t, domain.ColorNeutral, color)
	assert.False(t, fade)
}
