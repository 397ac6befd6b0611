package enrich

import "github.com/arpan-banerjee/fno-dashboard/internal/domain"

// Visual-state thresholds. Volume needs a 70% jump over the previous
// snapshot for a surge tint; open interest needs a 60% move either way.
const (
	volumeSurgeThreshold = 0.7
	oiChangeThreshold    = 0.6
)

// Color tokens per side. Calls use the green family, puts the red family;
// the decay color is shared and rendered faded.
const (
	colorVolumeHighCE  = domain.ColorCode("#00796b")
	colorVolumeHighPE  = domain.ColorCode("#c62828")
	colorVolumeSurgeCE = domain.ColorCode("#b2dfdb")
	colorVolumeSurgePE = domain.ColorCode("#ffcdd2")

	colorOIHighCE  = domain.ColorCode("#004d40")
	colorOIHighPE  = domain.ColorCode("#b71c1c")
	colorOIBuildCE = domain.ColorCode("#80cbc4")
	colorOIBuildPE = domain.ColorCode("#ef9a9a")
	colorOIDecay   = domain.ColorCode("#9e9e9e")

	colorBuiltUpLong       = domain.ColorCode("#2e7d32")
	colorBuiltUpShort      = domain.ColorCode("#c62828")
	colorBuiltUpLongUnwind = domain.ColorCode("#ef6c00")
	colorBuiltUpShortCover = domain.ColorCode("#1565c0")
)

// VolumeColor grades a traded-volume cell. The side's highest volume gets
// the strong color; a >=70% jump over the previous snapshot gets the light
// tint; everything else is neutral. With no previous snapshot the percent
// check is skipped.
func VolumeColor(value, previous, highest float64, side domain.Side) domain.ColorCode {
	if value == highest && highest > 0 {
		if side == domain.SidePut {
			return colorVolumeHighPE
		}
		return colorVolumeHighCE
	}

	if previous > 0 && (value-previous)/previous >= volumeSurgeThreshold {
		if side == domain.SidePut {
			return colorVolumeSurgePE
		}
		return colorVolumeSurgeCE
	}

	return domain.ColorNeutral
}

// OIColor grades an open-interest cell and reports whether it should render
// faded. The side's highest OI always gets the strong color regardless of
// percent change. Otherwise a >=60% build gets the light tint and a >=60%
// unwind gets the decay color with fade set. previous == 0 guards the
// division: only the highest check applies and fade stays false.
func OIColor(value, previous, highest float64, side domain.Side) (domain.ColorCode, bool) {
	if value == highest && highest > 0 {
		if side == domain.SidePut {
			return colorOIHighPE, false
		}
		return colorOIHighCE, false
	}

	if previous == 0 {
		return domain.ColorNeutral, false
	}

	change := (value - previous) / previous
	switch {
	case change >= oiChangeThreshold:
		if side == domain.SidePut {
			return colorOIBuildPE, false
		}
		return colorOIBuildCE, false
	case change <= -oiChangeThreshold:
		return colorOIDecay, true
	}

	return domain.ColorNeutral, false
}

// ClassifyBuiltUp maps OI and price co-movement to a built-up tag and its
// display color. The zero/zero input falls through to Long Built-up with a
// neutral color, matching the observed behavior of existing dashboards.
func ClassifyBuiltUp(oiChange, priceChange float64) (domain.BuiltUpTag, domain.ColorCode) {
	switch {
	case oiChange > 0 && priceChange > 0:
		return domain.BuiltUpLong, colorBuiltUpLong
	case oiChange > 0 && priceChange < 0:
		return domain.BuiltUpShort, colorBuiltUpShort
	case oiChange < 0 && priceChange < 0:
		return domain.BuiltUpLongUnwind, colorBuiltUpLongUnwind
	case oiChange < 0 && priceChange > 0:
		return domain.BuiltUpShortCover, colorBuiltUpShortCover
	}
	return domain.BuiltUpLong, domain.ColorNeutral
}
