package report

// Li-ion discharge bounds used for the battery percentage.
const (
	DefaultEmptyMV = 3000
	DefaultFullMV  = 4200
)

// Centivolts converts millivolts to hundredths of a volt, truncating.
func Centivolts(mv int32) int32 {
	return mv / 10
}

// BatteryPercent maps mv linearly between emptyMV (0%) and fullMV (100%),
// clamped to [0, 100].
func BatteryPercent(mv, emptyMV, fullMV int32) uint8 {
	if fullMV <= emptyMV || mv <= emptyMV {
		return 0
	}
	if mv >= fullMV {
		return 100
	}
	return uint8((mv - emptyMV) * 100 / (fullMV - emptyMV))
}

// BatteryVoltageUnits converts millivolts to the 100 mV units of the Power
// Configuration BatteryVoltage attribute, saturating at 0xFF.
func BatteryVoltageUnits(mv int32) uint8 {
	v := mv / 100
	switch {
	case v < 0:
		return 0
	case v > 0xFF:
		return 0xFF
	}
	return uint8(v)
}

// BatteryPercentUnits converts a percentage to the half-percent units of
// BatteryPercentageRemaining (200 = 100%).
func BatteryPercentUnits(pct uint8) uint8 {
	if pct > 100 {
		pct = 100
	}
	return pct * 2
}
