package topology

import "math"

// Physical layer of an 868 MHz sub-GHz mesh radio
const (
	TxPowerDBm        = 14.0
	FrequencyMHz      = 868.0
	DefaultRadioRange = 800.0 // Meters
)

// PathLoss returns the free-space path loss in dB over d meters
func PathLoss(d float64) float64 {
	if d < 1 {
		return 0
	}
	return 20*math.Log10(d) + 20*math.Log10(FrequencyMHz) - 27.55
}

// RSSI returns the received signal strength in dBm over d meters
func RSSI(d float64) float64 {
	return TxPowerDBm - PathLoss(d)
}

// SNR falls linearly from 10 dB next to the sender to -10 dB at the edge
// of radioRange, clamped to [-20, 10].
func SNR(d, radioRange float64) float64 {
	if radioRange <= 0 {
		radioRange = DefaultRadioRange
	}
	return math.Max(-20, math.Min(10, 10-(d/radioRange)*20))
}

// linkCost is the path loss of a link; co-located nodes still cost 1
func linkCost(d float64) float64 {
	return math.Max(1, round2(PathLoss(d)))
}
