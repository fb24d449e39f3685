package compression

import (
	"math"

	"cloudmedia/internal/common"
)

const (
	MinBitrateKbps = 200
	MaxBitrateKbps = 8000
)

// EstimateBitrateKbps spreads targetBytes evenly over the clip duration.
func EstimateBitrateKbps(targetBytes int64, durationSeconds float64) (int, error) {
	if durationSeconds <= 0 || math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) {
		return 0, ErrMissingDuration
	}
	if targetBytes <= 0 {
		return 0, ErrInvalidTarget
	}
	kbps := math.Floor(float64(targetBytes) * 8 / (durationSeconds * 1000))
	if kbps > MaxBitrateKbps {
		return MaxBitrateKbps, nil
	}
	return common.ClampInt(int(kbps), MinBitrateKbps, MaxBitrateKbps), nil
}
