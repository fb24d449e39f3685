package common

import (
	"math"

	"github.com/google/uuid"
)

// GenerateUUID generates a new UUID string
func GenerateUUID() string {
	return uuid.New().String()
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampFloat bounds v to [lo, hi].
func ClampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// TargetBytes converts a caller budget given in KB or MB to bytes, clamped to
// [MinTargetBytes, MaxTargetBytes]. KB wins when both are set. A nil result
// means no budget was requested.
func TargetBytes(targetKB, targetMB *float64) *int64 {
	var raw float64
	switch {
	case targetKB != nil && !math.IsNaN(*targetKB):
		raw = *targetKB * KB
	case targetMB != nil && !math.IsNaN(*targetMB):
		raw = *targetMB * MB
	default:
		return nil
	}
	v := int64(math.Round(ClampFloat(raw, MinTargetBytes, MaxTargetBytes)))
	return &v
}
