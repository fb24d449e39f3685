package compression

import "context"

// DefaultQualityLadder is scanned from best to worst for image targets.
var DefaultQualityLadder = []int{80, 60, 45, 30, 20}

// ProbeFunc reports the output size at one quality setting. The returned
// value identifies the produced artifact (usually a URL).
type ProbeFunc func(ctx context.Context, quality int) (ref string, bytes int64, err error)

// LadderResult is the setting chosen by ScanLadder.
type LadderResult struct {
	Quality  int
	Ref      string
	Bytes    int64
	Attempts int
	Warning  string
}

// ScanLadder tries qualities in order and stops at the first one that fits
// targetBytes. When nothing fits it returns the smallest output seen.
func ScanLadder(ctx context.Context, qualities []int, targetBytes int64, probe ProbeFunc) (LadderResult, error) {
	if targetBytes <= 0 {
		return LadderResult{}, ErrInvalidTarget
	}
	if len(qualities) == 0 {
		return LadderResult{}, ErrEmptyLadder
	}

	var smallest LadderResult
	attempts := 0
	for _, q := range qualities {
		if err := ctx.Err(); err != nil {
			return LadderResult{}, err
		}
		ref, n, err := probe(ctx, q)
		if err != nil {
			return LadderResult{}, err
		}
		attempts++
		cur := LadderResult{Quality: q, Ref: ref, Bytes: n}
		if n <= targetBytes {
			cur.Attempts = attempts
			return cur, nil
		}
		if attempts == 1 || n < smallest.Bytes {
			smallest = cur
		}
	}

	smallest.Attempts = attempts
	smallest.Warning = WarnBestEffort
	return smallest, nil
}
