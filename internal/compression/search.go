package compression

import (
	"context"
	"math"
)

// RenderFunc produces a PDF rendering at the given resolution and JPEG quality.
type RenderFunc func(ctx context.Context, dpi, jpegQuality int) ([]byte, error)

// SearchResult is the outcome of a DPI search.
type SearchResult struct {
	Best     Rendering
	Attempts int
	Warning  string
	// Original is true when the input was returned unchanged.
	Original bool
}

// JPEGQualityFor maps a DPI onto the JPEG quality scale of r.
func (r DPIRange) JPEGQualityFor(dpi int) int {
	if r.MaxDPI == r.MinDPI {
		return r.MaxJPEG
	}
	frac := float64(dpi-r.MinDPI) / float64(r.MaxDPI-r.MinDPI)
	return int(math.Round(float64(r.MinJPEG) + frac*float64(r.MaxJPEG-r.MinJPEG)))
}

// searchState is threaded through each probe of the binary search.
type searchState struct {
	lo, hi   int
	best     Rendering
	attempts int
}

// SearchDPI finds the highest DPI whose rendering fits targetBytes. It calls
// render at most 2+maxIter times and never retries a failed render.
func SearchDPI(ctx context.Context, render RenderFunc, r DPIRange, targetBytes int64, maxIter int) (SearchResult, error) {
	if targetBytes <= 0 {
		return SearchResult{}, ErrInvalidTarget
	}

	probe := func(dpi int) (Rendering, error) {
		q := r.JPEGQualityFor(dpi)
		data, err := render(ctx, dpi, q)
		if err != nil {
			return Rendering{}, err
		}
		return Rendering{DPI: dpi, JPEGQuality: q, Data: data}, nil
	}

	high, err := probe(r.MaxDPI)
	if err != nil {
		return SearchResult{}, err
	}
	if high.Size() <= targetBytes {
		return SearchResult{Best: high, Attempts: 1}, nil
	}

	low, err := probe(r.MinDPI)
	if err != nil {
		return SearchResult{}, err
	}
	if low.Size() > targetBytes {
		return SearchResult{Best: low, Attempts: 2, Warning: WarnMaxCompression}, nil
	}

	st := searchState{lo: r.MinDPI, hi: r.MaxDPI, best: low, attempts: 2}
	for i := 0; i < maxIter && st.lo <= st.hi; i++ {
		if err := ctx.Err(); err != nil {
			return SearchResult{}, err
		}
		st, err = step(st, targetBytes, probe)
		if err != nil {
			return SearchResult{}, err
		}
	}

	res := SearchResult{Best: st.best, Attempts: st.attempts}
	if res.Best.Size() > targetBytes {
		res.Warning = WarnBestEffort
	}
	return res, nil
}

func step(st searchState, targetBytes int64, probe func(int) (Rendering, error)) (searchState, error) {
	mid := int(math.Round(float64(st.lo+st.hi) / 2))
	out, err := probe(mid)
	if err != nil {
		return st, err
	}
	st.attempts++
	if out.Size() <= targetBytes {
		st.best = out
		st.lo = mid + 1
	} else {
		st.hi = mid - 1
	}
	return st, nil
}

// PreferOriginal swaps the search output for the original input when
// compression did not make it smaller.
func PreferOriginal(res SearchResult, original []byte) SearchResult {
	if res.Best.Size() < int64(len(original)) {
		return res
	}
	res.Best = Rendering{Data: original}
	res.Original = true
	res.Warning = WarnAlreadyCompressed
	return res
}
