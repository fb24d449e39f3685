package compression

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRenderer produces outputs whose size grows linearly with DPI.
type fakeRenderer struct {
	base  int
	perDP int
	calls []int
	fail  int
}

func (f *fakeRenderer) render(_ context.Context, dpi, _ int) ([]byte, error) {
	f.calls = append(f.calls, dpi)
	if f.fail > 0 && len(f.calls) == f.fail {
		return nil, errors.New("gs exited 1")
	}
	return make([]byte, f.base+f.perDP*dpi), nil
}

func TestJPEGQualityFor(t *testing.T) {
	r := DefaultDPIRange()

	tests := []struct {
		dpi      int
		expected int
	}{
		{dpi: 20, expected: 20},
		{dpi: 300, expected: 95},
		{dpi: 160, expected: 58},
		{dpi: 90, expected: 39},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, r.JPEGQualityFor(tt.dpi), "dpi %d", tt.dpi)
	}
}

func TestSearchDPI(t *testing.T) {
	ctx := context.Background()

	t.Run("max quality fits in one call", func(t *testing.T) {
		f := &fakeRenderer{base: 1000, perDP: 10}
		res, err := SearchDPI(ctx, f.render, DefaultDPIRange(), 10_000, MaxSearchIterations)
		require.NoError(t, err)

		assert.Equal(t, 1, res.Attempts)
		assert.Equal(t, 300, res.Best.DPI)
		assert.Equal(t, 95, res.Best.JPEGQuality)
		assert.Empty(t, res.Warning)
	})

	t.Run("infeasible target returns minimum with warning", func(t *testing.T) {
		f := &fakeRenderer{base: 100_000, perDP: 10}
		res, err := SearchDPI(ctx, f.render, DefaultDPIRange(), 60_000, MaxSearchIterations)
		require.NoError(t, err)

		assert.Equal(t, 2, res.Attempts)
		assert.Equal(t, []int{300, 20}, f.calls)
		assert.Equal(t, 20, res.Best.DPI)
		assert.Equal(t, WarnMaxCompression, res.Warning)
	})

	t.Run("converges to largest fitting dpi", func(t *testing.T) {
		// 300 dpi -> 2,000,000 bytes, 20 dpi -> 300,000 bytes
		f := &fakeRenderer{base: 178_571, perDP: 6071}
		res, err := SearchDPI(ctx, f.render, DefaultDPIRange(), 512_000, MaxSearchIterations)
		require.NoError(t, err)

		assert.LessOrEqual(t, res.Best.Size(), int64(512_000))
		assert.LessOrEqual(t, res.Attempts, 2+MaxSearchIterations)
		assert.Empty(t, res.Warning)

		// the next DPI up would not fit
		assert.Greater(t, int64(178_571+6071*(res.Best.DPI+1)), int64(512_000))
		assert.Equal(t, DefaultDPIRange().JPEGQualityFor(res.Best.DPI), res.Best.JPEGQuality)
	})

	t.Run("call count bounded for wide domain", func(t *testing.T) {
		wide := DPIRange{MinDPI: 1, MaxDPI: 1_000_000, MinJPEG: 20, MaxJPEG: 95}
		f := &fakeRenderer{base: 0, perDP: 1}
		res, err := SearchDPI(ctx, f.render, wide, 123_457, MaxSearchIterations)
		require.NoError(t, err)

		assert.Equal(t, 2+MaxSearchIterations, len(f.calls))
		assert.Equal(t, len(f.calls), res.Attempts)
		assert.LessOrEqual(t, res.Best.Size(), int64(123_457))
	})

	t.Run("render failure aborts search", func(t *testing.T) {
		f := &fakeRenderer{base: 178_571, perDP: 6071, fail: 3}
		_, err := SearchDPI(ctx, f.render, DefaultDPIRange(), 512_000, MaxSearchIterations)
		require.Error(t, err)
		assert.Len(t, f.calls, 3)
	})

	t.Run("invalid target", func(t *testing.T) {
		f := &fakeRenderer{}
		_, err := SearchDPI(ctx, f.render, DefaultDPIRange(), 0, MaxSearchIterations)
		assert.ErrorIs(t, err, ErrInvalidTarget)
		assert.Empty(t, f.calls)
	})
}

func TestPreferOriginal(t *testing.T) {
	original := make([]byte, 500)

	t.Run("smaller output kept", func(t *testing.T) {
		res := PreferOriginal(SearchResult{Best: Rendering{DPI: 150, Data: make([]byte, 400)}}, original)
		assert.False(t, res.Original)
		assert.Equal(t, 150, res.Best.DPI)
	})

	t.Run("equal or larger output replaced", func(t *testing.T) {
		for _, n := range []int{500, 700} {
			res := PreferOriginal(SearchResult{
				Best:    Rendering{DPI: 20, Data: make([]byte, n)},
				Warning: WarnMaxCompression,
			}, original)
			assert.True(t, res.Original)
			assert.Equal(t, int64(500), res.Best.Size())
			assert.Equal(t, WarnAlreadyCompressed, res.Warning)
		}
	})
}
