package compression

import "errors"

// Warnings attached to degraded results. None of them are errors.
const (
	WarnMaxCompression    = "Could not reach target size; used maximum compression for best quality."
	WarnBestEffort        = "Could not reach target size exactly; used best-effort compression."
	WarnAlreadyCompressed = "PDF is already well-compressed; returning original."
)

var (
	ErrGhostscriptNotFound = errors.New("ghostscript not found")
	ErrMissingDuration     = errors.New("missing video duration; cannot estimate bitrate")
	ErrInvalidTarget       = errors.New("target size must be positive")
	ErrEmptyLadder         = errors.New("quality ladder is empty")
)

// DPIRange couples image resolution with JPEG quality so the PDF search runs
// over a single variable.
type DPIRange struct {
	MinDPI  int
	MaxDPI  int
	MinJPEG int
	MaxJPEG int
}

// DefaultDPIRange returns the resolution/quality window used for PDFs
func DefaultDPIRange() DPIRange {
	return DPIRange{
		MinDPI:  20,
		MaxDPI:  300,
		MinJPEG: 20,
		MaxJPEG: 95,
	}
}

// MaxSearchIterations caps the binary search independently of domain width.
const MaxSearchIterations = 10

// Ghostscript PDFSETTINGS presets.
const (
	PresetPrepress = "/prepress"
	PresetPrinter  = "/printer"
	PresetEbook    = "/ebook"
	PresetScreen   = "/screen"
)

// Rendering is one Ghostscript output together with the knobs that produced it.
type Rendering struct {
	DPI         int
	JPEGQuality int
	Data        []byte
}

// Size returns the rendered byte count.
func (r Rendering) Size() int64 {
	return int64(len(r.Data))
}
