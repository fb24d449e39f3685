package common

const (
	KB = 1024
	MB = 1024 * 1024

	// Target budgets are clamped into this window before any work is done.
	MinTargetBytes = 50 * KB
	MaxTargetBytes = 100 * MB

	MaxConcurrencyLimit = 8

	DefaultFilePermissions = 0755
)

// Resource kinds as understood by the transform backend. PDFs are stored as
// images with format "pdf".
const (
	ResourceImage = "image"
	ResourceVideo = "video"
	ResourceRaw   = "raw"
	ResourceAuto  = "auto"

	FormatPDF = "pdf"
)

// Conversion kinds recorded in the history table.
const (
	KindCompress     = "compress"
	KindImageFormat  = "image_format"
	KindImagesToPDF  = "images_to_pdf"
	KindPDFToImage   = "pdf_to_image"
	KindVideoToAudio = "video_to_audio"
)
