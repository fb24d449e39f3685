package compression

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cloudmedia/internal/common"
)

// DefaultGhostscriptTimeout bounds a single Ghostscript invocation.
const DefaultGhostscriptTimeout = 120 * time.Second

// waitDelay caps how long a killed invocation may hold its output pipes.
const waitDelay = 2 * time.Second

// NotFoundError lists every candidate probed while looking for Ghostscript.
type NotFoundError struct {
	Attempted []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ghostscript binary not found. Tried: %s. Set GS_BINARY to the full path of gs",
		strings.Join(e.Attempted, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return ErrGhostscriptNotFound
}

// Candidates returns the probe order for the Ghostscript executable. An
// explicit override always comes first.
func Candidates(override string) []string {
	var list []string
	if runtime.GOOS == "windows" {
		list = []string{
			`C:\Program Files\gs\gs10.04.0\bin\gswin64c.exe`,
			`C:\Program Files\gs\gs10.03.1\bin\gswin64c.exe`,
			`C:\Program Files (x86)\gs\gs10.04.0\bin\gswin32c.exe`,
			"gswin64c.exe",
			"gswin32c.exe",
			"gs",
		}
	} else {
		list = []string{
			"gs",
			"/usr/bin/gs",
			"/bin/gs",
			"/usr/local/bin/gs",
			"/opt/homebrew/bin/gs",
			"/nix/var/nix/profiles/default/bin/gs",
			"/etc/profiles/per-user/root/bin/gs",
			"ghostscript",
		}
	}
	if o := strings.TrimSpace(override); o != "" {
		return append([]string{o}, list...)
	}
	return list
}

// Locate returns the first candidate that resolves to an executable.
func Locate(candidates []string) (string, error) {
	attempted := make([]string, 0, len(candidates))
	for _, c := range candidates {
		attempted = append(attempted, c)
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", &NotFoundError{Attempted: attempted}
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Binary  string
	WorkDir string
	Timeout time.Duration
	Range   DPIRange
}

// Runner renders PDFs through Ghostscript. Each call works in its own
// scratch directory so concurrent requests never share files.
type Runner struct {
	cfg        RunnerConfig
	candidates []string
	logger     zerolog.Logger

	mu   sync.Mutex
	path string
}

// NewRunner creates a new Ghostscript runner
func NewRunner(cfg RunnerConfig, logger zerolog.Logger) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGhostscriptTimeout
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.Range == (DPIRange{}) {
		cfg.Range = DefaultDPIRange()
	}
	return &Runner{
		cfg:        cfg,
		candidates: Candidates(cfg.Binary),
		logger:     logger.With().Str("component", "ghostscript").Logger(),
	}
}

// Path resolves the executable. A hit is cached; a miss is probed again on
// the next call so a later install is picked up.
func (r *Runner) Path() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path != "" {
		return r.path, nil
	}
	path, err := Locate(r.candidates)
	if err != nil {
		return "", err
	}
	r.path = path
	r.logger.Debug().Str("path", path).Msg("ghostscript located")
	return path, nil
}

// IsAvailable checks if Ghostscript is available
func (r *Runner) IsAvailable() bool {
	_, err := r.Path()
	return err == nil
}

// RenderAt re-encodes pdf with every image downsampled to dpi and stored as
// JPEG at jpegQuality.
func (r *Runner) RenderAt(ctx context.Context, pdf []byte, dpi, jpegQuality int) ([]byte, error) {
	return r.run(ctx, pdf, customArgs(dpi, jpegQuality))
}

// RenderPreset re-encodes pdf with one of the PDFSETTINGS presets.
func (r *Runner) RenderPreset(ctx context.Context, pdf []byte, setting string) ([]byte, error) {
	return r.run(ctx, pdf, presetArgs(setting))
}

// Search runs the DPI binary search for pdf against targetBytes and falls
// back to the original when nothing smaller came out.
func (r *Runner) Search(ctx context.Context, pdf []byte, targetBytes int64) (SearchResult, error) {
	render := func(ctx context.Context, dpi, q int) ([]byte, error) {
		out, err := r.RenderAt(ctx, pdf, dpi, q)
		if err == nil {
			r.logger.Debug().
				Int("dpi", dpi).
				Int("jpeg_quality", q).
				Int("bytes", len(out)).
				Int64("target_bytes", targetBytes).
				Msg("pdf attempt")
		}
		return out, err
	}
	res, err := SearchDPI(ctx, render, r.cfg.Range, targetBytes, MaxSearchIterations)
	if err != nil {
		return SearchResult{}, err
	}
	return PreferOriginal(res, pdf), nil
}

func (r *Runner) run(ctx context.Context, pdf []byte, args []string) ([]byte, error) {
	bin, err := r.Path()
	if err != nil {
		return nil, common.NewError(common.KindBinary, "ghostscript", "", err)
	}

	if err := os.MkdirAll(r.cfg.WorkDir, common.DefaultFilePermissions); err != nil {
		return nil, common.Internal("ghostscript", err)
	}
	dir := filepath.Join(r.cfg.WorkDir, "gs-"+common.GenerateUUID())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, common.Internal("ghostscript", err)
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "in.pdf")
	outputPath := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(inputPath, pdf, 0o600); err != nil {
		return nil, common.Internal("ghostscript", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	argv := append(args, "-sOutputFile="+outputPath, inputPath)
	cmd := exec.CommandContext(ctx, bin, argv...)
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", r.cfg.Timeout)
		}
		return nil, common.NewError(common.KindBinary, "ghostscript",
			fmt.Sprintf("ghostscript failed: %v, output: %s", err, strings.TrimSpace(output.String())), nil)
	}

	// Check if output file was created
	data, err := os.ReadFile(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.NewError(common.KindBinary, "ghostscript", "ghostscript did not create output file", nil)
		}
		return nil, common.Internal("ghostscript", err)
	}

	r.logger.Debug().Dur("elapsed", time.Since(start)).Int("bytes", len(data)).Msg("ghostscript finished")
	return data, nil
}

func baseArgs() []string {
	return []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dAutoRotatePages=/None",
	}
}

func presetArgs(setting string) []string {
	return append(baseArgs(), "-dPDFSETTINGS="+setting)
}

func customArgs(dpi, jpegQuality int) []string {
	return append(baseArgs(),
		fmt.Sprintf("-dColorImageResolution=%d", dpi),
		fmt.Sprintf("-dGrayImageResolution=%d", dpi),
		fmt.Sprintf("-dMonoImageResolution=%d", dpi),
		"-dDownsampleColorImages=true",
		"-dDownsampleGrayImages=true",
		"-dDownsampleMonoImages=true",
		"-dColorImageDownsampleType=/Bicubic",
		"-dGrayImageDownsampleType=/Bicubic",
		"-dMonoImageDownsampleType=/Bicubic",
		"-dAutoFilterColorImages=false",
		"-dAutoFilterGrayImages=false",
		"-dColorImageFilter=/DCTEncode",
		"-dGrayImageFilter=/DCTEncode",
		fmt.Sprintf("-dJPEGQ=%d", jpegQuality),
		"-dDetectDuplicateImages=true",
		"-dCompressFonts=true",
		"-dSubsetFonts=true",
	)
}
