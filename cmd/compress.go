package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"cloudmedia/internal/common"
	"cloudmedia/internal/compression"
	"cloudmedia/internal/container"
)

var (
	compressTargetKB float64
	compressTargetMB float64
)

var compressPDFCmd = &cobra.Command{
	Use:   "compress-pdf <input.pdf> <output.pdf>",
	Short: "Compress a local PDF with Ghostscript",
	Long: "Runs the same DPI search the API uses for PDFs, entirely on local files.\n" +
		"Without a target the /prepress preset is applied.",
	Args: cobra.ExactArgs(2),
	RunE: runCompressPDF,
}

func init() {
	compressPDFCmd.Flags().Float64Var(&compressTargetKB, "target-kb", 0, "target size in kilobytes")
	compressPDFCmd.Flags().Float64Var(&compressTargetMB, "target-mb", 0, "target size in megabytes (ignored when --target-kb is set)")
}

type pdfCompressor interface {
	Search(ctx context.Context, pdf []byte, targetBytes int64) (compression.SearchResult, error)
	RenderPreset(ctx context.Context, pdf []byte, setting string) ([]byte, error)
}

type compressReport struct {
	OriginalBytes int64
	Bytes         int64
	TargetBytes   *int64
	DPI           int
	JPEGQuality   int
	Attempts      int
	Warning       string
}

func runCompressPDF(cmd *cobra.Command, args []string) error {
	renderer, err := container.NewRenderer(appConfig, appLog)
	if err != nil {
		return err
	}
	if _, err := renderer.Path(); err != nil {
		return err
	}

	var kb, mb *float64
	if cmd.Flags().Changed("target-kb") {
		kb = &compressTargetKB
	}
	if cmd.Flags().Changed("target-mb") {
		mb = &compressTargetMB
	}

	report, err := compressFile(cmd.Context(), renderer, args[0], args[1], common.TargetBytes(kb, mb))
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), args[1], report)
	return nil
}

func compressFile(ctx context.Context, c pdfCompressor, in, out string, targetBytes *int64) (*compressReport, error) {
	original, err := os.ReadFile(in)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", in, err)
	}
	report := &compressReport{OriginalBytes: int64(len(original)), TargetBytes: targetBytes}

	var data []byte
	if targetBytes == nil {
		data, err = c.RenderPreset(ctx, original, compression.PresetPrepress)
		if err != nil {
			return nil, err
		}
		report.Attempts = 1
		if len(data) >= len(original) {
			data = original
			report.Warning = compression.WarnAlreadyCompressed
		}
	} else {
		if *targetBytes >= report.OriginalBytes {
			return nil, fmt.Errorf("target size must be smaller than the original file size (%d bytes)", report.OriginalBytes)
		}
		res, err := c.Search(ctx, original, *targetBytes)
		if err != nil {
			return nil, err
		}
		data = res.Best.Data
		report.DPI = res.Best.DPI
		report.JPEGQuality = res.Best.JPEGQuality
		report.Attempts = res.Attempts
		report.Warning = res.Warning
	}

	if err := os.WriteFile(out, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", out, err)
	}
	report.Bytes = int64(len(data))
	return report, nil
}

func printReport(w io.Writer, out string, r *compressReport) {
	fmt.Fprintf(w, "wrote %s\n", out)
	fmt.Fprintf(w, "  original: %d bytes\n", r.OriginalBytes)
	fmt.Fprintf(w, "  achieved: %d bytes\n", r.Bytes)
	if r.TargetBytes != nil {
		fmt.Fprintf(w, "  target:   %d bytes\n", *r.TargetBytes)
	}
	if r.DPI > 0 {
		fmt.Fprintf(w, "  dpi:      %d (jpeg quality %d)\n", r.DPI, r.JPEGQuality)
	}
	fmt.Fprintf(w, "  attempts: %d\n", r.Attempts)
	if r.Warning != "" {
		fmt.Fprintf(w, "  warning:  %s\n", r.Warning)
	}
}
