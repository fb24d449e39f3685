package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"cloudmedia/internal/common"
	"cloudmedia/internal/compression"
)

var bundleDest string

var gsBundleCmd = &cobra.Command{
	Use:   "gs-bundle <archive-url>",
	Short: "Download a Ghostscript tar.gz bundle for GS_BUNDLE",
	Long: "Downloads a tar.gz containing ghostscript/bin/gs, verifies that it extracts\n" +
		"to a usable executable and leaves the archive at --dest.",
	Args: cobra.ExactArgs(1),
	RunE: runGSBundle,
}

func init() {
	gsBundleCmd.Flags().StringVar(&bundleDest, "dest", "ghostscript.tar.gz", "where to write the archive")
	rootCmd.AddCommand(gsBundleCmd)
}

func runGSBundle(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(filepath.Dir(bundleDest), common.DefaultFilePermissions); err != nil {
		return err
	}

	resp, err := resty.New().
		SetTimeout(appConfig.TransformTimeout).
		R().
		SetContext(cmd.Context()).
		SetOutput(bundleDest).
		Get(args[0])
	if err != nil {
		return fmt.Errorf("download bundle: %w", err)
	}
	if resp.IsError() {
		os.Remove(bundleDest)
		return fmt.Errorf("download bundle: HTTP %d", resp.StatusCode())
	}

	extractDir := filepath.Join(appConfig.WorkDir, "ghostscript-bundle")
	os.RemoveAll(extractDir)
	bin, err := compression.PrepareBundle(bundleDest, extractDir, appLog)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "bundle saved to %s\n", bundleDest)
	fmt.Fprintf(out, "verified executable %s\n", bin)
	fmt.Fprintf(out, "set GS_BUNDLE=%s to use it\n", bundleDest)
	return nil
}
