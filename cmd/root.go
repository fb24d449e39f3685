package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"cloudmedia/internal/config"
	"cloudmedia/internal/logger"
)

var (
	envFiles []string

	appConfig *config.Config
	appLog    zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cloudmedia",
	Short: "Media compression and conversion service",
	Long: "cloudmedia compresses PDFs, images and videos to a target size and converts\n" +
		"them between formats on top of a hosted media backend.",
	SilenceUsage:      true,
	PersistentPreRunE: initializeApp,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(compressPDFCmd)
	rootCmd.AddCommand(versionCmd)
}

// initializeApp loads configuration and the root logger
func initializeApp(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.IsProduction(), cfg.ServiceName, cfg.Environment)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	appConfig = cfg
	appLog = log
	return nil
}
