package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"malmohomes/collector/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	profile   string
	logLevel  string
	logFormat string
}

// app holds what every subcommand needs, built once before the command runs.
var app struct {
	cfg     *config.Config
	profile *config.Profile
	logger  *logrus.Logger
}

var rootCmd = &cobra.Command{
	Use:   "collector",
	Short: "Collect and normalize property listings",
	Long: "collector renders listing pages in a headless browser, extracts a validated\n" +
		"property record from the embedded page state and writes resumable batch output.",
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.profile, "profile", "", "Site profile YAML (built-in default when empty)")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	f.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: text or json (overrides LOG_FORMAT)")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if rootFlags.logLevel != "" {
		cfg.Log.Level = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.Log.Format = rootFlags.logFormat
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	profile, err := config.LoadProfile(rootFlags.profile)
	if err != nil {
		return fmt.Errorf("failed to load site profile: %w", err)
	}

	app.cfg = cfg
	app.profile = profile
	app.logger = logger
	return nil
}

func newLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)
	return logger, nil
}

// databasePath falls back to a file next to the batch output.
func databasePath(flagValue, outputDir string) string {
	if flagValue != "" {
		return flagValue
	}
	if app.cfg.Paths.Database != "" {
		return app.cfg.Paths.Database
	}
	return filepath.Join(outputDir, "properties.db")
}
