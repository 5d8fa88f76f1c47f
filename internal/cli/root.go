package cli

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/faultline/internal/control"
	"github.com/vietddude/faultline/internal/core/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Debug      bool
	// configSet is true when --config was passed explicitly.
	configSet bool
}

// Execute runs the CLI.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// NewRootCommand creates the faultline command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "faultline",
		Short: "Faultline error handling and audit service",
		Long: `Faultline validates analysis parameters, recovers from failures with
retry, rollback, fallback, cache, queue, ignore and escalate strategies, and
keeps a tamper-evident audit log of everything it does.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			opts.configSet = cmd.Flags().Changed("config")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "config.yaml", "config file")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "enable debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))

	return cmd
}

// loadConfig reads the config file and initialises logging. A missing
// default config file falls back to built-in defaults.
func loadConfig(opts *RootOptions) (*config.AppConfig, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		if opts.configSet || !errors.Is(err, fs.ErrNotExist) {
			stylelog.InitDefault()
			return nil, err
		}
		cfg = config.Default()
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if opts.Debug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg, nil
}

// openApp builds the services without starting background workers, for
// one-shot commands. The caller must call Stop.
func openApp(ctx context.Context, opts *RootOptions) (*control.App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return control.NewApp(ctx, *cfg)
}
