package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/petal-labs/behaveflow/config"
	"github.com/petal-labs/behaveflow/internal/logging"
)

// AddPersistentFlags registers the flags shared by every subcommand.
func AddPersistentFlags(root *cobra.Command) {
	root.PersistentFlags().String("config", "", "Config file (default: ./behaveflow.yaml, then ~/.behaveflow/config.yaml)")
	root.PersistentFlags().String("log-level", "", "Log level: debug | info | warn | error")
	root.PersistentFlags().String("log-format", "", "Log format: text | json")
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	root.PersistentFlags().Bool("quiet", false, "Log errors only")
}

// loadSettings resolves the run configuration and builds the logger.
// Flags override the config file; --verbose and --quiet override both.
func loadSettings(cmd *cobra.Command) (config.RunConfig, *slog.Logger, error) {
	explicit, _ := cmd.Flags().GetString("config")
	cfg, path, err := config.Resolve(explicit)
	if err != nil {
		return cfg, nil, exitError(exitConfig, "%v", err)
	}

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return cfg, nil, exitError(exitConfig, "%v", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		level = slog.LevelError
	}

	logger := logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format)
	if path != "" {
		logger.Debug("loaded config", "path", path)
	}
	return cfg, logger, nil
}
