// Package main implements the aida CLI: local record storage for session
// mementos and project configuration, plus the two-phase protocol surface
// the orchestrator drives.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oakensoul/aida/internal/config"
	"github.com/oakensoul/aida/internal/logging"
	"github.com/oakensoul/aida/internal/memento"
	"github.com/oakensoul/aida/internal/phase"
)

var (
	// global flags
	cfgPath    string
	outputJSON bool

	// version information
	version = "dev"

	// initialized by the root PersistentPreRunE
	appCfg *config.Config
	logger *logging.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aida",
	Short: "Local record storage for session mementos and project config",
	Long: `aida persists session mementos and per-project configuration as
plain files under ~/.claude, with strict path containment, bounded
parsing, and atomic writes.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		appCfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		logger, err = logging.NewLogger(appCfg.LoggingConfig())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.config/aida/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
}

// openStore opens the memento store at the configured root.
func openStore() (*memento.Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	store, err := memento.NewStore(appCfg.StoreRoot(home), logger)
	if err != nil {
		return nil, fmt.Errorf("opening memento store: %w", err)
	}
	return store, nil
}

// newRegistry builds the operation registry, carrying the configured
// store-root override so the protocol surface and the direct commands
// agree on one location.
func newRegistry() *phase.Registry {
	return phase.NewRegistry(phase.Deps{Logger: logger, MementoRoot: appCfg.MementoRoot})
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate shortens s for table display.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
