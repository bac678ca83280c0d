// Package commands wires the cascadeflow CLI's subcommands together,
// grounded on the jmylchreest/refyne cmd/refyne/commands package layout
// (a package-level rootCmd, subcommands self-registering via init(), and a
// single Execute entry point) but without refyne's viper layer: config
// loading goes through pkg/config.Load and flags bind natively via cobra.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "cascadeflow",
	Short: "Route LLM requests between a cheap drafter and a verifier model",
	Long: `cascadeflow drives the CascadeFlow routing pipeline from the command line:
classify a query, cascade it through a drafter and (if needed) a verifier,
or run the built-in acceptance suite against scripted providers.

Every subcommand other than "demo" and "selftest" needs a config file
(--config) describing the candidate models; see config.example.yaml.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a CascadeFlow YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress informational output")
}

// Execute runs the CLI, returning any error from the selected subcommand.
func Execute() error {
	return rootCmd.Execute()
}

func logInfo(format string, args ...any) {
	if quiet {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

func requireConfigPath() (string, error) {
	if configPath == "" {
		return "", fmt.Errorf("--config is required")
	}
	return configPath, nil
}
