// statesd runs named finite state machines as a long-lived service.
//
// Machines are declared in YAML, driven by their loop handlers, and can be
// observed and steered over MQTT, HTTP and WebSocket. See "statesd --help"
// for the available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is used when neither --config nor STATES_CONFIG is set.
const defaultConfigPath = "configs/statesd.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "statesd",
		Short:         "Finite state machine runtime",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", getConfigPath(), "Path to the YAML configuration file")
	cmd.AddCommand(
		serveCmd(&configPath),
		demoCmd(),
		validateCmd(&configPath),
		tokenCmd(&configPath),
		versionCmd(),
	)
	return cmd
}

// getConfigPath returns the configuration file path.
// Checks STATES_CONFIG environment variable first, then uses default.
func getConfigPath() string {
	if path := os.Getenv("STATES_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the state engine with its MQTT bridge and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "statesd %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		},
	}
}
