package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hovavo/pxt-states/internal/definition"
	"github.com/hovavo/pxt-states/internal/infrastructure/config"
)

func validateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [definitions.yaml]",
		Short: "Check the configuration and a definitions file",
		Long: `Loads the configuration and the definitions file without starting anything.
The definitions file defaults to runtime.definitions_file from the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			path := cfg.Runtime.DefinitionsFile
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(cmd.OutOrStdout(), path)
		},
	}
}

func runValidate(out io.Writer, path string) error {
	if path == "" {
		fmt.Fprintln(out, "configuration ok, no definitions file configured")
		return nil
	}

	f, err := definition.Load(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: %d machine(s)\n", path, len(f.Machines))
	for _, m := range f.Machines {
		id := m.ID
		if id == "" {
			id = "(main)"
		}
		fmt.Fprintf(out, "  %s: %d state(s)\n", id, len(m.States))
	}
	if len(f.Start) > 0 {
		fmt.Fprintf(out, "  start: %v\n", f.Start)
	}
	return nil
}
