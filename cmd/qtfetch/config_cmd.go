package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect the qtfetch configuration. Settings are read from qtfetch.yaml
in the working directory, /etc/qtfetch/, or ~/.config/qtfetch/, with
built-in defaults when no file exists.`,
		Example: `  qtfetch config show`,
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current settings",
		Long: `Display the effective settings in YAML format, after merging the
loaded settings file with built-in defaults.`,
		Example: `  qtfetch config show
  qtfetch config show --config ./qtfetch.yaml`,
		RunE: configShowRun,
	}

	return cmd
}

func configShowRun(cmd *cobra.Command, args []string) error {
	if globalSettings == nil {
		return fmt.Errorf("settings not loaded")
	}

	data, err := yaml.Marshal(globalSettings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if cfgPath != "" {
		fmt.Printf("# loaded from %s\n", cfgPath)
	} else {
		fmt.Println("# built-in defaults (no settings file found)")
	}
	fmt.Print(string(data))

	return nil
}
