package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"georeg/internal/config"
)

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long:  "Show the active configuration or write a default config file",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Configuration:\n\n")
			fmt.Printf("Config file: %s\n", configPathLabel())
			fmt.Printf("\nEngines:\n")
			fmt.Printf("  Default: %s\n", root.cfg.Engines.Default)
			for _, ec := range root.cfg.Engines.Commands {
				fmt.Printf("  - %s (%s)\n", ec.Name, ec.Command)
			}
			fmt.Printf("\nRun:\n")
			fmt.Printf("  Engine: %s\n", root.cfg.Run.Engine)
			fmt.Printf("  Filter preset: %s\n", root.cfg.Run.FilterPreset)
			fmt.Printf("  Skip previews: %t\n", root.cfg.Run.SkipPreviews)
			fmt.Printf("  Preview quality: %d\n", root.cfg.Run.PreviewQuality)
			fmt.Printf("\nPaths:\n")
			fmt.Printf("  Default session: %s\n", root.cfg.Paths.DefaultSession)
			fmt.Printf("  Default reference: %s\n", root.cfg.Paths.DefaultReference)
			fmt.Printf("  Database: %s\n", root.cfg.Paths.DatabasePath)
			fmt.Printf("\nWatch:\n")
			fmt.Printf("  Enabled: %t\n", root.cfg.Watch.Enabled)
			fmt.Printf("  Inbox: %s\n", root.cfg.Watch.Dir)
			fmt.Printf("  Reference: %s\n", root.cfg.Watch.Reference)
			fmt.Printf("  Debounce: %ds\n", root.cfg.Watch.DebounceSeconds)
			fmt.Printf("\nServer:\n")
			fmt.Printf("  Address: %s\n", root.cfg.Server.Addr)
			fmt.Printf("\nProcessing:\n")
			fmt.Printf("  Parallel runs: %d\n", root.cfg.Processing.ParallelRuns)
			fmt.Printf("  Temp directory: %s\n", root.cfg.Processing.TempDir)
			fmt.Printf("\nLogging:\n")
			fmt.Printf("  Level: %s\n", root.cfg.Logging.Level)
			fmt.Printf("  Format: %s\n", root.cfg.Logging.Format)
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path()
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config file already exists: %s", path)
			}
			if err := config.Save(config.Default(), path); err != nil {
				return err
			}
			fmt.Printf("Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.AddCommand(showCmd)
	cmd.AddCommand(initCmd)
	return cmd
}

func configPathLabel() string {
	if p := os.Getenv("GEOREG_CONFIG"); p != "" {
		return p
	}
	return "(default) " + config.Path()
}
