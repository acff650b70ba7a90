package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ordgrep/internal/config"
	"github.com/Aman-CERP/ordgrep/internal/logging"
	"github.com/Aman-CERP/ordgrep/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Inspect and manage ordgrep's configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/ordgrep/config.yaml)
  3. Project config (.ordgrep.yaml in the working directory)
  4. Environment variables (ORDGREP_*)
  5. Command-line flags`,
		Example: `  # Show effective configuration
  ordgrep config show

  # Create user config with defaults
  ordgrep config init

  # Print config file locations
  ordgrep config path`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		explicit   string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the configuration a search started here would use, after merging
defaults, the user and project files, and the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current directory: %w", err)
			}
			cfg, err := config.Load(cwd, explicit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&explicit, "config", "", "Config file to use instead of the project config")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration and log file locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current directory: %w", err)
			}
			project := config.ProjectConfigPath(cwd)
			if project == "" {
				project = filepath.Join(cwd, config.ProjectConfigName) + " (not present)"
			}
			output.New(cmd.OutOrStdout()).Fields(
				[2]string{"user", config.GetUserConfigPath()},
				[2]string{"project", project},
				[2]string{"log", logging.DefaultLogPath()},
			)
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Write the default configuration to ~/.config/ordgrep/config.yaml
(or $XDG_CONFIG_HOME/ordgrep/config.yaml if XDG_CONFIG_HOME is set).

With --force an existing file is backed up and replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			if config.UserConfigExists() && !force {
				out.Warning("User configuration already exists")
				out.Statusf("📁", "Location: %s", config.GetUserConfigPath())
				out.Newline()
				out.Status("💡", "Use --force to replace it with the defaults (a backup is kept)")
				return nil
			}

			path, backup, err := config.InitUserConfig(force)
			if err != nil {
				return err
			}
			out.Success("Created user configuration")
			out.Statusf("📁", "Location: %s", path)
			if backup != "" {
				out.Statusf("💾", "Backup: %s", backup)
			}
			out.Newline()
			out.Status("💡", "Run 'ordgrep config show' to see the effective configuration")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func newConfigRestoreCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "restore [BACKUP]",
		Short: "Restore user configuration from a backup",
		Long: `Restore the user configuration from a backup made by 'config init --force'.
Without an argument the newest backup is used. The replaced file is itself
backed up first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			if list {
				backups, err := config.ListUserConfigBackups()
				if err != nil {
					return err
				}
				if len(backups) == 0 {
					out.Warning("No backups found")
					return nil
				}
				for _, b := range backups {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), b)
				}
				return nil
			}

			var backup string
			if len(args) == 1 {
				backup = args[0]
			}
			restored, err := config.RestoreUserConfig(backup)
			if err != nil {
				return err
			}
			out.Success("Restored user configuration")
			out.Statusf("💾", "From: %s", restored)
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List available backups, newest first")

	return cmd
}
