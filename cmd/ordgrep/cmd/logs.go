package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ordgrep/internal/logging"
)

// newLogsCmd creates the logs command, which views the --debug log file.
func newLogsCmd() *cobra.Command {
	var (
		lines   int
		follow  bool
		level   string
		grep    string
		session string
		file    string
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View debug logs",
		Long: `View the JSON logs written by searches run with --debug.

Logs live in ~/.ordgrep/logs/ordgrep.log and rotate at 10MB, keeping 5 files.`,
		Example: `  # Last 50 entries
  ordgrep logs

  # Follow warnings and errors
  ordgrep logs -f --level warn

  # One search session
  ordgrep logs --session 3f2a`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := logging.FindLogFile(file)
			if err != nil {
				return err
			}

			vcfg := logging.ViewerConfig{Level: level, Session: session, NoColor: noColor}
			if grep != "" {
				re, err := regexp.Compile(grep)
				if err != nil {
					return fmt.Errorf("invalid --grep pattern: %w", err)
				}
				vcfg.Pattern = re
			}
			viewer := logging.NewViewer(vcfg, cmd.OutOrStdout())

			entries, err := viewer.Tail(path, lines)
			if err != nil {
				return err
			}
			viewer.Print(entries)
			if !follow {
				return nil
			}

			ch := make(chan logging.LogEntry, 64)
			done := make(chan error, 1)
			go func() {
				done <- viewer.Follow(cmd.Context(), path, ch)
				close(ch)
			}()
			for entry := range ch {
				viewer.Print([]logging.LogEntry{entry})
			}
			return <-done
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow new entries")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&grep, "grep", "", "Show only entries matching this regular expression")
	cmd.Flags().StringVar(&session, "session", "", "Show only entries of sessions with this ID prefix")
	cmd.Flags().StringVar(&file, "file", "", "Log file to read instead of the default")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")

	return cmd
}
