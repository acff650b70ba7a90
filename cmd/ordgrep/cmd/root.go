// Package cmd provides the CLI commands for ordgrep.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	grerrors "github.com/Aman-CERP/ordgrep/internal/errors"
	"github.com/Aman-CERP/ordgrep/pkg/version"
)

// Exit statuses, as in grep.
const (
	ExitMatch   = 0
	ExitNoMatch = 1
	ExitError   = 2
)

// errNoMatch ends a search that produced no records.
var errNoMatch = errors.New("no records")

// NewRootCmd creates the root command. Running it searches.
func NewRootCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "ordgrep [flags] PATTERN [PATH...]",
		Short: "Search files concurrently, print results in order",
		Long: `ordgrep searches many sources at once and prints matches exactly as a
sequential grep would: sources in argument order, lines in file order.

Sources are files, directories (with -r), "-" for standard input,
compressed files (with --decompress) and s3://bucket/prefix objects.

Searches run on one of four backends:
  sequential  one source at a time
  thread      a goroutine per source (default)
  pool        a fixed worker group
  process     a worker process per source

Exit status is 0 if any record was printed, 1 if none, 2 on error.`,
		Example: `  # Search a tree, with line numbers
  ordgrep -rn TODO .

  # List files without a match, four worker processes at a time
  ordgrep -L --backend process --max-files 4 -e license src/

  # Search compressed logs in a bucket
  ordgrep --decompress -i timeout s3://logs/2026/`,
		Version:       version.Version,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts, args)
		},
	}

	cmd.SetVersionTemplate("ordgrep version {{.Version}}\n")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return grerrors.UsageError(err.Error()).WithSuggestion("run 'ordgrep --help' for usage")
	})

	// -h means --no-filename, so help gets no shorthand.
	cmd.Flags().Bool("help", false, "help for ordgrep")
	opts.register(cmd)

	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Run executes the CLI with args and returns the exit status.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	// cobra reads os.Args when given nil.
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return exitCode(root.ExecuteContext(ctx), stderr)
}

// Execute runs the CLI on the process's arguments. SIGINT and SIGTERM stop
// a running search; what was printed so far is a clean prefix.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return ExitMatch
	case errors.Is(err, errNoMatch):
		return ExitNoMatch
	}
	_, _ = fmt.Fprint(stderr, grerrors.FormatForCLI(err))
	return ExitError
}
