package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ordgrep/internal/backend"
	"github.com/Aman-CERP/ordgrep/internal/logging"
)

// newWorkerCmd creates the hidden worker command that the process backend
// runs once per source. It reads frames on stdin and writes frames on stdout.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    backend.WorkerCommand,
		Short:  "Serve one source for the process backend",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Terminal interrupts reach the whole process group; the parent
			// decides when a unit stops.
			signal.Ignore(os.Interrupt)

			logger := logging.SetupWorkerMode(cmd.ErrOrStderr(), os.Getenv(logging.WorkerEnvLevel))
			if err := backend.ServeUnit(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				logger.Error("unit_failed", "error", err)
				return err
			}
			return nil
		},
	}
}
