package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CPernet/psom/pkg/pipeline"
)

var killLogDir string

// NewKillCmd builds the "kill" subcommand: write PIPE.kill so a running
// manager notices on its next loop iteration and shuts down cooperatively
// (§4.6, §5 Cancellation). It does not signal the manager process directly;
// the whole design is that cancellation flows through tag files, not signals.
func NewKillCmd() *cobra.Command {
	killCmd := &cobra.Command{
		Use:   "kill",
		Short: "Request a running manager to stop cooperatively",
		RunE:  runKill,
	}
	killCmd.Flags().StringVarP(&killLogDir, "log-dir", "l", "", "Pipeline log directory (required)")
	_ = killCmd.MarkFlagRequired("log-dir")
	return killCmd
}

func runKill(cmd *cobra.Command, args []string) error {
	paths := pipeline.NewPaths(killLogDir)
	if !pipeline.Held(paths) {
		return fmt.Errorf("no PIPE.lock in %s; no manager appears to be running", killLogDir)
	}
	if err := pipeline.CreateTag(paths.Kill(), nil); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "PIPE.kill written; the manager will stop at its next loop iteration")
	return nil
}
