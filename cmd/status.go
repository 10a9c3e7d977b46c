package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/CPernet/psom/pkg/pipeline"
)

var statusLogDir string

// NewStatusCmd builds the "status" subcommand: a plain table over
// pipeline.ReadStatus for each job in the canonical PIPE.mat, plus whether
// PIPE.lock is held and, if so, the lock's pid and acquisition time. The
// news feed is not shown. No TUI: §1 places interactive front-ends out of
// scope, so this is a one-shot report an operator can script.
func NewStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report the status of every job in a pipeline's log directory",
		RunE:  runStatus,
	}
	statusCmd.Flags().StringVarP(&statusLogDir, "log-dir", "l", "", "Pipeline log directory (required)")
	_ = statusCmd.MarkFlagRequired("log-dir")
	return statusCmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	paths := pipeline.NewPaths(statusLogDir)

	p, err := pipeline.ReadMat(paths)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("no PIPE.mat found in %s; has this pipeline been initialized?", statusLogDir)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTATUS")
	for _, job := range p.ListJobs {
		fmt.Fprintf(w, "%s\t%s\n", job, pipeline.ReadStatus(paths, job))
	}
	w.Flush()

	held := pipeline.Held(paths)
	fmt.Fprintf(cmd.OutOrStdout(), "\nmanager running: %v\n", held)

	if info, err := pipeline.ReadLockInfo(paths); err == nil && held {
		fmt.Fprintf(cmd.OutOrStdout(), "lock pid: %d, acquired: %s\n", info.PID, info.Acquired)
	}
	return nil
}
