package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CPernet/psom/pkg/pipeline"
)

var (
	initJobsFile     string
	initConfigFile   string
	initLogDir       string
	initForceRestart []string
)

// NewInitCmd builds the "init" subcommand: run the Pipeline Initializer
// (§4.2) against a jobs file without starting the scheduler loop, so an
// operator can inspect PIPE.mat and the reconciliation decision first.
func NewInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a pipeline's log directory without running it",
		RunE:  runInit,
	}
	initCmd.Flags().StringVarP(&initJobsFile, "jobs", "j", "", "YAML jobs file (required)")
	initCmd.Flags().StringVarP(&initConfigFile, "config", "c", "", "YAML config file")
	initCmd.Flags().StringVarP(&initLogDir, "log-dir", "l", "", "Pipeline log directory (required)")
	initCmd.Flags().StringSliceVar(&initForceRestart, "restart", nil, "Job name substrings to force-restart")
	_ = initCmd.MarkFlagRequired("jobs")
	_ = initCmd.MarkFlagRequired("log-dir")
	return initCmd
}

func runInit(cmd *cobra.Command, args []string) error {
	jf, err := loadJobsFile(initJobsFile)
	if err != nil {
		return err
	}

	paths := pipeline.NewPaths(initLogDir)
	result, err := pipeline.Initialize(paths, jf.Name, jf.Jobs, initForceRestart)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pipeline %q initialized: %d jobs, %d to restart, %d orphaned\n",
		jf.Name, len(result.Pipeline.ListJobs), len(result.Restart), len(result.Orphaned))
	return nil
}
