package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CPernet/psom/internal/logging"
	"github.com/CPernet/psom/pkg/pipeline"
	pexec "github.com/CPernet/psom/pkg/pipeline/exec"
)

var (
	runJobsFile   string
	runConfigFile string
	runLogDir     string
	runMode       string
	runRestart    []string
	runForce      bool
)

// NewRunCmd builds the "run" subcommand: the full lifecycle of §4 -
// acquire PIPE.lock, initialize, start the heartbeat, run the scheduler
// loop to completion, release the lock, and exit with the code §6 defines.
func NewRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Initialize and run a pipeline to completion",
		RunE:  runRun,
	}
	runCmd.Flags().StringVarP(&runJobsFile, "jobs", "j", "", "YAML jobs file (required)")
	runCmd.Flags().StringVarP(&runConfigFile, "config", "c", "", "YAML config file")
	runCmd.Flags().StringVarP(&runLogDir, "log-dir", "l", "", "Pipeline log directory (required)")
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "Backend mode: session, batch, or qsub (overrides config)")
	runCmd.Flags().StringSliceVar(&runRestart, "restart", nil, "Job name substrings to force-restart")
	runCmd.Flags().BoolVar(&runForce, "force-lock", false, "Remove a pre-existing PIPE.lock before starting (operator-confirmed stale lock)")
	_ = runCmd.MarkFlagRequired("jobs")
	_ = runCmd.MarkFlagRequired("log-dir")
	return runCmd
}

func runRun(cmd *cobra.Command, args []string) error {
	jf, err := loadJobsFile(runJobsFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(runConfigFile)
	if err != nil {
		return err
	}
	cfg.PathLogs = runLogDir
	if runMode != "" {
		cfg.Mode = pipeline.Mode(runMode)
	}
	cfg.Restart = append(cfg.Restart, runRestart...)
	cfg, err = cfg.Resolve()
	if err != nil {
		return err
	}

	paths := pipeline.NewPaths(runLogDir)

	var lock *pipeline.Lock
	if runForce {
		lock, err = pipeline.ForceAcquireLock(paths)
	} else {
		lock, err = pipeline.AcquireLock(paths)
	}
	if err != nil {
		return err
	}
	defer lock.Release()

	result, err := pipeline.Initialize(paths, jf.Name, jf.Jobs, cfg.Restart)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logger := logging.New(logging.NewBase(runLogDir), os.Stdout)
	executor := &pexec.RealCommandExecutor{}

	sched, err := pipeline.NewScheduler(paths, cfg, pipeline.DetectEnvironment(), result.Pipeline, executor,
		pipeline.WithLogger(logger))
	if err != nil {
		return err
	}

	summary, runErr := sched.Run(ctx)
	fmt.Fprintln(cmd.OutOrStdout(), summary.String())

	// os.Exit skips deferred calls, so the lock is released explicitly first.
	if runErr != nil {
		lock.Release()
		os.Exit(pipeline.ExitCode(runErr))
	}
	if summary.Counts.Failed > 0 {
		lock.Release()
		os.Exit(1)
	}
	return nil
}
