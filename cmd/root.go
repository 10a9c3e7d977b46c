// Package cmd wires the psom manager's subcommands onto a cobra root
// command, following the teacher's one-constructor-per-command idiom.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CPernet/psom/pkg/pipeline"
)

// NewRootCmd builds the top-level "psom" command and registers every
// subcommand this manager exposes.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "psom",
		Short: "File-tag driven batch pipeline manager",
		Long: `psom runs a declared set of jobs whose dependencies are inferred from
file input/output overlap, dispatching each job to a pluggable backend
(session, batch, or qsub) and tracking progress entirely through files in
the pipeline's log directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(NewInitCmd())
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewKillCmd())

	return root
}

// jobsFile is the on-disk declaration format a user hands to init/run: a
// YAML document with a pipeline name and a `jobs` list of job
// declarations, the input this manager turns into a
// Pipeline via pipeline.BuildGraph / pipeline.Initialize.
type jobsFile struct {
	Name string                    `yaml:"name"`
	Jobs []pipeline.JobDeclaration `yaml:"jobs"`
}

func loadJobsFile(path string) (jobsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return jobsFile{}, fmt.Errorf("read jobs file: %w", err)
	}
	var jf jobsFile
	if err := yaml.Unmarshal(data, &jf); err != nil {
		return jobsFile{}, fmt.Errorf("parse jobs file: %w", err)
	}
	if jf.Name == "" {
		jf.Name = "pipeline"
	}
	return jf, nil
}

func loadConfig(path string) (pipeline.Config, error) {
	var cfg pipeline.Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
