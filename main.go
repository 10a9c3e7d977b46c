package main

import (
	"fmt"
	"os"

	"github.com/CPernet/psom/cmd"
	"github.com/CPernet/psom/pkg/pipeline"
)

func main() {
	root := cmd.NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "psom:", err)
		os.Exit(pipeline.ExitCode(err))
	}
}
