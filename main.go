package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/RunningKuma/matrix-on-vscode/logger"
)

var version = "dev"

func main() {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           "matrixcollect",
		Short:         "Matrix course and assignment browser",
		Long:          "matrixcollect signs in to the Matrix course platform, lists courses and assignments, and serves the course tree to editor front ends over a local HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to a config file")

	rootCmd.AddCommand(
		newServeCommand(&cfgPath),
		newLoginCommand(&cfgPath),
		newLogoutCommand(&cfgPath),
		newStatusCommand(&cfgPath),
		newCoursesCommand(&cfgPath),
		newAssignmentsCommand(&cfgPath),
		newAssignmentCommand(&cfgPath),
		newTreeCommand(&cfgPath),
		newVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
