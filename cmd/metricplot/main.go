// Package main provides the entry point for the metricplot CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/metricplot/cmd/metricplot/commands"
	"github.com/Sumatoshi-tech/metricplot/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "metricplot",
		Short: "Evaluate metric trajectories of tree ensembles",
		Long: `metricplot evaluates a set of metrics at regular checkpoints along the
iterations of a tree ensemble and writes the resulting learning curves.

Commands:
  eval      Evaluate metrics over a dataset and write a report
  show      Print a previously written report`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewEvalCommand())
	rootCmd.AddCommand(commands.NewShowCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
