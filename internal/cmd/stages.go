package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phyloflow/phyloflow/internal/pipeline"
)

var stagesDot bool

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the pipeline stages and their IDs",
	RunE:  runStages,
}

func init() {
	rootCmd.AddCommand(stagesCmd)
	stagesCmd.Flags().BoolVar(&stagesDot, "dot", false, "emit the stage dependency graph in DOT format")
}

func runStages(cmd *cobra.Command, args []string) error {
	if stagesDot {
		return pipeline.WriteDOT(cmd.OutOrStdout())
	}
	for _, s := range pipeline.AllStages() {
		fmt.Fprintf(cmd.OutOrStdout(), "  %d  %-10s %s\n", s.ID(), s.String(), s.Description())
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nSelect stages with run -p, e.g. -p 0 (all) or -p 3,4,5.")
	return nil
}
