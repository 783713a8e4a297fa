package cmd

import (
	"fmt"
	"time"

	"github.com/phyloflow/phyloflow/internal/logging"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View a run's log",
	Long: `View and filter the structured log of a pipeline run.

Reads phyloflow.log (and any rotated backups) from the run's output
directory and prints the entries oldest first.

Examples:
  # Show the full log of a run
  phyloflow logs -o results/

  # Only warnings and errors
  phyloflow logs -o results/ --level warn

  # Everything the alignment stage logged for one locus
  phyloflow logs -o results/ --stage align --unit 45at314145

  # Entries from the last hour, as CSV
  phyloflow logs -o results/ --since 1h --format csv`,
	RunE: runLogs,
}

var (
	logsOutputDir string
	logsStage     string
	logsUnit      string
	logsLevel     string
	logsSince     string
	logsContains  string
	logsFormat    string
	logsTail      int
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVarP(&logsOutputDir, "output", "o", "", "Output directory of the run (required)")
	logsCmd.Flags().StringVar(&logsStage, "stage", "", "Filter by stage name (busco, filter, align, trim, model, partition, tree)")
	logsCmd.Flags().StringVar(&logsUnit, "unit", "", "Filter by unit of work (species file or locus)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsContains, "grep", "", "Filter entries whose message contains this text")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format: text, json, or csv")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 0, "Only show the last N entries (0 for all)")

	_ = logsCmd.MarkFlagRequired("output")
}

func runLogs(cmd *cobra.Command, args []string) error {
	filter := logging.LogFilter{
		Level:           logsLevel,
		Stage:           logsStage,
		Unit:            logsUnit,
		MessageContains: logsContains,
	}

	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid --since duration %q: %w", logsSince, err)
		}
		filter.StartTime = time.Now().Add(-d)
	}

	entries, err := logging.AggregateLogs(logsOutputDir)
	if err != nil {
		return err
	}

	entries = logging.FilterLogs(entries, filter)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no matching log entries")
		return nil
	}

	return logging.ExportLogEntries(cmd.OutOrStdout(), entries, logsFormat)
}
