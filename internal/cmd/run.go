package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/phyloflow/phyloflow/internal/config"
	"github.com/phyloflow/phyloflow/internal/layout"
	"github.com/phyloflow/phyloflow/internal/logging"
	"github.com/phyloflow/phyloflow/internal/pipeline"
)

var (
	runInput             string
	runOutput            string
	runPipeline          string
	runMode              string
	runLineage           string
	runShared            float64
	runComplete          float64
	runCPUs              int
	runKeepIntermediates bool
	runTimeout           time.Duration
)

var bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline stages",
	Long: `Run the selected pipeline stages against an output directory.

Stages are selected by numeric ID (use "phyloflow stages" for the list);
0 selects all of them. Later stages consume the on-disk output of earlier
ones, so a rerun can start anywhere in the chain as long as the required
predecessor output exists in the output directory.`,
	Example: `  phyloflow run -i genomes/ -o results/whales -p 0 -m genome -l cetacea_odb10
  phyloflow run -o results/whales -p 2,3,4 -m genome -s 90`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "directory with per-species fasta files (required for stage 1)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output directory for all stage artifacts")
	runCmd.Flags().StringVarP(&runPipeline, "pipeline", "p", "", "comma-separated stage IDs, 0 for all")
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "sequence mode: genome or proteins")
	runCmd.Flags().StringVarP(&runLineage, "lineage", "l", "", "BUSCO lineage dataset (required for stage 1)")
	runCmd.Flags().Float64VarP(&runShared, "shared", "s", 100, "minimum percentage of species sharing a locus")
	runCmd.Flags().Float64Var(&runComplete, "complete", 0, "minimum BUSCO completeness percentage per species (0 keeps all)")
	runCmd.Flags().IntVarP(&runCPUs, "cpus", "c", 0, "CPU budget (0 = all available)")
	runCmd.Flags().BoolVar(&runKeepIntermediates, "keep-intermediates", true, "keep BUSCO's working directories after detection")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-tool-invocation timeout (0 = none)")

	_ = runCmd.MarkFlagRequired("output")
	_ = runCmd.MarkFlagRequired("pipeline")
	_ = runCmd.MarkFlagRequired("mode")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	stages, err := pipeline.ParseSelection(runPipeline)
	if err != nil {
		return err
	}

	run := &pipeline.Run{
		InputDir:          runInput,
		OutputDir:         runOutput,
		Mode:              runMode,
		Lineage:           runLineage,
		SharedThreshold:   runShared,
		MinCompleteness:   runComplete,
		CPUs:              runCPUs,
		Stages:            stages,
		KeepIntermediates: runKeepIntermediates,
		UnitTimeout:       runTimeout,
		Bootstrap:         cfg.Execution.Bootstrap,
	}
	// Flags not given fall back to the configured behavior.
	if !cmd.Flags().Changed("keep-intermediates") {
		run.KeepIntermediates = cfg.Execution.KeepIntermediates
	}
	if !cmd.Flags().Changed("timeout") {
		run.UnitTimeout = cfg.Execution.UnitTimeout()
	}

	// Everything below validates before any subprocess spawns; the
	// controller re-validates, but failing here keeps the output directory
	// untouched on bad parameters.
	if err := pipeline.Validate(run); err != nil {
		return err
	}
	if err := layout.EnsureDir(run.OutputDir); err != nil {
		return err
	}

	log := logging.NopLogger()
	if cfg.Logging.Enabled {
		log, err = logging.NewLoggerWithRotation(run.OutputDir, cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   cfg.Logging.Compress,
		})
		if err != nil {
			return fmt.Errorf("failed to open run log: %w", err)
		}
		defer log.Close()
	}

	fmt.Fprintln(cmd.OutOrStdout(), bannerStyle.Render("phyloflow"), "-", len(stages), "stage(s) selected")
	ctrl := pipeline.NewController(run, cfg, log, cmd.OutOrStdout())
	return ctrl.Run(cmd.Context())
}
