package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/phyloflow/phyloflow/internal/config"
	"github.com/phyloflow/phyloflow/internal/errors"
	"github.com/phyloflow/phyloflow/internal/layout"
	"github.com/phyloflow/phyloflow/internal/logging"
	"github.com/phyloflow/phyloflow/internal/pipeline"
	"github.com/phyloflow/phyloflow/internal/tui"
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Assemble and start a run interactively",
	Long: `Collect the run parameters through a sequential prompt instead of
flags, then start the pipeline with them.`,
	RunE: runWizard,
}

func init() {
	rootCmd.AddCommand(wizardCmd)
}

func runWizard(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	answers, err := tui.Collect(tui.RunFields())
	if err != nil {
		return err
	}

	run, err := runFromAnswers(answers, cfg)
	if err != nil {
		return err
	}
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

	ctrl := pipeline.NewController(run, cfg, log, cmd.OutOrStdout())
	return ctrl.Run(cmd.Context())
}

// runFromAnswers converts the wizard's string answers into a Run.
func runFromAnswers(answers map[string]string, cfg *config.Config) (*pipeline.Run, error) {
	stages, err := pipeline.ParseSelection(answers["pipeline"])
	if err != nil {
		return nil, err
	}

	shared, err := parsePercent("shared", answers["shared"])
	if err != nil {
		return nil, err
	}
	complete, err := parsePercent("complete", answers["complete"])
	if err != nil {
		return nil, err
	}
	cpus, err := strconv.Atoi(answers["cpus"])
	if err != nil {
		return nil, errors.NewValidationError("cpu count must be a whole number").
			WithField("cpus").WithValue(answers["cpus"])
	}

	return &pipeline.Run{
		InputDir:          answers["input"],
		OutputDir:         answers["output"],
		Mode:              answers["mode"],
		Lineage:           answers["lineage"],
		SharedThreshold:   shared,
		MinCompleteness:   complete,
		CPUs:              cpus,
		Stages:            stages,
		KeepIntermediates: cfg.Execution.KeepIntermediates,
		UnitTimeout:       cfg.Execution.UnitTimeout(),
		Bootstrap:         cfg.Execution.Bootstrap,
	}, nil
}

func parsePercent(field, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.NewValidationError(field + " must be a number").
			WithField(field).WithValue(value)
	}
	return v, nil
}
