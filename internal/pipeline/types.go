// Package pipeline sequences the phylogenetic tree construction stages:
// ortholog detection, shared-locus filtering, alignment, trimming, model
// prediction, partition creation, and tree inference. Stages communicate
// exclusively through the output directory layout, so any suffix of the
// chain can be rerun against a partially completed directory.
package pipeline

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/phyloflow/phyloflow/internal/config"
	"github.com/phyloflow/phyloflow/internal/errors"
)

// Stage identifies one pipeline stage. The numeric values are the IDs users
// pass on the command line and are part of the CLI contract.
type Stage int

const (
	StageBusco Stage = iota + 1
	StageFilter
	StageAlign
	StageTrim
	StageModel
	StagePartition
	StageTree

	stageCount = int(StageTree)
)

// stageNames are the short names used in logs, errors, and stage listings.
var stageNames = map[Stage]string{
	StageBusco:     "busco",
	StageFilter:    "filter",
	StageAlign:     "align",
	StageTrim:      "trim",
	StageModel:     "model",
	StagePartition: "partition",
	StageTree:      "tree",
}

var stageDescriptions = map[Stage]string{
	StageBusco:     "single-copy ortholog detection per species (BUSCO)",
	StageFilter:    "shared-locus filtering and per-locus merging",
	StageAlign:     "multiple sequence alignment per locus (MAFFT)",
	StageTrim:      "alignment trimming per locus (trimAl)",
	StageModel:     "substitution model prediction per locus (IQ-TREE ModelFinder)",
	StagePartition: "nexus partition file from the predicted models",
	StageTree:      "partitioned tree inference with bootstrap (IQ-TREE)",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ID returns the CLI-facing numeric identifier.
func (s Stage) ID() int { return int(s) }

// Description returns a one-line summary for stage listings.
func (s Stage) Description() string { return stageDescriptions[s] }

// Predecessor returns the stage whose output this stage consumes, or zero
// for the first stage.
func (s Stage) Predecessor() Stage {
	if s <= StageBusco {
		return 0
	}
	return s - 1
}

// AllStages returns every stage in execution order.
func AllStages() []Stage {
	stages := make([]Stage, 0, stageCount)
	for s := StageBusco; s <= StageTree; s++ {
		stages = append(stages, s)
	}
	return stages
}

// ParseSelection parses a comma-separated list of stage IDs. A 0 anywhere
// selects every stage. Duplicates collapse, and the result is always in
// execution order regardless of input order.
func ParseSelection(sel string) ([]Stage, error) {
	parts := strings.Split(sel, ",")
	seen := make(map[Stage]bool)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("stage selection %q is not numeric", part)).
				WithField("pipeline").WithValue(sel)
		}
		if id == 0 {
			return AllStages(), nil
		}
		if id < 0 || id > stageCount {
			return nil, errors.NewValidationError(fmt.Sprintf("stage %d does not exist (valid: 0-%d)", id, stageCount)).
				WithField("pipeline").WithValue(sel)
		}
		seen[Stage(id)] = true
	}
	if len(seen) == 0 {
		return nil, errors.NewValidationError("stage selection is empty").
			WithField("pipeline").WithValue(sel)
	}

	stages := make([]Stage, 0, len(seen))
	for s := range seen {
		stages = append(stages, s)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })
	return stages, nil
}

// Run holds the parameters of one pipeline run. Immutable once validated.
type Run struct {
	InputDir  string
	OutputDir string
	// Mode is genome (nucleotide) or proteins (amino acid).
	Mode    string
	Lineage string
	// SharedThreshold is the minimum percentage of species a locus must be
	// present in to survive filtering. 100 means present in every species.
	SharedThreshold float64
	// MinCompleteness excludes species below this ortholog completeness
	// percentage. 0 keeps every species.
	MinCompleteness float64
	// CPUs is the total parallelism budget. 0 means runtime.NumCPU.
	CPUs              int
	Stages            []Stage
	KeepIntermediates bool
	// UnitTimeout kills any single tool invocation running longer. 0 waits
	// forever.
	UnitTimeout time.Duration
	// Bootstrap is the ultrafast bootstrap replicate count for the tree
	// inference. 0 disables bootstrapping.
	Bootstrap int
}

// Includes reports whether the run's selection contains the stage.
func (r *Run) Includes(stage Stage) bool {
	for _, s := range r.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// Validate checks the run parameters before anything touches the filesystem
// or spawns a subprocess.
func Validate(run *Run) error {
	if len(run.Stages) == 0 {
		return errors.NewValidationError("no stages selected").WithField("pipeline")
	}
	if run.OutputDir == "" {
		return errors.NewValidationError("output directory is required").WithField("output")
	}
	if !config.IsValidMode(run.Mode) {
		return errors.NewValidationError(fmt.Sprintf("mode must be one of %s", strings.Join(config.ValidModes(), ", "))).
			WithField("mode").WithValue(run.Mode)
	}
	if run.SharedThreshold < 0 || run.SharedThreshold > 100 {
		return errors.NewValidationError("shared threshold must be between 0 and 100").
			WithField("shared").WithValue(run.SharedThreshold)
	}
	if run.MinCompleteness < 0 || run.MinCompleteness > 100 {
		return errors.NewValidationError("completeness floor must be between 0 and 100").
			WithField("complete").WithValue(run.MinCompleteness)
	}
	if run.CPUs < 0 {
		return errors.NewValidationError("cpu count cannot be negative").
			WithField("cpus").WithValue(run.CPUs)
	}

	// The lineage dataset gates the detection tool only; later stages find
	// existing run directories by glob.
	if run.Includes(StageBusco) {
		if run.Lineage == "" {
			return errors.NewValidationError("lineage is required when ortholog detection is selected").
				WithField("lineage")
		}
		if run.InputDir == "" {
			return errors.NewValidationError("input directory is required when ortholog detection is selected").
				WithField("input")
		}
		if info, err := os.Stat(run.InputDir); err != nil || !info.IsDir() {
			return errors.NewValidationError("input directory does not exist").
				WithField("input").WithValue(run.InputDir)
		}
	}
	return nil
}
