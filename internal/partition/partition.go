// Package partition assembles the nexus partition file that couples each
// trimmed locus alignment to its predicted substitution model. The file is
// the contract between the per-locus model prediction stage and the joint
// tree inference: charset paths are relative to the run's output directory,
// which is where the tree inference is invoked.
package partition

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phyloflow/phyloflow/internal/errors"
	"github.com/phyloflow/phyloflow/internal/layout"
	"github.com/phyloflow/phyloflow/internal/logging"
)

// bicPrefix marks the model line in an IQ-TREE report. IQ-TREE writes one
// such line per ModelFinder run.
const bicPrefix = "Best-fit model according to BIC:"

// Entry pairs one locus with its best-fit model.
type Entry struct {
	Locus string
	Model string
}

// Write surveys the per-locus model reports under the Models directory and
// writes the partition file at l.PartitionFile(). It returns the entries in
// the order written (sorted by locus).
func Write(log *logging.Logger, l *layout.Layout) ([]Entry, error) {
	log = log.WithStage("partition")

	loci, err := modelDirs(l.ModelsDir())
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(loci))
	for _, locus := range loci {
		model, err := parseModel(l.ModelReport(locus))
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Locus: locus, Model: model})
	}

	if err := writeNexus(l, entries); err != nil {
		return nil, err
	}
	log.Info("partition file written", "path", l.PartitionFile(), "loci", len(entries))
	return entries, nil
}

// modelDirs lists the per-locus subdirectories of the Models directory,
// sorted for a deterministic partition file.
func modelDirs(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewLayoutError(dir, "Models directory from the model prediction stage").WithCause(err)
	}
	var loci []string
	for _, e := range ents {
		if e.IsDir() {
			loci = append(loci, e.Name())
		}
	}
	if len(loci) == 0 {
		return nil, errors.NewLayoutError(dir, "one subdirectory per locus with an IQ-TREE model report")
	}
	sort.Strings(loci)
	return loci, nil
}

// parseModel extracts the best-fit model from one IQ-TREE report.
func parseModel(report string) (string, error) {
	f, err := os.Open(report)
	if err != nil {
		return "", errors.NewLayoutError(report, "IQ-TREE model report").WithCause(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, bicPrefix) {
			model := strings.TrimSpace(strings.TrimPrefix(line, bicPrefix))
			if model == "" {
				break
			}
			return model, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrapf(err, "failed to read model report %s", report)
	}
	return "", errors.NewLayoutError(report, fmt.Sprintf("a %q line", bicPrefix)).
		WithCause(errors.ErrLayoutMismatch)
}

// writeNexus writes the sets block. Charset paths are relative to the output
// directory so the file works as the -p argument of a tree inference invoked
// there.
func writeNexus(l *layout.Layout, entries []Entry) error {
	f, err := os.Create(l.PartitionFile())
	if err != nil {
		return errors.Wrapf(err, "failed to create partition file %s", l.PartitionFile())
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprint(w, "#nexus\nbegin sets;\n")
	for _, e := range entries {
		rel, err := filepath.Rel(l.OutputDir(), l.ModelAlignment(e.Locus))
		if err != nil {
			rel = l.ModelAlignment(e.Locus)
		}
		fmt.Fprintf(w, "\tcharset %s = %s: *;\n", e.Locus, filepath.ToSlash(rel))
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Model + ":" + e.Locus
	}
	fmt.Fprintf(w, "\tcharpartition mine = %s;\nend;\n", strings.Join(parts, ", "))

	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to write partition file %s", l.PartitionFile())
	}
	return f.Close()
}
