// Package filter surveys the single-copy orthologs found per species and
// keeps the loci shared by enough of the analyzed species. Passing loci are
// merged into one multi-fasta per locus, ready for alignment; the rest are
// merged into a Failed directory so a rerun with a lower threshold does not
// have to repeat ortholog detection.
package filter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/TuftsBCB/io/fasta"
	"github.com/TuftsBCB/seq"

	"github.com/phyloflow/phyloflow/internal/errors"
	"github.com/phyloflow/phyloflow/internal/layout"
	"github.com/phyloflow/phyloflow/internal/logging"
)

// Options controls which loci survive the filter.
type Options struct {
	// Threshold is the minimum percentage of species a locus must be
	// present in. At 100 the rule is strict equality: present in every
	// species, no rounding.
	Threshold float64
	// KeepFailed writes the rejected loci to the Failed directory instead
	// of discarding them.
	KeepFailed bool
	// Exclude removes species from the survey entirely, typically because
	// their completeness fell below the configured floor. Excluded species
	// count toward neither presence nor the total.
	Exclude []string
}

// Result summarizes one filter pass.
type Result struct {
	Species []string
	// Surveyed is the number of distinct loci seen across all species.
	Surveyed int
	Passed   []string
	Failed   []string
	// MaxPresence is the best species count any locus reached. Reported in
	// the no-shared-loci error so the user can pick a workable threshold.
	MaxPresence int
}

// Run surveys the detection output under l and writes the merged per-locus
// fasta files. It fails with ErrNoSharedLoci when the threshold rejects every
// locus.
func Run(log *logging.Logger, l *layout.Layout, opts Options) (*Result, error) {
	log = log.WithStage("filter")

	species, err := l.SpeciesRuns()
	if err != nil {
		return nil, err
	}
	if len(opts.Exclude) > 0 {
		skip := make(map[string]bool, len(opts.Exclude))
		for _, sp := range opts.Exclude {
			skip[sp] = true
		}
		kept := species[:0]
		for _, sp := range species {
			if skip[sp] {
				log.Info("species excluded by completeness gate", "species", sp)
				continue
			}
			kept = append(kept, sp)
		}
		species = kept
		if len(species) == 0 {
			return nil, errors.Wrap(errors.ErrNoSharedLoci, "every species was excluded by the completeness gate")
		}
	}

	dirs := make(map[string]string, len(species))
	presence := make(map[string][]string)
	ext := l.Ext()
	for _, sp := range species {
		dir, err := l.SingleCopyDir(sp)
		if err != nil {
			return nil, err
		}
		dirs[sp] = dir

		loci, err := listLoci(dir, ext)
		if err != nil {
			return nil, err
		}
		for _, locus := range loci {
			presence[locus] = append(presence[locus], sp)
		}
	}

	res := &Result{Species: species, Surveyed: len(presence)}
	for locus, present := range presence {
		if len(present) > res.MaxPresence {
			res.MaxPresence = len(present)
		}
		if passes(len(present), len(species), opts.Threshold) {
			res.Passed = append(res.Passed, locus)
		} else {
			res.Failed = append(res.Failed, locus)
		}
	}
	sort.Strings(res.Passed)
	sort.Strings(res.Failed)

	log.Info("locus survey complete",
		"species", len(species),
		"loci", res.Surveyed,
		"passed", len(res.Passed),
		"failed", len(res.Failed),
		"threshold", opts.Threshold)

	if len(res.Passed) == 0 {
		maxPct := 0.0
		if len(species) > 0 {
			maxPct = float64(res.MaxPresence) / float64(len(species)) * 100
		}
		return nil, errors.Wrapf(errors.ErrNoSharedLoci,
			"no locus is present in %.0f%% of %d species (best locus reaches %.0f%%)",
			opts.Threshold, len(species), maxPct)
	}

	if err := merge(l.PassedDir(), res.Passed, presence, dirs, ext); err != nil {
		return nil, err
	}
	if opts.KeepFailed && len(res.Failed) > 0 {
		if err := merge(l.FailedDir(), res.Failed, presence, dirs, ext); err != nil {
			return nil, err
		}
	}

	var written []string
	for _, locus := range res.Passed {
		written = append(written, filepath.Join(l.PassedDir(), locus+ext))
	}
	if err := layout.VerifyManifest(written); err != nil {
		return nil, err
	}
	return res, nil
}

// passes applies the presence rule. A threshold of 100 means present in every
// species; float comparison never gets a say there.
func passes(present, total int, threshold float64) bool {
	if threshold >= 100 {
		return present == total
	}
	return float64(present)/float64(total)*100 >= threshold
}

// listLoci returns the locus names (filename stems) in one species'
// single-copy directory. A species contributing no loci is allowed; it simply
// weakens every locus' coverage.
func listLoci(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read single-copy directory %s", dir)
	}
	var loci []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		loci = append(loci, strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
	}
	return loci, nil
}

// merge writes one multi-fasta per locus into dir. Each entry carries the
// species name as its header, replacing the detection tool's coordinate
// headers, so every downstream file keys sequences by species.
func merge(dir string, loci []string, presence map[string][]string, dirs map[string]string, ext string) error {
	if err := layout.EnsureDir(dir); err != nil {
		return err
	}
	for _, locus := range loci {
		if err := mergeLocus(filepath.Join(dir, locus+ext), locus, presence[locus], dirs, ext); err != nil {
			return err
		}
	}
	return nil
}

func mergeLocus(dst, locus string, species []string, dirs map[string]string, ext string) error {
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create merged locus file %s", dst)
	}
	defer out.Close()

	w := fasta.NewWriter(out)
	for _, sp := range species {
		entry, err := readFirstEntry(filepath.Join(dirs[sp], locus+ext))
		if err != nil {
			return errors.Wrapf(err, "locus %s, species %s", locus, sp)
		}
		entry.Name = sp
		if err := w.Write(entry); err != nil {
			return errors.Wrapf(err, "failed to write %s entry for %s", locus, sp)
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to flush merged locus file %s", dst)
	}
	return out.Close()
}

// readFirstEntry reads the single sequence of a single-copy ortholog file.
func readFirstEntry(path string) (seq.Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return seq.Sequence{}, errors.Wrap(err, "failed to open sequence file")
	}
	defer f.Close()

	entry, err := fasta.NewReader(f).Read()
	if err != nil {
		return seq.Sequence{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return entry, nil
}
