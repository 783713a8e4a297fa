// Package layout manages the fixed directory tree that carries artifacts from
// one pipeline stage to the next. The tree is the handoff contract between
// stages: every stage consumes its predecessor's output positionally, by
// directory location and filename convention, with no manifest file on disk.
// The layout here mirrors the conventions of the wrapped tools so a partially
// completed run can be resumed in place.
//
// Rooted at the run's output directory:
//
//	BUSCO_output/<species>/run_<lineage>_odb*/busco_sequences/
//	    single_copy_busco_sequences/<locus>.{fna|faa}
//	Filtered_BUSCOs/{Passed,Failed}/<locus>.{fna|faa}
//	MAFFT_output/<locus>_aligned.{fna|faa}
//	Trimmed_MSAs/<locus>_trimmed.{fna|faa}
//	Models/<locus>/<locus>_trimmed.{fna|faa}.iqtree
//	<runname>.nex
//	Tree/<runname>.treefile
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/phyloflow/phyloflow/internal/errors"
)

// Filename suffixes appended as a locus moves through the pipeline.
const (
	SuffixAligned = "_aligned"
	SuffixTrimmed = "_trimmed"
)

// speciesExtensions are the fasta extensions accepted for input species files.
var speciesExtensions = []string{".fasta", ".fa", ".fna", ".faa"}

// runDirGlob matches the per-lineage run directory BUSCO creates inside each
// species output (e.g. run_ascomycota_odb10). The dataset version suffix
// varies between BUSCO releases, so it is matched rather than constructed.
var runDirGlob = glob.MustCompile("run_*_odb*")

// summaryGlob matches BUSCO's per-species completeness summary file.
var summaryGlob = glob.MustCompile("short_summary*.txt")

// Layout resolves canonical paths inside one run's output directory.
type Layout struct {
	outputDir string
	mode      string // "genome" or "proteins"
}

// New creates a Layout rooted at outputDir for the given analysis mode.
func New(outputDir, mode string) *Layout {
	return &Layout{outputDir: filepath.Clean(outputDir), mode: mode}
}

// OutputDir returns the root of the run's output tree.
func (l *Layout) OutputDir() string {
	return l.outputDir
}

// RunName returns the name used for run-level artifacts (partition file,
// final tree prefix). It is the base name of the output directory.
func (l *Layout) RunName() string {
	return filepath.Base(l.outputDir)
}

// Ext returns the sequence-file extension for the run's mode: BUSCO emits
// nucleotide fragments (.fna) in genome mode and amino acid fragments (.faa)
// in proteins mode.
func (l *Layout) Ext() string {
	if l.mode == "proteins" {
		return ".faa"
	}
	return ".fna"
}

// BuscoDir returns the ortholog-detection output directory.
func (l *Layout) BuscoDir() string {
	return filepath.Join(l.outputDir, "BUSCO_output")
}

// FilteredDir returns the root of the filtering stage output.
func (l *Layout) FilteredDir() string {
	return filepath.Join(l.outputDir, "Filtered_BUSCOs")
}

// PassedDir returns the directory of loci that met the shared threshold.
func (l *Layout) PassedDir() string {
	return filepath.Join(l.FilteredDir(), "Passed")
}

// FailedDir returns the directory of loci below the shared threshold.
func (l *Layout) FailedDir() string {
	return filepath.Join(l.FilteredDir(), "Failed")
}

// AlignDir returns the alignment stage output directory.
func (l *Layout) AlignDir() string {
	return filepath.Join(l.outputDir, "MAFFT_output")
}

// TrimDir returns the trimming stage output directory.
func (l *Layout) TrimDir() string {
	return filepath.Join(l.outputDir, "Trimmed_MSAs")
}

// ModelsDir returns the model-selection output directory. Each locus gets its
// own subdirectory so IQ-TREE's working files don't collide.
func (l *Layout) ModelsDir() string {
	return filepath.Join(l.outputDir, "Models")
}

// ModelDir returns the model-selection directory for one locus.
func (l *Layout) ModelDir(locus string) string {
	return filepath.Join(l.ModelsDir(), locus)
}

// ModelAlignment returns the per-locus copy of the trimmed alignment inside
// the locus' model directory. Model selection runs on this copy so that
// IQ-TREE's working files land next to it instead of in Trimmed_MSAs.
func (l *Layout) ModelAlignment(locus string) string {
	return filepath.Join(l.ModelDir(locus), locus+SuffixTrimmed+l.Ext())
}

// ModelReport returns the IQ-TREE report produced by model selection for one
// locus.
func (l *Layout) ModelReport(locus string) string {
	return l.ModelAlignment(locus) + ".iqtree"
}

// TreeDir returns the final tree inference output directory.
func (l *Layout) TreeDir() string {
	return filepath.Join(l.outputDir, "Tree")
}

// PartitionFile returns the path of the nexus partition file.
func (l *Layout) PartitionFile() string {
	return filepath.Join(l.outputDir, l.RunName()+".nex")
}

// TreeFile returns the path of the final tree with support values.
func (l *Layout) TreeFile() string {
	return filepath.Join(l.TreeDir(), l.RunName()+".treefile")
}

// TreePrefix returns the filename prefix for the tree inference outputs.
func (l *Layout) TreePrefix() string {
	return filepath.Join(l.TreeDir(), l.RunName())
}

// EnsureDir creates dir (and parents) if absent.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}
	return nil
}

// RenameSuffix rewrites a stage filename into the next stage's convention by
// replacing the suffix before the extension, e.g.
//
//	RenameSuffix("locus1_aligned.fna", SuffixAligned, SuffixTrimmed)
//	  == "locus1_trimmed.fna"
//
// A filename without the expected suffix signals layout drift (stages run out
// of order, or files renamed by hand) and is rejected.
func RenameSuffix(name, from, to string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if !strings.HasSuffix(stem, from) {
		return "", errors.NewLayoutError(name, from+" suffix")
	}
	return strings.TrimSuffix(stem, from) + to + ext, nil
}

// Locus extracts the locus identifier from a stage filename by stripping the
// extension and any stage suffix.
func Locus(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	stem = strings.TrimSuffix(stem, SuffixAligned)
	stem = strings.TrimSuffix(stem, SuffixTrimmed)
	return stem
}

// SpeciesName returns the species identity for an input file: its filename
// stem.
func SpeciesName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SpeciesFiles lists the per-species fasta files in inputDir, sorted by name.
// An input directory without any fasta file is a layout error.
func SpeciesFiles(inputDir string) ([]string, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read input directory %s", inputDir)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, accepted := range speciesExtensions {
			if ext == accepted {
				files = append(files, filepath.Join(inputDir, entry.Name()))
				break
			}
		}
	}
	if len(files) == 0 {
		return nil, errors.NewLayoutError(inputDir, "at least one fasta file (.fasta, .fa, .fna, .faa)")
	}

	sort.Strings(files)
	return files, nil
}

// SpeciesRuns lists the species that have an ortholog-detection output
// directory, sorted by name.
func (l *Layout) SpeciesRuns() ([]string, error) {
	entries, err := os.ReadDir(l.BuscoDir())
	if err != nil {
		return nil, errors.NewLayoutError(l.BuscoDir(), "BUSCO_output directory from the ortholog detection stage").WithCause(err)
	}

	var species []string
	for _, entry := range entries {
		if entry.IsDir() {
			species = append(species, entry.Name())
		}
	}
	if len(species) == 0 {
		return nil, errors.NewLayoutError(l.BuscoDir(), "one subdirectory per analyzed species")
	}

	sort.Strings(species)
	return species, nil
}

// SingleCopyDir locates the single-copy ortholog directory inside one
// species' detection output.
func (l *Layout) SingleCopyDir(species string) (string, error) {
	speciesDir := filepath.Join(l.BuscoDir(), species)
	runDir, err := matchEntry(speciesDir, runDirGlob, "run_<lineage>_odb* directory")
	if err != nil {
		return "", err
	}

	dir := filepath.Join(speciesDir, runDir, "busco_sequences", "single_copy_busco_sequences")
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", errors.NewLayoutError(dir, "single_copy_busco_sequences directory")
	}
	return dir, nil
}

// SummaryFile locates the completeness summary inside one species' detection
// output.
func (l *Layout) SummaryFile(species string) (string, error) {
	speciesDir := filepath.Join(l.BuscoDir(), species)
	name, err := matchEntry(speciesDir, summaryGlob, "short_summary*.txt file")
	if err != nil {
		return "", err
	}
	return filepath.Join(speciesDir, name), nil
}

// ListByExt lists filenames (not paths) in dir with the given extension,
// sorted. A readable but empty result is a layout error: the predecessor
// stage left nothing to consume.
func ListByExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewLayoutError(dir, fmt.Sprintf("directory with %s files from the previous stage", ext)).WithCause(err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, errors.NewLayoutError(dir, fmt.Sprintf("at least one %s file from the previous stage", ext))
	}

	sort.Strings(names)
	return names, nil
}

// VerifyManifest checks that every expected output path exists on disk.
// It turns the legacy implicit failure mode (missing files surfacing only at
// the next stage) into an explicit one at the moment the stage completes.
func VerifyManifest(paths []string) error {
	var missing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return errors.NewLayoutError(strings.Join(missing, ", "), "output files declared by the completed stage").
			WithCause(errors.ErrMissingOutput)
	}
	return nil
}

// matchEntry returns the name of the single directory entry matching the
// glob, or a layout error naming what was expected.
func matchEntry(dir string, g glob.Glob, expected string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.NewLayoutError(dir, expected).WithCause(err)
	}
	for _, entry := range entries {
		if g.Match(entry.Name()) {
			return entry.Name(), nil
		}
	}
	return "", errors.NewLayoutError(dir, expected)
}
