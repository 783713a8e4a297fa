package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TuftsBCB/io/newick"

	"github.com/phyloflow/phyloflow/internal/errors"
	"github.com/phyloflow/phyloflow/internal/filter"
	"github.com/phyloflow/phyloflow/internal/layout"
	"github.com/phyloflow/phyloflow/internal/partition"
	"github.com/phyloflow/phyloflow/internal/progress"
	"github.com/phyloflow/phyloflow/internal/qc"
	"github.com/phyloflow/phyloflow/internal/runner"
)

func (c *Controller) runStage(ctx context.Context, stage Stage) error {
	switch stage {
	case StageBusco:
		return c.runBusco(ctx)
	case StageFilter:
		return c.runFilter()
	case StageAlign:
		return c.runAlign(ctx)
	case StageTrim:
		return c.runTrim(ctx)
	case StageModel:
		return c.runModel(ctx)
	case StagePartition:
		return c.runPartition()
	case StageTree:
		return c.runTree(ctx)
	default:
		return errors.Wrapf(errors.ErrInvalidParameters, "unknown stage %d", int(stage))
	}
}

// runBusco detects single-copy orthologs per species. BUSCO is internally
// threaded, so species run one at a time with the whole CPU budget.
func (c *Controller) runBusco(ctx context.Context) error {
	files, err := layout.SpeciesFiles(c.run.InputDir)
	if err != nil {
		return err
	}

	invs := make([]runner.Invocation, 0, len(files))
	for _, file := range files {
		species := layout.SpeciesName(file)
		invs = append(invs, runner.Invocation{
			Unit: species,
			Tool: c.tools.Busco,
			Args: []string{
				"-i", file,
				"-o", species,
				"--out_path", c.lay.BuscoDir(),
				"-l", c.run.Lineage,
				"-m", c.run.Mode,
				"-c", strconv.Itoa(c.cpus()),
				"-f",
			},
			Outputs: []string{filepath.Join(c.lay.BuscoDir(), species)},
		})
	}

	bar := progress.New(c.out)
	bar.Start("detecting orthologs", len(invs))
	defer bar.Done()
	if err := c.exec.RunUnits(ctx, StageBusco.String(), invs, 1, bar.Increment); err != nil {
		return err
	}

	if !c.run.KeepIntermediates {
		c.cleanBuscoIntermediates(invs)
	}
	return nil
}

// cleanBuscoIntermediates removes BUSCO's working directories that no later
// stage reads: the lineage download cache and per-species tool logs. The
// run directories and summaries always stay.
func (c *Controller) cleanBuscoIntermediates(invs []runner.Invocation) {
	log := c.log.WithStage(StageBusco.String())
	remove := []string{filepath.Join(c.run.OutputDir, "busco_downloads")}
	for _, inv := range invs {
		remove = append(remove, filepath.Join(c.lay.BuscoDir(), inv.Unit, "logs"))
	}
	for _, dir := range remove {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("failed to remove intermediate directory", "path", dir, "err", err)
		}
	}
}

// runFilter applies the completeness gate and the shared-locus threshold.
func (c *Controller) runFilter() error {
	scores, err := qc.Survey(c.lay)
	if err != nil {
		return err
	}
	fmt.Fprint(c.out, qc.Render(scores, c.run.MinCompleteness))

	_, skipped := qc.Gate(scores, c.run.MinCompleteness)
	if len(skipped) > 0 {
		fmt.Fprintf(c.out, "skipping below completeness floor: %s\n", strings.Join(skipped, ", "))
	}

	res, err := filter.Run(c.log, c.lay, filter.Options{
		Threshold:  c.run.SharedThreshold,
		KeepFailed: c.cfg.Filter.KeepFailed,
		Exclude:    skipped,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d of %d loci shared by %.0f%% of %d species\n",
		len(res.Passed), res.Surveyed, c.run.SharedThreshold, len(res.Species))
	return nil
}

// runAlign aligns each passed locus with MAFFT, reading the tool's stdout
// into the aligned file.
func (c *Controller) runAlign(ctx context.Context) error {
	names, err := layout.ListByExt(c.lay.PassedDir(), c.lay.Ext())
	if err != nil {
		return err
	}
	if err := layout.EnsureDir(c.lay.AlignDir()); err != nil {
		return err
	}

	workers, threads := c.concurrency()
	invs := make([]runner.Invocation, 0, len(names))
	for _, name := range names {
		locus := layout.Locus(name)
		out := filepath.Join(c.lay.AlignDir(), locus+layout.SuffixAligned+c.lay.Ext())
		invs = append(invs, runner.Invocation{
			Unit:       locus,
			Tool:       c.tools.Mafft,
			Args:       []string{"--auto", "--thread", strconv.Itoa(threads), filepath.Join(c.lay.PassedDir(), name)},
			StdoutFile: out,
			Outputs:    []string{out},
		})
	}

	bar := progress.New(c.out)
	bar.Start("aligning loci", len(invs))
	defer bar.Done()
	return c.exec.RunUnits(ctx, StageAlign.String(), invs, workers, bar.Increment)
}

// runTrim trims each aligned locus with trimAl.
func (c *Controller) runTrim(ctx context.Context) error {
	names, err := layout.ListByExt(c.lay.AlignDir(), c.lay.Ext())
	if err != nil {
		return err
	}
	if err := layout.EnsureDir(c.lay.TrimDir()); err != nil {
		return err
	}

	workers, _ := c.concurrency()
	invs := make([]runner.Invocation, 0, len(names))
	for _, name := range names {
		trimmed, err := layout.RenameSuffix(name, layout.SuffixAligned, layout.SuffixTrimmed)
		if err != nil {
			return err
		}
		out := filepath.Join(c.lay.TrimDir(), trimmed)
		invs = append(invs, runner.Invocation{
			Unit: layout.Locus(name),
			Tool: c.tools.Trimal,
			Args: []string{
				"-in", filepath.Join(c.lay.AlignDir(), name),
				"-out", out,
				"-automated1",
			},
			Outputs: []string{out},
		})
	}

	bar := progress.New(c.out)
	bar.Start("trimming alignments", len(invs))
	defer bar.Done()
	return c.exec.RunUnits(ctx, StageTrim.String(), invs, workers, bar.Increment)
}

// runModel predicts the substitution model per locus. The trimmed alignment
// is copied into the locus' model directory first so IQ-TREE's report and
// working files land there, and so the partition file can reference an
// alignment path that exists.
func (c *Controller) runModel(ctx context.Context) error {
	names, err := layout.ListByExt(c.lay.TrimDir(), c.lay.Ext())
	if err != nil {
		return err
	}

	workers, threads := c.concurrency()
	invs := make([]runner.Invocation, 0, len(names))
	for _, name := range names {
		locus := layout.Locus(name)
		if err := layout.EnsureDir(c.lay.ModelDir(locus)); err != nil {
			return err
		}
		alignment := c.lay.ModelAlignment(locus)
		if err := copyFile(filepath.Join(c.lay.TrimDir(), name), alignment); err != nil {
			return err
		}
		invs = append(invs, runner.Invocation{
			Unit: locus,
			Tool: c.tools.Iqtree,
			Args: []string{
				"-s", alignment,
				"-m", "MF",
				"-T", strconv.Itoa(threads),
				"--prefix", alignment,
			},
			Outputs: []string{c.lay.ModelReport(locus)},
		})
	}

	bar := progress.New(c.out)
	bar.Start("predicting models", len(invs))
	defer bar.Done()
	return c.exec.RunUnits(ctx, StageModel.String(), invs, workers, bar.Increment)
}

func (c *Controller) runPartition() error {
	entries, err := partition.Write(c.log, c.lay)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "partition file %s (%d loci)\n", c.lay.PartitionFile(), len(entries))
	return nil
}

// runTree infers the partitioned tree. IQ-TREE runs from the output
// directory so the partition file's relative alignment paths resolve.
func (c *Controller) runTree(ctx context.Context) error {
	if _, err := os.Stat(c.lay.PartitionFile()); err != nil {
		return errors.NewLayoutError(c.lay.PartitionFile(), "partition file from the partition stage").WithCause(err)
	}
	if err := layout.EnsureDir(c.lay.TreeDir()); err != nil {
		return err
	}

	args := []string{
		"-p", c.lay.RunName() + ".nex",
		"--prefix", filepath.Join("Tree", c.lay.RunName()),
		"-T", strconv.Itoa(c.cpus()),
	}
	if c.run.Bootstrap > 0 {
		args = append(args, "-B", strconv.Itoa(c.run.Bootstrap))
	}

	inv := runner.Invocation{
		Tool:    c.tools.Iqtree,
		Args:    args,
		Dir:     c.run.OutputDir,
		Outputs: []string{c.lay.TreeFile()},
	}
	if err := c.exec.RunUnits(ctx, StageTree.String(), []runner.Invocation{inv}, 1, nil); err != nil {
		return err
	}

	c.summarizeTree()
	return nil
}

// summarizeTree reports the tip count of the inferred tree. Failures here
// never fail the run: the tree exists, the summary is a courtesy.
func (c *Controller) summarizeTree() {
	log := c.log.WithStage(StageTree.String())
	f, err := os.Open(c.lay.TreeFile())
	if err != nil {
		log.Warn("failed to open tree for summary", "err", err)
		return
	}
	defer f.Close()

	tree, err := newick.NewReader(f).ReadTree()
	if err != nil {
		log.Warn("failed to parse tree for summary", "err", err)
		return
	}
	tips := countTips(tree)
	log.Info("tree inferred", "path", c.lay.TreeFile(), "tips", tips)
	fmt.Fprintf(c.out, "tree written to %s (%d tips)\n", c.lay.TreeFile(), tips)
}

func countTips(t *newick.Tree) int {
	if len(t.Children) == 0 {
		return 1
	}
	n := 0
	for i := range t.Children {
		n += countTips(&t.Children[i])
	}
	return n
}

// copyFile copies src to dst, truncating any existing dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "failed to copy %s to %s", src, dst)
	}
	return out.Close()
}
