package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phyloflow/phyloflow/internal/config"
	"github.com/phyloflow/phyloflow/internal/errors"
	"github.com/phyloflow/phyloflow/internal/layout"
)

// writeScript installs an executable fake tool.
func writeScript(t *testing.T, path, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell tools require a POSIX shell")
	}
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
}

// fakeTools builds stand-ins for the four external tools that honor the real
// argument conventions: mafft copies its input to stdout, trimal copies
// -in to -out, and iqtree either writes a model report (-s) or a tree (-p).
func fakeTools(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	writeScript(t, filepath.Join(dir, "mafft"), `
for last; do :; done
cat "$last"`)

	writeScript(t, filepath.Join(dir, "trimal"), `
while [ $# -gt 0 ]; do
  case "$1" in
    -in) in=$2; shift 2;;
    -out) out=$2; shift 2;;
    *) shift;;
  esac
done
cp "$in" "$out"`)

	writeScript(t, filepath.Join(dir, "iqtree2"), `
mode=""
while [ $# -gt 0 ]; do
  case "$1" in
    -s) mode=model; shift 2;;
    -p) mode=tree; shift 2;;
    --prefix) prefix=$2; shift 2;;
    *) shift;;
  esac
done
if [ "$mode" = model ]; then
  echo "Best-fit model according to BIC: GTR+F+I+G4" > "$prefix.iqtree"
else
  echo "(sp1:0.1,(sp2:0.2,sp3:0.3):0.1);" > "$prefix.treefile"
fi`)

	cfg := config.Default()
	cfg.Tools.Mafft.Path = filepath.Join(dir, "mafft")
	cfg.Tools.Trimal.Path = filepath.Join(dir, "trimal")
	cfg.Tools.Iqtree.Path = filepath.Join(dir, "iqtree2")
	return cfg
}

// seedDetectionOutput fakes a completed ortholog detection stage: per-species
// run directories with single-copy loci and completeness summaries.
func seedDetectionOutput(t *testing.T, l *layout.Layout, loci map[string][]string) {
	t.Helper()
	for sp, names := range loci {
		spDir := filepath.Join(l.BuscoDir(), sp)
		scDir := filepath.Join(spDir, "run_lineage_odb10", "busco_sequences", "single_copy_busco_sequences")
		require.NoError(t, os.MkdirAll(scDir, 0o755))
		summary := "***** Results: *****\n\tC:97.5%[S:96.0%,D:1.5%],F:1.0%,M:1.5%,n:255\n"
		require.NoError(t, os.WriteFile(filepath.Join(spDir, "short_summary.lineage."+sp+".txt"), []byte(summary), 0o644))
		for _, locus := range names {
			content := ">" + locus + ":1-120\nACGTACGTACGTACGTACGT\n"
			require.NoError(t, os.WriteFile(filepath.Join(scDir, locus+".fna"), []byte(content), 0o644))
		}
	}
}

func TestControllerRunFromFilterToTree(t *testing.T) {
	cfg := fakeTools(t)
	out := filepath.Join(t.TempDir(), "myrun")
	l := layout.New(out, "genome")
	seedDetectionOutput(t, l, map[string][]string{
		"sp1": {"locusA", "locusB"},
		"sp2": {"locusA", "locusB"},
		"sp3": {"locusA", "locusB"},
	})

	stages, err := ParseSelection("2,3,4,5,6,7")
	require.NoError(t, err)
	run := &Run{
		OutputDir:       out,
		Mode:            "genome",
		SharedThreshold: 100,
		CPUs:            2,
		Stages:          stages,
		Bootstrap:       1000,
	}

	var console bytes.Buffer
	ctrl := NewController(run, cfg, nil, &console)
	require.NoError(t, ctrl.Run(context.Background()))

	state, _ := ctrl.State()
	assert.Equal(t, StateCompleted, state)

	// Every stage left its contracted artifacts behind.
	assert.FileExists(t, filepath.Join(l.PassedDir(), "locusA.fna"))
	assert.FileExists(t, filepath.Join(l.AlignDir(), "locusA_aligned.fna"))
	assert.FileExists(t, filepath.Join(l.TrimDir(), "locusA_trimmed.fna"))
	assert.FileExists(t, l.ModelReport("locusA"))
	assert.FileExists(t, l.PartitionFile())
	assert.FileExists(t, l.TreeFile())

	nex, err := os.ReadFile(l.PartitionFile())
	require.NoError(t, err)
	assert.Contains(t, string(nex), "charset locusA = Models/locusA/locusA_trimmed.fna: *;")
	assert.Contains(t, string(nex), "GTR+F+I+G4:locusA")

	// The courtesy tree summary counted the three tips.
	assert.Contains(t, console.String(), "3 tips")
}

func TestControllerRerunLaterStageLeavesEarlierOutputs(t *testing.T) {
	cfg := fakeTools(t)
	out := filepath.Join(t.TempDir(), "run")
	l := layout.New(out, "genome")
	seedDetectionOutput(t, l, map[string][]string{
		"sp1": {"locusA"},
		"sp2": {"locusA"},
	})

	first, err := ParseSelection("2,3")
	require.NoError(t, err)
	run := &Run{OutputDir: out, Mode: "genome", SharedThreshold: 100, Stages: first}
	require.NoError(t, NewController(run, cfg, nil, nil).Run(context.Background()))

	aligned := filepath.Join(l.AlignDir(), "locusA_aligned.fna")
	before, err := os.ReadFile(aligned)
	require.NoError(t, err)

	// Rerunning only the trim stage must consume, not rewrite, the
	// alignment output.
	rerun := &Run{OutputDir: out, Mode: "genome", SharedThreshold: 100, Stages: []Stage{StageTrim}}
	require.NoError(t, NewController(rerun, cfg, nil, nil).Run(context.Background()))

	after, err := os.ReadFile(aligned)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.FileExists(t, filepath.Join(l.TrimDir(), "locusA_trimmed.fna"))
}

func TestControllerFailFastSequential(t *testing.T) {
	cfg := fakeTools(t)
	cfg.Execution.Parallel = false

	// Replace trimal with one that fails on the third locus.
	dir := filepath.Dir(cfg.Tools.Trimal.Path)
	writeScript(t, filepath.Join(dir, "trimal"), `
while [ $# -gt 0 ]; do
  case "$1" in
    -in) in=$2; shift 2;;
    -out) out=$2; shift 2;;
    *) shift;;
  esac
done
case "$in" in
  *locus03*) echo "broken alignment" >&2; exit 1;;
esac
cp "$in" "$out"`)

	out := filepath.Join(t.TempDir(), "run")
	l := layout.New(out, "genome")
	loci := []string{"locus01", "locus02", "locus03", "locus04", "locus05"}
	seedDetectionOutput(t, l, map[string][]string{"sp1": loci, "sp2": loci})

	stages, err := ParseSelection("2,3,4")
	require.NoError(t, err)
	run := &Run{OutputDir: out, Mode: "genome", SharedThreshold: 100, Stages: stages}

	ctrl := NewController(run, cfg, nil, nil)
	err = ctrl.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStageFailed)

	state, stage := ctrl.State()
	assert.Equal(t, StateFailed, state)
	assert.Equal(t, StageTrim, stage)

	var stageErr *errors.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "locus03", stageErr.Unit)
	assert.Contains(t, stageErr.Stderr, "broken alignment")

	// Sequential ordering is deterministic: units before the failure
	// completed, units after it never ran.
	assert.FileExists(t, filepath.Join(l.TrimDir(), "locus01_trimmed.fna"))
	assert.FileExists(t, filepath.Join(l.TrimDir(), "locus02_trimmed.fna"))
	assert.NoFileExists(t, filepath.Join(l.TrimDir(), "locus03_trimmed.fna"))
	assert.NoFileExists(t, filepath.Join(l.TrimDir(), "locus04_trimmed.fna"))
	assert.NoFileExists(t, filepath.Join(l.TrimDir(), "locus05_trimmed.fna"))

	// The aligner's outputs from the completed stage survive the failure.
	assert.FileExists(t, filepath.Join(l.AlignDir(), "locus03_aligned.fna"))
}

func TestControllerValidatesBeforeSpawning(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.Busco.Path = "/definitely/not/a/tool"

	run := &Run{
		InputDir:  t.TempDir(),
		OutputDir: filepath.Join(t.TempDir(), "out"),
		Mode:      "genome",
		// Lineage missing while detection is selected.
		SharedThreshold: 100,
		Stages:          AllStages(),
	}

	err := NewController(run, cfg, nil, nil).Run(context.Background())
	require.Error(t, err)
	// Parameter validation fires before the tool check ever runs.
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)
	assert.NotErrorIs(t, err, errors.ErrMissingTool)
	assert.NoDirExists(t, run.OutputDir)
}

func TestControllerChecksToolsBeforeFirstStage(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.Mafft.Path = "/definitely/not/mafft"

	out := filepath.Join(t.TempDir(), "run")
	l := layout.New(out, "genome")
	seedDetectionOutput(t, l, map[string][]string{"sp1": {"locusA"}, "sp2": {"locusA"}})

	stages, err := ParseSelection("2,3")
	require.NoError(t, err)
	run := &Run{OutputDir: out, Mode: "genome", SharedThreshold: 100, Stages: stages}

	err = NewController(run, cfg, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingTool)

	// The filter stage never ran: the missing aligner surfaced up front.
	assert.NoDirExists(t, l.FilteredDir())
}
