// Package internal contains integration tests that verify the packages work
// together: a complete pipeline run from per-species fasta files to a final
// tree, with the external tools replaced by faithful stand-ins.
package internal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/phyloflow/phyloflow/internal/config"
	"github.com/phyloflow/phyloflow/internal/layout"
	"github.com/phyloflow/phyloflow/internal/pipeline"
)

func writeTool(t *testing.T, path, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell tools require a POSIX shell")
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
}

// fakeToolchain builds stand-ins for all four tools. The fake BUSCO produces
// the real output layout: a run directory per species with two single-copy
// loci and a completeness summary.
func fakeToolchain(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	writeTool(t, filepath.Join(dir, "busco"), `
while [ $# -gt 0 ]; do
  case "$1" in
    -o) species=$2; shift 2;;
    --out_path) outpath=$2; shift 2;;
    -l) lineage=$2; shift 2;;
    *) shift;;
  esac
done
sc="$outpath/$species/run_${lineage}/busco_sequences/single_copy_busco_sequences"
mkdir -p "$sc"
printf '>%s\nACGTACGTACGTACGTACGT\n' locusA > "$sc/locusA.fna"
printf '>%s\nTTTTACGTACGTACGTAAAA\n' locusB > "$sc/locusB.fna"
printf '\tC:96.5%%[S:95.0%%,D:1.5%%],F:2.0%%,M:1.5%%,n:255\n' > "$outpath/$species/short_summary.$species.txt"`)

	writeTool(t, filepath.Join(dir, "mafft"), `
for last; do :; done
cat "$last"`)

	writeTool(t, filepath.Join(dir, "trimal"), `
while [ $# -gt 0 ]; do
  case "$1" in
    -in) in=$2; shift 2;;
    -out) out=$2; shift 2;;
    *) shift;;
  esac
done
cp "$in" "$out"`)

	writeTool(t, filepath.Join(dir, "iqtree2"), `
mode=""
while [ $# -gt 0 ]; do
  case "$1" in
    -s) mode=model; shift 2;;
    -p) mode=tree; part=$2; shift 2;;
    --prefix) prefix=$2; shift 2;;
    *) shift;;
  esac
done
if [ "$mode" = model ]; then
  echo "Best-fit model according to BIC: TIM2+F+G4" > "$prefix.iqtree"
else
  [ -f "$part" ] || exit 2
  echo "(whale:0.1,(dolphin:0.2,porpoise:0.3):0.1);" > "$prefix.treefile"
fi`)

	cfg := config.Default()
	cfg.Tools.Busco.Path = filepath.Join(dir, "busco")
	cfg.Tools.Mafft.Path = filepath.Join(dir, "mafft")
	cfg.Tools.Trimal.Path = filepath.Join(dir, "trimal")
	cfg.Tools.Iqtree.Path = filepath.Join(dir, "iqtree2")
	return cfg
}

func TestFullPipeline(t *testing.T) {
	cfg := fakeToolchain(t)

	inputDir := t.TempDir()
	for _, sp := range []string{"whale", "dolphin", "porpoise"} {
		content := ">" + sp + "_contig1\nACGTACGTACGTACGTACGTACGT\n"
		if err := os.WriteFile(filepath.Join(inputDir, sp+".fasta"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	outputDir := filepath.Join(t.TempDir(), "cetacea")
	stages, err := pipeline.ParseSelection("0")
	if err != nil {
		t.Fatal(err)
	}
	run := &pipeline.Run{
		InputDir:        inputDir,
		OutputDir:       outputDir,
		Mode:            "genome",
		Lineage:         "cetacea_odb10",
		SharedThreshold: 100,
		CPUs:            2,
		Stages:          stages,
		Bootstrap:       1000,
	}

	var console bytes.Buffer
	ctrl := pipeline.NewController(run, cfg, nil, &console)
	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("pipeline run failed: %v", err)
	}

	l := layout.New(outputDir, "genome")
	wantFiles := []string{
		filepath.Join(l.BuscoDir(), "whale", "short_summary.whale.txt"),
		filepath.Join(l.PassedDir(), "locusA.fna"),
		filepath.Join(l.PassedDir(), "locusB.fna"),
		filepath.Join(l.AlignDir(), "locusA_aligned.fna"),
		filepath.Join(l.TrimDir(), "locusA_trimmed.fna"),
		l.ModelReport("locusA"),
		l.ModelReport("locusB"),
		l.PartitionFile(),
		l.TreeFile(),
	}
	for _, f := range wantFiles {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("expected artifact missing: %s", f)
		}
	}

	// The merged locus files carry one record per species, keyed by species.
	merged, err := os.ReadFile(filepath.Join(l.PassedDir(), "locusA.fna"))
	if err != nil {
		t.Fatal(err)
	}
	for _, sp := range []string{">whale", ">dolphin", ">porpoise"} {
		if !strings.Contains(string(merged), sp+"\n") {
			t.Errorf("merged locus missing %s record", sp)
		}
	}

	// The partition couples every locus to the predicted model.
	nex, err := os.ReadFile(l.PartitionFile())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"#nexus",
		"charset locusA = Models/locusA/locusA_trimmed.fna: *;",
		"charset locusB = Models/locusB/locusB_trimmed.fna: *;",
		"TIM2+F+G4:locusA",
	} {
		if !strings.Contains(string(nex), want) {
			t.Errorf("partition file missing %q:\n%s", want, nex)
		}
	}

	// The run completed and summarized the three-tip tree.
	if !strings.Contains(console.String(), "3 tips") {
		t.Errorf("console output missing tree summary:\n%s", console.String())
	}
}
