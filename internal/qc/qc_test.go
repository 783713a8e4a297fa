package qc

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phyloflow/phyloflow/internal/errors"
	"github.com/phyloflow/phyloflow/internal/layout"
)

// seedSummaries writes one detection run per species with a short_summary
// file in the real BUSCO format.
func seedSummaries(t *testing.T, outputDir string, scores map[string]float64) *layout.Layout {
	t.Helper()
	l := layout.New(outputDir, "genome")
	for sp, pct := range scores {
		dir := filepath.Join(l.BuscoDir(), sp)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "run_lineage_odb10"), 0o755))
		content := "# BUSCO version is: 5.4.7\n" +
			"# Summarized benchmarking in BUSCO notation for file " + sp + ".fasta\n" +
			"***** Results: *****\n\n" +
			"\tC:" + strconv.FormatFloat(pct, 'f', 1, 64) + "%[S:96.2%,D:1.1%],F:1.2%,M:1.5%,n:255\n"
		path := filepath.Join(dir, "short_summary.specific.lineage_odb10."+sp+".txt")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return l
}

func TestSurvey(t *testing.T) {
	l := seedSummaries(t, t.TempDir(), map[string]float64{
		"sp_b": 97.3,
		"sp_a": 88.0,
	})

	scores, err := Survey(l)
	require.NoError(t, err)
	assert.Equal(t, []Score{
		{Species: "sp_a", Percent: 88.0},
		{Species: "sp_b", Percent: 97.3},
	}, scores)
}

func TestSurveyMissingCompletenessLine(t *testing.T) {
	outputDir := t.TempDir()
	l := layout.New(outputDir, "genome")
	dir := filepath.Join(l.BuscoDir(), "sp1")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "run_lineage_odb10"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short_summary.sp1.txt"), []byte("no scores here\n"), 0o644))

	_, err := Survey(l)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLayoutMismatch)
}

func TestGate(t *testing.T) {
	scores := []Score{
		{Species: "sp_a", Percent: 88.0},
		{Species: "sp_b", Percent: 97.3},
		{Species: "sp_c", Percent: 92.0},
	}

	tests := []struct {
		name        string
		floor       float64
		wantKept    int
		wantSkipped []string
	}{
		{name: "no floor keeps all", floor: 0, wantKept: 3, wantSkipped: nil},
		{name: "floor at 90", floor: 90, wantKept: 2, wantSkipped: []string{"sp_a"}},
		{name: "floor above all", floor: 99, wantKept: 0, wantSkipped: []string{"sp_a", "sp_b", "sp_c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, skipped := Gate(scores, tt.floor)
			assert.Len(t, kept, tt.wantKept)
			assert.Equal(t, tt.wantSkipped, skipped)
		})
	}
}

func TestRender(t *testing.T) {
	scores := []Score{
		{Species: "short", Percent: 97.3},
		{Species: "a_much_longer_name", Percent: 88.0},
	}

	out := Render(scores, 0)
	assert.Contains(t, out, "ORTHOLOG COMPLETENESS OF ASSEMBLIES")
	assert.Contains(t, out, "short")
	assert.Contains(t, out, "97.3%")
	assert.Contains(t, out, "a_much_longer_name")
	assert.Contains(t, out, "88%")
	// mean of 97.3 and 88.0 is 92.65, minimum 88.0
	assert.Contains(t, out, "mean completeness 92.7%, minimum 88.0%")
}

func TestRenderEmpty(t *testing.T) {
	assert.Empty(t, Render(nil, 0))
}
