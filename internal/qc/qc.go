// Package qc reports per-species ortholog completeness after the detection
// stage and applies the optional completeness floor. Low-completeness
// assemblies drag every shared locus below the filter threshold, so the gate
// runs before the locus survey rather than after it.
package qc

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/phyloflow/phyloflow/internal/errors"
	"github.com/phyloflow/phyloflow/internal/layout"
)

// Default coloring thresholds when no explicit floor is set.
const (
	greenAt  = 95.0
	yellowAt = 90.0
)

var (
	completenessRe = regexp.MustCompile(`C:\s*([0-9]+(?:\.[0-9]+)?)%`)

	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// Score is one species' completeness percentage.
type Score struct {
	Species string
	Percent float64
}

// Survey parses the completeness summary of every species with a detection
// run, sorted by species name.
func Survey(l *layout.Layout) ([]Score, error) {
	species, err := l.SpeciesRuns()
	if err != nil {
		return nil, err
	}

	scores := make([]Score, 0, len(species))
	for _, sp := range species {
		summary, err := l.SummaryFile(sp)
		if err != nil {
			return nil, err
		}
		pct, err := parseSummary(summary)
		if err != nil {
			return nil, err
		}
		scores = append(scores, Score{Species: sp, Percent: pct})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Species < scores[j].Species })
	return scores, nil
}

func parseSummary(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read completeness summary %s", path)
	}
	m := completenessRe.FindSubmatch(data)
	if m == nil {
		return 0, errors.NewLayoutError(path, `a completeness line like "C:97.5%"`).
			WithCause(errors.ErrLayoutMismatch)
	}
	pct, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse completeness in %s", path)
	}
	return pct, nil
}

// Gate splits the scores at the completeness floor. A floor of zero keeps
// everything.
func Gate(scores []Score, floor float64) (kept []Score, skipped []string) {
	if floor <= 0 {
		return scores, nil
	}
	for _, s := range scores {
		if s.Percent >= floor {
			kept = append(kept, s)
		} else {
			skipped = append(skipped, s.Species)
		}
	}
	return kept, skipped
}

// Render returns the completeness table plus a summary line. With no floor
// the coloring uses the conventional 95/90 bands; with a floor, anything at
// or above the floor is good and the rest is flagged for skipping.
func Render(scores []Score, floor float64) string {
	if len(scores) == 0 {
		return ""
	}

	nameWidth := 0
	valWidth := 0
	for _, s := range scores {
		if len(s.Species) > nameWidth {
			nameWidth = len(s.Species)
		}
		if w := len(formatPct(s.Percent)); w > valWidth {
			valWidth = w
		}
	}
	// "|  " + name + 4 spaces + value + "%" + "  |"
	inner := nameWidth + valWidth + 9

	var b strings.Builder
	title := "ORTHOLOG COMPLETENESS OF ASSEMBLIES"
	pad := (inner - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad+1) + headerStyle.Render(title) + "\n")
	b.WriteString("+" + strings.Repeat("-", inner) + "+\n")
	for _, s := range scores {
		row := fmt.Sprintf("%-*s    %*s%%", nameWidth, s.Species, valWidth, formatPct(s.Percent))
		b.WriteString("|  " + styleFor(s.Percent, floor).Render(row) + "  |\n")
	}
	b.WriteString("+" + strings.Repeat("-", inner) + "+\n")

	vals := make([]float64, len(scores))
	for i, s := range scores {
		vals[i] = s.Percent
	}
	b.WriteString(fmt.Sprintf("mean completeness %.1f%%, minimum %.1f%%\n",
		stat.Mean(vals, nil), floats.Min(vals)))
	return b.String()
}

func styleFor(pct, floor float64) lipgloss.Style {
	if floor > 0 {
		if pct >= floor {
			return goodStyle
		}
		return badStyle
	}
	switch {
	case pct >= greenAt:
		return goodStyle
	case pct >= yellowAt:
		return warnStyle
	default:
		return badStyle
	}
}

func formatPct(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
