// Package progress renders a single-line, overwriting progress bar for
// stages that process many per-species or per-locus units. The bar is
// advisory only: it never affects pipeline state, and it stays silent when
// stdout is not a terminal so batch logs remain clean.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/phyloflow/phyloflow/internal/util"
)

const defaultBarWidth = 40

var (
	filledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // grey
	labelStyle  = lipgloss.NewStyle().Bold(true)
)

// Bar is a terminal progress bar. It is safe for concurrent use: parallel
// units call Increment from worker goroutines and rendering is serialized.
type Bar struct {
	mu        sync.Mutex
	w         io.Writer
	enabled   bool
	width     int
	termWidth int

	label string
	total int
	done  int
}

// New creates a Bar writing to w. Rendering is enabled only when w is a
// terminal.
func New(w io.Writer) *Bar {
	b := &Bar{w: w, width: defaultBarWidth}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b.enabled = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			b.termWidth = cols
			if cols < b.width+30 {
				// Leave room for the label and the percentage counter.
				b.width = max(10, cols-30)
			}
		}
	}
	return b
}

// NewForTest creates an always-enabled Bar with a fixed width, for tests.
func NewForTest(w io.Writer, width int) *Bar {
	return &Bar{w: w, enabled: true, width: width}
}

// Start begins a new labeled phase with the given total unit count.
func (b *Bar) Start(label string, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.label = label
	b.total = total
	b.done = 0
	b.render()
}

// Increment marks one unit complete and redraws the bar.
func (b *Bar) Increment() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done < b.total {
		b.done++
	}
	b.render()
}

// Done finishes the current phase, moving the cursor to a fresh line.
func (b *Bar) Done() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled || b.total == 0 {
		return
	}
	b.done = b.total
	b.render()
	fmt.Fprintln(b.w)
}

// render draws the bar in place. Callers hold b.mu.
func (b *Bar) render() {
	if !b.enabled || b.total == 0 {
		return
	}

	percent := float64(b.done) / float64(b.total)
	filled := int(percent * float64(b.width))
	if filled > b.width {
		filled = b.width
	}

	bar := filledStyle.Render(strings.Repeat("█", filled)) +
		emptyStyle.Render(strings.Repeat("-", b.width-filled))

	line := fmt.Sprintf("\r%s |%s| %3.0f%% (%d/%d)",
		labelStyle.Render(util.TruncateString(b.label, 24)), bar, percent*100, b.done, b.total)
	if b.termWidth > 0 {
		// A line wider than the terminal wraps and breaks the \r overwrite.
		line = "\r" + util.TruncateANSI(line[1:], b.termWidth)
	}
	fmt.Fprint(b.w, line)
}
