// Package tui provides the interactive parameter wizard: a sequential
// prompt that collects the same parameters as the run command's flags, for
// users who prefer answering questions over assembling a flag line.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/phyloflow/phyloflow/internal/errors"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	promptStyle = lipgloss.NewStyle().Bold(true)
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Field is one wizard question. Default is used when the user submits an
// empty answer; Required fields refuse an empty answer without a default.
type Field struct {
	Key      string
	Prompt   string
	Hint     string
	Default  string
	Required bool
}

// RunFields are the questions for assembling a pipeline run, in asking
// order. The keys mirror the run command's flag names.
func RunFields() []Field {
	return []Field{
		{Key: "pipeline", Prompt: "Stages to run (IDs, 0 = all)", Hint: "e.g. 0 or 3,4,5", Default: "0"},
		{Key: "input", Prompt: "Input directory with fasta files", Hint: "needed for stage 1"},
		{Key: "output", Prompt: "Output directory", Required: true},
		{Key: "mode", Prompt: "Sequence mode", Hint: "genome or proteins", Default: "genome"},
		{Key: "lineage", Prompt: "BUSCO lineage dataset", Hint: "e.g. cetacea_odb10, needed for stage 1"},
		{Key: "shared", Prompt: "Shared-locus threshold (%)", Default: "100"},
		{Key: "complete", Prompt: "Completeness floor (%, 0 keeps all)", Default: "0"},
		{Key: "cpus", Prompt: "CPU budget (0 = all available)", Default: "0"},
	}
}

// Wizard is the bubbletea model for the sequential prompt.
type Wizard struct {
	fields  []Field
	index   int
	input   textinput.Model
	answers map[string]string
	errMsg  string

	done    bool
	aborted bool
}

// NewWizard builds a wizard over the given fields.
func NewWizard(fields []Field) Wizard {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 48
	if len(fields) > 0 {
		ti.Placeholder = fields[0].Default
	}
	return Wizard{
		fields:  fields,
		input:   ti,
		answers: make(map[string]string, len(fields)),
	}
}

func (m Wizard) Init() tea.Cmd {
	return textinput.Blink
}

func (m Wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit records the current answer and advances to the next field.
func (m Wizard) submit() (tea.Model, tea.Cmd) {
	field := m.fields[m.index]
	value := m.input.Value()
	if value == "" {
		value = field.Default
	}
	if value == "" && field.Required {
		m.errMsg = field.Prompt + " is required"
		return m, nil
	}

	m.answers[field.Key] = value
	m.errMsg = ""
	m.index++
	if m.index >= len(m.fields) {
		m.done = true
		return m, tea.Quit
	}
	m.input.SetValue("")
	m.input.Placeholder = m.fields[m.index].Default
	return m, nil
}

func (m Wizard) View() string {
	if m.done || m.aborted {
		return ""
	}
	field := m.fields[m.index]
	s := titleStyle.Render("phyloflow wizard") +
		hintStyle.Render(fmt.Sprintf("  (%d/%d)", m.index+1, len(m.fields))) + "\n\n" +
		promptStyle.Render(field.Prompt)
	if field.Hint != "" {
		s += "  " + hintStyle.Render(field.Hint)
	}
	s += "\n" + m.input.View() + "\n"
	if m.errMsg != "" {
		s += errorStyle.Render(m.errMsg) + "\n"
	}
	s += hintStyle.Render("enter to confirm, esc to abort") + "\n"
	return s
}

// Answers returns the collected values after the wizard finished.
func (m Wizard) Answers() map[string]string {
	return m.answers
}

// Done reports whether every field was answered.
func (m Wizard) Done() bool { return m.done }

// Aborted reports whether the user cancelled the wizard.
func (m Wizard) Aborted() bool { return m.aborted }

// Collect runs the wizard interactively and returns the answers keyed by
// field name.
func Collect(fields []Field) (map[string]string, error) {
	prog := tea.NewProgram(NewWizard(fields))
	model, err := prog.Run()
	if err != nil {
		return nil, errors.Wrap(err, "wizard failed")
	}
	w, ok := model.(Wizard)
	if !ok || !w.Done() {
		return nil, errors.Wrap(errors.ErrInvalidParameters, "wizard aborted")
	}
	return w.Answers(), nil
}
