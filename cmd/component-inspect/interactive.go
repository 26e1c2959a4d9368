package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-component-ld/witmeta"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateBrowse modelState = iota
	stateFilter
	stateDetail
)

// row is one browsable entry: a core module, a component import or
// export, the world, or a custom section.
type row struct {
	title string
	lines []string
	funcs []witmeta.WorldFunc // set on interface rows for styled detail
}

type inspectModel struct {
	err      error
	filename string
	rep      *report
	rows     []row
	visible  []int
	filter   textinput.Model
	selected int
	state    modelState
}

func newInspectModel(filename string) *inspectModel {
	ti := textinput.New()
	ti.Placeholder = "filter"
	ti.Prompt = "/ "
	ti.Width = 40
	return &inspectModel{filename: filename, filter: ti}
}

type loadedMsg struct {
	err error
	rep *report
}

func (m *inspectModel) Init() tea.Cmd {
	return m.load
}

func (m *inspectModel) load() tea.Msg {
	rep, err := loadReport(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{rep: rep}
}

func buildRows(r *report) []row {
	var rows []row

	for _, mod := range r.modules {
		var lines []string
		if len(mod.imports) > 0 {
			lines = append(lines, "imports:")
			for _, s := range mod.imports {
				lines = append(lines, "  "+s)
			}
		}
		if len(mod.exports) > 0 {
			lines = append(lines, "exports:")
			for _, s := range mod.exports {
				lines = append(lines, "  "+s)
			}
		}
		if len(lines) == 0 {
			lines = []string{"(empty module)"}
		}
		rows = append(rows, row{
			title: fmt.Sprintf("core module #%d · %d bytes · %d imports · %d exports",
				mod.index, mod.size, len(mod.imports), len(mod.exports)),
			lines: lines,
		})
	}

	for _, name := range r.imports {
		rw := row{title: "import " + name, funcs: r.importFuncs(name)}
		if rw.funcs == nil {
			rw.lines = []string{"(no declared interface)"}
		}
		rows = append(rows, rw)
	}
	for _, name := range r.exports {
		rw := row{title: "export " + name}
		if f, ok := r.exportFunc(name); ok {
			rw.funcs = []witmeta.WorldFunc{f}
		} else {
			rw.lines = []string{name}
		}
		rows = append(rows, rw)
	}

	if r.worldText != "" {
		rows = append(rows, row{
			title: fmt.Sprintf("world · %d bytes", len(r.worldText)),
			lines: strings.Split(strings.TrimRight(r.worldText, "\n"), "\n"),
		})
	}
	for _, cs := range r.customs {
		rows = append(rows, row{
			title: fmt.Sprintf("custom section %q · %d bytes", cs.name, cs.size),
			lines: []string{fmt.Sprintf("%d bytes of opaque data", cs.size)},
		})
	}
	return rows
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateFilter {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "enter":
				m.filter.Blur()
				m.state = stateBrowse
			case "esc":
				m.filter.SetValue("")
				m.filter.Blur()
				m.applyFilter()
				m.state = stateBrowse
			default:
				var cmd tea.Cmd
				m.filter, cmd = m.filter.Update(msg)
				m.applyFilter()
				return m, cmd
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateBrowse && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateBrowse && m.selected < len(m.visible)-1 {
				m.selected++
			}

		case "enter":
			if m.state == stateBrowse && len(m.visible) > 0 {
				m.state = stateDetail
			}

		case "esc":
			if m.state == stateDetail {
				m.state = stateBrowse
			}

		case "/":
			if m.state == stateBrowse {
				m.state = stateFilter
				m.filter.Focus()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rep = msg.rep
		m.rows = buildRows(msg.rep)
		m.applyFilter()
	}

	return m, nil
}

func (m *inspectModel) applyFilter() {
	query := strings.ToLower(m.filter.Value())
	m.visible = m.visible[:0]
	for i, r := range m.rows {
		if query == "" || strings.Contains(strings.ToLower(r.title), query) {
			m.visible = append(m.visible, i)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = 0
	}
}

func (m *inspectModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.rep == nil {
		return "Loading component..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Component Inspector"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	fmt.Fprintf(&b, " · %d bytes\n\n", m.rep.size)

	switch m.state {
	case stateBrowse, stateFilter:
		if m.state == stateFilter {
			b.WriteString(m.filter.View())
			b.WriteString("\n\n")
		}
		if len(m.visible) == 0 {
			b.WriteString(helpStyle.Render("nothing matches"))
			b.WriteString("\n")
		}
		for pos, idx := range m.visible {
			cursor := "  "
			if pos == m.selected && m.state == stateBrowse {
				b.WriteString(selectedStyle.Render("> " + m.rows[idx].title))
			} else {
				b.WriteString(cursor + m.rows[idx].title)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.state == stateFilter {
			b.WriteString(helpStyle.Render("enter apply • esc clear"))
		} else {
			b.WriteString(helpStyle.Render("↑/↓ select • enter open • / filter • q quit"))
		}

	case stateDetail:
		r := m.rows[m.visible[m.selected]]
		b.WriteString(nameStyle.Render(r.title))
		b.WriteString("\n\n")
		for _, f := range r.funcs {
			b.WriteString("  ")
			b.WriteString(styledSignature(f))
			b.WriteString("\n")
		}
		for _, line := range r.lines {
			b.WriteString("  " + line + "\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("esc back • q quit"))
	}

	return b.String()
}

func styledSignature(f witmeta.WorldFunc) string {
	var b strings.Builder
	b.WriteString(nameStyle.Render(f.Name))
	b.WriteString("(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Name != "" {
			b.WriteString(p.Name + ": ")
		}
		b.WriteString(typeBadge(p.Type))
	}
	b.WriteString(")")
	if f.Result != nil {
		b.WriteString(" -> " + typeBadge(f.Result))
	}
	return b.String()
}

func typeBadge(t wit.Type) string {
	return typeStyle.Render(witmeta.TypeString(t))
}
