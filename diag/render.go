package diag

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/wasm-component-ld/errors"
)

var (
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// palette is the active style set. Plain output uses zero styles, so
// the text is identical with and without a terminal.
type palette struct {
	err    lipgloss.Style
	accent lipgloss.Style
	dim    lipgloss.Style
}

func stylesFor(color bool) palette {
	if color {
		return palette{err: errorStyle, accent: accentStyle, dim: dimStyle}
	}
	return palette{err: lipgloss.NewStyle(), accent: lipgloss.NewStyle(), dim: lipgloss.NewStyle()}
}

var stderrTTY int32 = -1 // -1 = unchecked, 0 = no, 1 = yes

func stderrIsTerminal() bool {
	if v := atomic.LoadInt32(&stderrTTY); v >= 0 {
		return v == 1
	}
	result := term.IsTerminal(int(os.Stderr.Fd()))
	if result {
		atomic.StoreInt32(&stderrTTY, 1)
	} else {
		atomic.StoreInt32(&stderrTTY, 0)
	}
	return result
}

// Print renders err to stderr, styled when stderr is a terminal.
func Print(err error) {
	Render(os.Stderr, err, stderrIsTerminal())
}

// Render writes one diagnostic for err to w. Styling changes
// presentation only, never content.
func Render(w io.Writer, err error, color bool) {
	if err == nil {
		return
	}
	p := stylesFor(color)

	var se *errors.Error
	if !stderrors.As(err, &se) {
		fmt.Fprintf(w, "%s %s\n", p.err.Render("error:"), err)
		return
	}
	// The linker reported its own failure on stderr already; adding a
	// second diagnostic would bury it.
	if se.Kind == errors.KindExitStatus {
		return
	}

	head := fmt.Sprintf("[%s] %s", se.Phase, se.Kind)
	if se.Detail != "" {
		head += ": " + se.Detail
	}
	fmt.Fprintf(w, "%s %s\n", p.err.Render("error:"), head)

	field := func(label, value string) {
		fmt.Fprintf(w, "  %s %s\n", p.dim.Render(label), value)
	}
	if se.Token != "" {
		field("token:", p.accent.Render(fmt.Sprintf("%q", se.Token)))
	}
	if se.Element != "" {
		field("element:", p.accent.Render(se.Element))
	}
	if se.File != "" {
		field("file:", p.accent.Render(se.File))
	}
	if se.CoreType != "" {
		field("core type:", se.CoreType)
	}
	if se.WitType != "" {
		field("declared type:", se.WitType)
	}
	if se.Value != nil {
		field("value:", fmt.Sprint(se.Value))
	}
	if se.Cause != nil {
		field("caused by:", se.Cause.Error())
	}
}
