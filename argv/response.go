package argv

import (
	"os"
	"runtime"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-component-ld/errors"
)

// Quoting selects the token syntax inside response files.
type Quoting int

const (
	// QuotingDefault follows the host platform's convention.
	QuotingDefault Quoting = iota

	// QuotingPosix splits on whitespace, with single or double quotes
	// grouping and backslash escaping the next character.
	QuotingPosix

	// QuotingWindows splits with CommandLineToArgvW rules.
	QuotingWindows
)

// ParseQuoting maps a --rsp-quoting value to its strategy. Empty
// selects the platform default.
func ParseQuoting(s string) (Quoting, error) {
	switch s {
	case "":
		return QuotingDefault, nil
	case "posix":
		return QuotingPosix, nil
	case "windows":
		return QuotingWindows, nil
	default:
		return 0, errors.New(errors.PhaseClassify, errors.KindInvalidData).
			Token("--rsp-quoting").
			Detail("unknown quoting style %q; expected posix or windows", s).
			Build()
	}
}

func (q Quoting) split(s string) []string {
	if q == QuotingDefault {
		if runtime.GOOS == "windows" {
			q = QuotingWindows
		} else {
			q = QuotingPosix
		}
	}
	if q == QuotingWindows {
		return splitWindows(s)
	}
	return splitPosix(s)
}

// Expand replaces every @path token with the tokens read from path.
// Response files nest; a file reached twice on one chain is cyclic and
// rejected.
func Expand(args []string, quoting Quoting) ([]string, error) {
	e := &expander{quoting: quoting, active: make(map[string]bool)}
	for _, arg := range args {
		if err := e.push(arg); err != nil {
			return nil, err
		}
	}
	return e.out, nil
}

type expander struct {
	out     []string
	quoting Quoting
	active  map[string]bool
}

func (e *expander) push(arg string) error {
	if !strings.HasPrefix(arg, "@") {
		e.out = append(e.out, arg)
		return nil
	}
	return e.pushFile(arg[1:])
}

func (e *expander) pushFile(path string) error {
	if e.active[path] {
		return errors.New(errors.PhaseClassify, errors.KindBadResponseFile).
			File(path).
			Detail("cyclic response file expansion").
			Build()
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return errors.New(errors.PhaseClassify, errors.KindBadResponseFile).
			File(path).
			Cause(err).
			Build()
	}
	parts := e.quoting.split(string(contents))
	Logger().Debug("response file expanded",
		zap.String("path", path),
		zap.Int("tokens", len(parts)))

	e.active[path] = true
	for _, part := range parts {
		if err := e.push(part); err != nil {
			return err
		}
	}
	delete(e.active, path)
	return nil
}

// splitPosix tokenizes with GNU response file conventions. Quotes
// grouped mid-token stay literal; a trailing backslash stands for
// itself.
func splitPosix(s string) []string {
	var args []string
	runes := []rune(s)
	for i := 0; i < len(runes); {
		c := runes[i]
		if unicode.IsSpace(c) {
			i++
			continue
		}
		var b strings.Builder
		if c == '"' || c == '\'' {
			quote := c
			i++
			for i < len(runes) && runes[i] != quote {
				i = appendEscaped(&b, runes, i)
			}
			if i < len(runes) {
				i++
			}
			args = append(args, b.String())
			continue
		}
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i = appendEscaped(&b, runes, i)
		}
		args = append(args, b.String())
	}
	return args
}

// appendEscaped writes runes[i] to b, resolving a backslash escape,
// and returns the index after what it consumed.
func appendEscaped(b *strings.Builder, runes []rune, i int) int {
	if runes[i] == '\\' && i+1 < len(runes) {
		b.WriteRune(runes[i+1])
		return i + 2
	}
	b.WriteRune(runes[i])
	return i + 1
}

// splitWindows tokenizes with CommandLineToArgvW rules: backslashes
// are literal except before a quote, where 2n of them yield n and
// leave quoting to the quote, and 2n+1 yield n plus a literal quote.
// A doubled quote inside a quoted run is a literal quote.
func splitWindows(s string) []string {
	var args []string
	var b strings.Builder
	runes := []rune(s)
	inQuotes := false
	pending := false
	flush := func() {
		if pending {
			args = append(args, b.String())
			b.Reset()
			pending = false
		}
	}
	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case c == '\\':
			n := 0
			for i < len(runes) && runes[i] == '\\' {
				n++
				i++
			}
			if i < len(runes) && runes[i] == '"' {
				for j := 0; j < n/2; j++ {
					b.WriteByte('\\')
				}
				if n%2 == 1 {
					b.WriteByte('"')
					i++
				}
			} else {
				for j := 0; j < n; j++ {
					b.WriteByte('\\')
				}
			}
			pending = true
		case c == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				b.WriteByte('"')
				i += 2
			} else {
				inQuotes = !inQuotes
				i++
			}
			pending = true
		case !inQuotes && (c == ' ' || c == '\t' || c == '\n' || c == '\r'):
			flush()
			i++
		default:
			b.WriteRune(c)
			pending = true
			i++
		}
	}
	flush()
	return args
}
