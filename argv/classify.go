package argv

import (
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-component-ld/errors"
)

// Plan is the classification outcome: the token sequence the external
// linker receives and the options this driver consumed.
type Plan struct {
	// Linker tokens in original order, flag/value adjacency intact.
	Linker []string

	// Output is the component destination, from -o or --output.
	Output string

	// Adapters are --adapt specs, "[NAME=]MODULE", in argument order.
	Adapters []string

	// WorldFiles are --component-type paths in argument order.
	WorldFiles []string

	// StringEncoding is the raw --string-encoding value; empty means
	// utf8.
	StringEncoding string

	// WasmLdPath is an explicit linker location, overriding discovery.
	WasmLdPath string

	// RspQuoting is the raw --rsp-quoting value. Expansion has already
	// honored it by the time a Plan exists.
	RspQuoting string

	// SkipComponent disables componentization; the linked module is
	// the artifact.
	SkipComponent bool

	// NoAdapters disables built-in adapter selection.
	NoAdapters bool

	// AllowUnknown lets unmatched import namespaces become component
	// imports instead of errors.
	AllowUnknown bool

	// Validate runs the encoded component through deep validation.
	// On unless --no-validate-component.
	Validate bool

	// Proxy selects the proxy flavor for built-in adapters.
	Proxy bool

	// Verbose enables debug logging to stderr.
	Verbose bool

	// Shared is set by -shared. A shared library is not a component
	// yet, so componentization is skipped.
	Shared bool

	// NoEntry records that --no-entry was among the linker tokens.
	NoEntry bool
}

// Classify expands response files and partitions args, given without
// the program name. Component options are recognized by exact name and
// removed, winning over linker flags of the same spelling; every other
// token forwards untouched.
func Classify(args []string) (*Plan, error) {
	// Generic LLD drivers are invoked with a flavor selector first.
	if len(args) >= 2 && args[0] == "-flavor" && args[1] == "wasm" {
		args = args[2:]
	}

	quoting, err := ParseQuoting(prescanQuoting(args))
	if err != nil {
		return nil, err
	}
	tokens, err := Expand(args, quoting)
	if err != nil {
		return nil, err
	}

	c := &classifier{tokens: tokens, plan: &Plan{Validate: true}}
	if err := c.run(); err != nil {
		return nil, err
	}
	if c.plan.Output == "" {
		return nil, errors.New(errors.PhaseClassify, errors.KindMissingValue).
			Token("-o").
			Detail("no output path; pass -o PATH or --output PATH").
			Build()
	}

	Logger().Debug("arguments classified",
		zap.Int("linker_tokens", len(c.plan.Linker)),
		zap.String("output", c.plan.Output),
		zap.Bool("shared", c.plan.Shared))
	return c.plan, nil
}

type classifier struct {
	tokens []string
	plan   *Plan
	i      int
}

func (c *classifier) run() error {
	for c.i < len(c.tokens) {
		tok := c.tokens[c.i]

		// Everything from a literal -- on belongs to the linker.
		if tok == "--" {
			c.plan.Linker = append(c.plan.Linker, c.tokens[c.i:]...)
			c.i = len(c.tokens)
			return nil
		}

		done, err := c.component(tok)
		if err != nil {
			return err
		}
		if done {
			continue
		}

		// The linker's one single-dash long flag.
		if tok == "-shared" {
			c.plan.Shared = true
			c.forward()
			continue
		}
		if tok == "--no-entry" {
			c.plan.NoEntry = true
			c.forward()
			continue
		}

		if err := c.linker(tok); err != nil {
			return err
		}
	}
	return nil
}

// component consumes tok when it names an option of this driver.
func (c *classifier) component(tok string) (bool, error) {
	name, attached, hasValue := splitValue(tok)

	switch name {
	case "-o", "--output":
		v, err := c.value(name, attached, hasValue)
		if err != nil {
			return false, err
		}
		c.plan.Output = v
	case "--adapt":
		v, err := c.value(name, attached, hasValue)
		if err != nil {
			return false, err
		}
		c.plan.Adapters = append(c.plan.Adapters, v)
	case "--component-type":
		v, err := c.value(name, attached, hasValue)
		if err != nil {
			return false, err
		}
		c.plan.WorldFiles = append(c.plan.WorldFiles, v)
	case "--string-encoding":
		v, err := c.value(name, attached, hasValue)
		if err != nil {
			return false, err
		}
		c.plan.StringEncoding = v
	case "--wasm-ld-path":
		v, err := c.value(name, attached, hasValue)
		if err != nil {
			return false, err
		}
		c.plan.WasmLdPath = v
	case "--rsp-quoting":
		v, err := c.value(name, attached, hasValue)
		if err != nil {
			return false, err
		}
		c.plan.RspQuoting = v
	case "--skip-wit-component":
		if err := c.flag(name, hasValue); err != nil {
			return false, err
		}
		c.plan.SkipComponent = true
	case "--no-adapters":
		if err := c.flag(name, hasValue); err != nil {
			return false, err
		}
		c.plan.NoAdapters = true
	case "--allow-unknown-imports":
		if err := c.flag(name, hasValue); err != nil {
			return false, err
		}
		c.plan.AllowUnknown = true
	case "--validate-component":
		if err := c.flag(name, hasValue); err != nil {
			return false, err
		}
		c.plan.Validate = true
	case "--no-validate-component":
		if err := c.flag(name, hasValue); err != nil {
			return false, err
		}
		c.plan.Validate = false
	case "--proxy":
		if err := c.flag(name, hasValue); err != nil {
			return false, err
		}
		c.plan.Proxy = true
	case "--verbose":
		if err := c.flag(name, hasValue); err != nil {
			return false, err
		}
		c.plan.Verbose = true
	default:
		// -oPATH, the short option with its value attached.
		if strings.HasPrefix(tok, "-o") && len(tok) > 2 {
			c.plan.Output = tok[2:]
			c.i++
			return true, nil
		}
		return false, nil
	}
	return true, nil
}

// linker forwards tok, claiming the next token too when the flag table
// says a separate value follows.
func (c *classifier) linker(tok string) error {
	name, _, attached := splitValue(tok)

	if after, ok := strings.CutPrefix(name, "--"); ok {
		if arity, found := lldLong[after]; found && arity == AritySpace && !attached {
			c.forward()
			return c.forwardValue(tok)
		}
		c.forward()
		return nil
	}

	// A bare short flag claims the next token when it takes a value;
	// forms like -Lpath carry the value attached.
	if len(tok) == 2 && tok[0] == '-' {
		if arity, found := lldShort[tok[1]]; found && arity != ArityNone {
			c.forward()
			return c.forwardValue(tok)
		}
	}

	c.forward()
	return nil
}

// forward sends the current token to the linker.
func (c *classifier) forward() {
	c.plan.Linker = append(c.plan.Linker, c.tokens[c.i])
	c.i++
}

// forwardValue sends the current token to the linker as the value of
// flag.
func (c *classifier) forwardValue(flag string) error {
	if c.i >= len(c.tokens) {
		return errors.New(errors.PhaseClassify, errors.KindMissingValue).
			Token(flag).
			Detail("linker flag requires a value").
			Build()
	}
	c.forward()
	return nil
}

// value consumes the option's value, attached or from the next token.
func (c *classifier) value(name, attached string, has bool) (string, error) {
	if has {
		c.i++
		return attached, nil
	}
	if c.i+1 >= len(c.tokens) {
		return "", errors.New(errors.PhaseClassify, errors.KindMissingValue).
			Token(name).
			Detail("option requires a value").
			Build()
	}
	c.i += 2
	return c.tokens[c.i-1], nil
}

// flag consumes a zero-value option.
func (c *classifier) flag(name string, has bool) error {
	if has {
		return errors.New(errors.PhaseClassify, errors.KindInvalidData).
			Token(name).
			Detail("option takes no value").
			Build()
	}
	c.i++
	return nil
}

// splitValue separates --opt=value into the option name and its
// attached value.
func splitValue(tok string) (name, value string, ok bool) {
	if i := strings.IndexByte(tok, '='); i >= 0 {
		return tok[:i], tok[i+1:], true
	}
	return tok, "", false
}

// prescanQuoting finds the --rsp-quoting value before response files
// expand, since it governs how they split.
func prescanQuoting(args []string) string {
	for i, a := range args {
		if a == "--rsp-quoting" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, "--rsp-quoting="); ok {
			return v
		}
	}
	return ""
}
