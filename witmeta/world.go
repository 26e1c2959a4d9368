package witmeta

import (
	"fmt"
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-component-ld/errors"
)

// World is the interface surface a component declares: host namespaces
// it imports as instances and functions it exports. Order follows first
// appearance in the source text; the encoder sorts on emission, so
// order here only affects diagnostics.
type World struct {
	Imports []Interface
	Exports []WorldFunc
}

// Interface is one imported host namespace and its functions.
type Interface struct {
	Name  string
	Funcs []WorldFunc
}

// WorldFunc is one function signature. Result is nil when the function
// returns nothing.
type WorldFunc struct {
	Name   string
	Params []NamedType
	Result wit.Type
}

// NamedType is a named parameter.
type NamedType struct {
	Name string
	Type wit.Type
}

// Func looks up an imported function by namespace and name.
func (w *World) Func(namespace, name string) (WorldFunc, bool) {
	for _, iface := range w.Imports {
		if iface.Name != namespace {
			continue
		}
		for _, f := range iface.Funcs {
			if f.Name == name {
				return f, true
			}
		}
	}
	return WorldFunc{}, false
}

// Export looks up an exported function by name.
func (w *World) Export(name string) (WorldFunc, bool) {
	for _, f := range w.Exports {
		if f.Name == name {
			return f, true
		}
	}
	return WorldFunc{}, false
}

// Namespaces returns the imported namespace names in declaration order.
func (w *World) Namespaces() []string {
	names := make([]string, len(w.Imports))
	for i, iface := range w.Imports {
		names[i] = iface.Name
	}
	return names
}

// The reader understands the world subset this driver emits and
// consumes: inline interface imports and direct function exports.
//
//	world example {
//	  import env: interface {
//	    host-log: func(ptr: s32, len: s32);
//	  }
//	  export add: func(a: s32, b: s32) -> s32;
//	}
//
// Individual types resolve through wit.ParseType. Interface references
// (`import wasi:cli/stdout;`) need package resolution and are ignored;
// exported interfaces and top-level function imports are rejected.
var (
	importBlockPattern = regexp.MustCompile(`import\s+([A-Za-z_][A-Za-z0-9_:/@.+-]*)\s*:\s*interface\s*\{`)
	exportBlockPattern = regexp.MustCompile(`export\s+([A-Za-z_][A-Za-z0-9_:/@.+-]*)\s*:\s*interface\s*\{`)
	importFuncPattern  = regexp.MustCompile(`import\s+([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func`)
	exportFuncPattern  = regexp.MustCompile(`export\s+([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;{}]+))?`)
	funcPattern        = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;{}]+))?`)
)

// ParseWorld extracts a World from WIT world text. A text declaring no
// functions at all is an error: it almost always means the input was
// not world text.
func ParseWorld(text string) (*World, error) {
	text = stripComments(text)

	w := &World{}
	byName := make(map[string]int)

	// Inline interface imports first. Their body ranges are cut from
	// the text so the export scan never sees interface members.
	rest := text
	for {
		loc := importBlockPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		name := rest[loc[2]:loc[3]]
		body, end, err := matchBraces(rest, loc[1]-1)
		if err != nil {
			return nil, errors.New(errors.PhaseMeta, errors.KindInvalidData).
				Element(name).
				Detail("unbalanced braces in interface body").
				Cause(err).
				Build()
		}

		funcs, err := parseFuncs(body)
		if err != nil {
			return nil, err
		}
		if i, ok := byName[name]; ok {
			w.Imports[i].Funcs = mergeFuncs(w.Imports[i].Funcs, funcs)
		} else {
			byName[name] = len(w.Imports)
			w.Imports = append(w.Imports, Interface{Name: name, Funcs: funcs})
		}

		rest = rest[:loc[0]] + rest[end:]
	}

	if loc := exportBlockPattern.FindStringSubmatch(rest); loc != nil {
		return nil, errors.New(errors.PhaseMeta, errors.KindInvalidData).
			Element(loc[1]).
			Detail("exported interfaces are not supported; export functions directly").
			Build()
	}
	if loc := importFuncPattern.FindStringSubmatch(rest); loc != nil {
		return nil, errors.New(errors.PhaseMeta, errors.KindInvalidData).
			Element(loc[1]).
			Detail("top-level function imports are not supported; declare an interface").
			Build()
	}

	for _, match := range exportFuncPattern.FindAllStringSubmatch(rest, -1) {
		f, err := parseFunc(match[1], match[2], match[3])
		if err != nil {
			return nil, err
		}
		w.Exports = mergeFuncs(w.Exports, []WorldFunc{f})
	}

	if len(w.Imports) == 0 && len(w.Exports) == 0 {
		return nil, errors.InvalidData(errors.PhaseMeta, "no functions found in world text")
	}

	return w, nil
}

// parseFuncs extracts every function signature in an interface body.
func parseFuncs(body string) ([]WorldFunc, error) {
	var funcs []WorldFunc
	for _, match := range funcPattern.FindAllStringSubmatch(body, -1) {
		f, err := parseFunc(match[1], match[2], match[3])
		if err != nil {
			return nil, err
		}
		funcs = mergeFuncs(funcs, []WorldFunc{f})
	}
	return funcs, nil
}

// mergeFuncs appends signatures, a redeclared name replacing the
// earlier one in place.
func mergeFuncs(dst []WorldFunc, src []WorldFunc) []WorldFunc {
	for _, f := range src {
		replaced := false
		for i := range dst {
			if dst[i].Name == f.Name {
				dst[i] = f
				replaced = true
				break
			}
		}
		if !replaced {
			dst = append(dst, f)
		}
	}
	return dst
}

func parseFunc(name, paramsStr, resultStr string) (WorldFunc, error) {
	f := WorldFunc{Name: name}

	paramsStr = strings.TrimSpace(paramsStr)
	if paramsStr != "" {
		for _, p := range splitParams(paramsStr) {
			pname := ""
			typStr := p
			if idx := strings.LastIndex(p, ":"); idx != -1 {
				pname = strings.TrimSpace(p[:idx])
				typStr = strings.TrimSpace(p[idx+1:])
			}
			t, err := parseWitType(typStr)
			if err != nil {
				return WorldFunc{}, errors.New(errors.PhaseMeta, errors.KindInvalidData).
					Element(name).
					Detail("parse param type %q", typStr).
					Cause(err).
					Build()
			}
			f.Params = append(f.Params, NamedType{Name: pname, Type: t})
		}
	}

	resultStr = strings.TrimSpace(resultStr)
	if resultStr == "" || resultStr == "()" {
		return f, nil
	}
	if strings.HasPrefix(resultStr, "(") && strings.HasSuffix(resultStr, ")") {
		inner := strings.TrimSpace(strings.TrimPrefix(strings.TrimSuffix(resultStr, ")"), "("))
		parts := splitParams(inner)
		if len(parts) > 1 {
			return WorldFunc{}, errors.New(errors.PhaseMeta, errors.KindInvalidData).
				Element(name).
				Detail("multiple results are not supported").
				Build()
		}
		if len(parts) == 0 {
			return f, nil
		}
		resultStr = parts[0]
	}
	t, err := parseWitType(resultStr)
	if err != nil {
		return WorldFunc{}, errors.New(errors.PhaseMeta, errors.KindInvalidData).
			Element(name).
			Detail("parse result type %q", resultStr).
			Cause(err).
			Build()
	}
	f.Result = t
	return f, nil
}

// splitParams splits a parameter list on top-level commas, honoring
// nesting in both parens and angle brackets so generic types like
// tuple<string, u32> survive intact.
func splitParams(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(', '<':
			depth++
			current.WriteRune(ch)
		case ')', '>':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}

	return result
}

// parseWitType resolves a type expression. Parameterized types are
// assembled here; primitive leaves go through wit.ParseType.
func parseWitType(s string) (wit.Type, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "result":
		return &wit.TypeDef{Kind: &wit.Result{}}, nil

	case generic(s, "list"):
		elem, err := parseWitType(genericArg(s, "list"))
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: elem}}, nil

	case generic(s, "option"):
		elem, err := parseWitType(genericArg(s, "option"))
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: elem}}, nil

	case generic(s, "tuple"):
		parts := splitParams(genericArg(s, "tuple"))
		types := make([]wit.Type, len(parts))
		for i, p := range parts {
			t, err := parseWitType(p)
			if err != nil {
				return nil, err
			}
			types[i] = t
		}
		return &wit.TypeDef{Kind: &wit.Tuple{Types: types}}, nil

	case generic(s, "result"):
		parts := splitParams(genericArg(s, "result"))
		if len(parts) > 2 {
			return nil, fmt.Errorf("result takes at most two type arguments, got %d", len(parts))
		}
		r := &wit.Result{}
		if len(parts) >= 1 && parts[0] != "_" {
			t, err := parseWitType(parts[0])
			if err != nil {
				return nil, err
			}
			r.OK = t
		}
		if len(parts) == 2 && parts[1] != "_" {
			t, err := parseWitType(parts[1])
			if err != nil {
				return nil, err
			}
			r.Err = t
		}
		return &wit.TypeDef{Kind: r}, nil

	case generic(s, "own"), generic(s, "borrow"):
		return nil, fmt.Errorf("resource handle type %q needs a resource declaration", s)

	default:
		return wit.ParseType(s)
	}
}

func generic(s, name string) bool {
	return strings.HasPrefix(s, name+"<") && strings.HasSuffix(s, ">")
}

func genericArg(s, name string) string {
	return strings.TrimSpace(s[len(name)+1 : len(s)-1])
}

// matchBraces returns the text between the opening brace at open and
// its balancing close, plus the index one past the close.
func matchBraces(s string, open int) (string, int, error) {
	if open >= len(s) || s[open] != '{' {
		return "", 0, fmt.Errorf("no opening brace at offset %d", open)
	}
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[open+1 : i], i + 1, nil
			}
		}
	}
	return "", 0, fmt.Errorf("unbalanced braces from offset %d", open)
}

// stripComments removes // line comments and /* */ block comments.
// Block comments nest, matching WIT source conventions.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '/' && i+1 < len(s) && s[i+1] == '/' {
			for i < len(s) && s[i] != '\n' {
				i++
			}
			continue
		}
		if s[i] == '/' && i+1 < len(s) && s[i+1] == '*' {
			depth := 1
			i += 2
			for i < len(s) && depth > 0 {
				if s[i] == '/' && i+1 < len(s) && s[i+1] == '*' {
					depth++
					i += 2
				} else if s[i] == '*' && i+1 < len(s) && s[i+1] == '/' {
					depth--
					i += 2
				} else {
					i++
				}
			}
			// Comments count as separators.
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// Render produces world text for this World, parseable back by
// ParseWorld. Synthesized worlds embed this form.
func (w *World) Render() string {
	var b strings.Builder
	b.WriteString("package linked:module;\n\nworld root {\n")
	for _, iface := range w.Imports {
		fmt.Fprintf(&b, "  import %s: interface {\n", iface.Name)
		for _, f := range iface.Funcs {
			b.WriteString("    ")
			b.WriteString(renderFunc(f))
			b.WriteByte('\n')
		}
		b.WriteString("  }\n")
	}
	for _, f := range w.Exports {
		b.WriteString("  export ")
		b.WriteString(renderFunc(f))
		b.WriteByte('\n')
	}
	b.WriteString("}\n")
	return b.String()
}

func renderFunc(f WorldFunc) string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteString(": func(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Name != "" {
			b.WriteString(p.Name)
			b.WriteString(": ")
		}
		b.WriteString(TypeString(p.Type))
	}
	b.WriteByte(')')
	if f.Result != nil {
		b.WriteString(" -> ")
		b.WriteString(TypeString(f.Result))
	}
	b.WriteByte(';')
	return b.String()
}

// TypeString renders a type the way world text spells it. Named kinds
// that world text cannot declare anonymously (records, variants) render
// as their bare kind name; they only ever appear in diagnostics.
func TypeString(t wit.Type) string {
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		return typeDefString(v)
	default:
		return fmt.Sprintf("%T", t)
	}
}

func typeDefString(td *wit.TypeDef) string {
	if td == nil || td.Kind == nil {
		return "unknown"
	}
	switch kind := td.Kind.(type) {
	case *wit.List:
		return "list<" + TypeString(kind.Type) + ">"
	case *wit.Tuple:
		parts := make([]string, len(kind.Types))
		for i, t := range kind.Types {
			parts[i] = TypeString(t)
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	case *wit.Option:
		return "option<" + TypeString(kind.Type) + ">"
	case *wit.Result:
		switch {
		case kind.OK == nil && kind.Err == nil:
			return "result"
		case kind.Err == nil:
			return "result<" + TypeString(kind.OK) + ">"
		case kind.OK == nil:
			return "result<_, " + TypeString(kind.Err) + ">"
		default:
			return "result<" + TypeString(kind.OK) + ", " + TypeString(kind.Err) + ">"
		}
	case *wit.Record:
		return "record"
	case *wit.Variant:
		return "variant"
	case *wit.Enum:
		return "enum"
	case *wit.Flags:
		return "flags"
	case *wit.Own:
		return "own"
	case *wit.Borrow:
		return "borrow"
	case wit.Type:
		return TypeString(kind)
	default:
		return fmt.Sprintf("%T", td.Kind)
	}
}
