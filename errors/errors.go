package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates which pipeline stage the error occurred in
type Phase string

const (
	PhaseClassify Phase = "classify" // argument classification
	PhaseLink     Phase = "link"     // external linker invocation
	PhaseInspect  Phase = "inspect"  // linked module inspection
	PhaseResolve  Phase = "resolve"  // adapter resolution
	PhaseEncode   Phase = "encode"   // component encoding
	PhaseWrite    Phase = "write"    // final artifact write
	PhaseMeta     Phase = "metadata" // interface metadata resolution
)

// Kind categorizes the error
type Kind string

const (
	KindMissingValue     Kind = "missing_value"
	KindConflictingOpts  Kind = "conflicting_options"
	KindBadResponseFile  Kind = "bad_response_file"
	KindSpawnFailed      Kind = "spawn_failed"
	KindExitStatus       Kind = "exit_status"
	KindInvalidModule    Kind = "invalid_module"
	KindUnresolvedImport Kind = "unresolved_import"
	KindTypeMismatch     Kind = "type_mismatch"
	KindMalformedAdapter Kind = "malformed_adapter"
	KindEncodeInternal   Kind = "encode_internal"
	KindInvalidData      Kind = "invalid_data"
	KindNotFound         Kind = "not_found"
	KindIO               Kind = "io"
)

// Exit codes per error category. The linker's own non-zero exit code
// propagates verbatim and takes priority over these.
const (
	ExitOK         = 0
	ExitInternal   = 1
	ExitClassify   = 2
	ExitSpawn      = 3
	ExitInspect    = 4
	ExitResolve    = 5
	ExitMismatch   = 6
	ExitEncode     = 7
	ExitFilesystem = 8
)

// Error is the structured error type used throughout the driver
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Token    string // offending command-line token
	Element  string // offending import/export or interface element
	CoreType string
	WitType  string
	Detail   string
	File     string // filesystem path involved
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Token != "" {
		b.WriteString(" at ")
		b.WriteString(fmt.Sprintf("%q", e.Token))
	}
	if e.Element != "" {
		b.WriteString(" for ")
		b.WriteString(e.Element)
	}
	if e.File != "" {
		b.WriteString(" (")
		b.WriteString(e.File)
		b.WriteByte(')')
	}

	if e.CoreType != "" || e.WitType != "" {
		b.WriteString(": ")
		if e.CoreType != "" && e.WitType != "" {
			b.WriteString("core type ")
			b.WriteString(e.CoreType)
			b.WriteString(", declared type ")
			b.WriteString(e.WitType)
		} else if e.CoreType != "" {
			b.WriteString("core type ")
			b.WriteString(e.CoreType)
		} else {
			b.WriteString("declared type ")
			b.WriteString(e.WitType)
		}
	}

	if e.Detail != "" {
		if e.CoreType != "" || e.WitType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// ExitCode maps an error to the process exit code for it. A nil error is
// success. An exit_status error carries the child's own code, which
// propagates verbatim.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var ue *UnresolvedImportsError
	if stderrors.As(err, &ue) {
		return ExitResolve
	}

	var se *Error
	if !stderrors.As(err, &se) {
		return ExitInternal
	}

	if se.Kind == KindExitStatus {
		if code, ok := se.Value.(int); ok && code != 0 {
			return code
		}
		return ExitInternal
	}

	switch se.Kind {
	case KindMissingValue, KindConflictingOpts, KindBadResponseFile:
		return ExitClassify
	case KindSpawnFailed:
		return ExitSpawn
	case KindInvalidModule:
		return ExitInspect
	case KindUnresolvedImport:
		return ExitResolve
	case KindTypeMismatch:
		return ExitMismatch
	case KindMalformedAdapter, KindEncodeInternal:
		return ExitEncode
	case KindIO:
		return ExitFilesystem
	}

	switch se.Phase {
	case PhaseClassify:
		return ExitClassify
	case PhaseLink:
		return ExitSpawn
	case PhaseInspect, PhaseMeta:
		return ExitInspect
	case PhaseResolve:
		return ExitResolve
	case PhaseEncode:
		return ExitEncode
	case PhaseWrite:
		return ExitFilesystem
	}

	return ExitInternal
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Token sets the offending command-line token
func (b *Builder) Token(t string) *Builder {
	b.err.Token = t
	return b
}

// Element sets the offending interface element name
func (b *Builder) Element(e string) *Builder {
	b.err.Element = e
	return b
}

// File sets the filesystem path involved
func (b *Builder) File(path string) *Builder {
	b.err.File = path
	return b
}

// CoreType sets the core value-type shape
func (b *Builder) CoreType(t string) *Builder {
	b.err.CoreType = t
	return b
}

// WitType sets the declared interface-type shape
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// MissingValue reports an option that requires a value given as the last token
func MissingValue(option string) *Error {
	return &Error{
		Phase:  PhaseClassify,
		Kind:   KindMissingValue,
		Token:  option,
		Detail: "option requires a value",
	}
}

// Conflicting reports mutually exclusive or duplicated options
func Conflicting(token, detail string) *Error {
	return &Error{
		Phase:  PhaseClassify,
		Kind:   KindConflictingOpts,
		Token:  token,
		Detail: detail,
	}
}

// BadResponseFile reports a response file that could not be expanded
func BadResponseFile(path string, cause error) *Error {
	return &Error{
		Phase: PhaseClassify,
		Kind:  KindBadResponseFile,
		File:  path,
		Cause: cause,
	}
}

// SpawnFailed reports that the external linker could not be started
func SpawnFailed(program string, cause error) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindSpawnFailed,
		File:   program,
		Detail: "failed to start external linker",
		Cause:  cause,
	}
}

// ExitStatus reports a non-zero exit from the external linker; the code is
// what ExitCode returns for the error
func ExitStatus(program string, code int) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindExitStatus,
		File:   program,
		Detail: fmt.Sprintf("external linker exited with status %d", code),
		Value:  code,
	}
}

// InvalidModule reports bytes that do not parse as a core module
func InvalidModule(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseInspect,
		Kind:   KindInvalidModule,
		Detail: what,
		Cause:  cause,
	}
}

// TypeMismatch reports a declared interface shape that does not cover the
// core module's actual shape for element
func TypeMismatch(element, coreType, witType string) *Error {
	return &Error{
		Phase:    PhaseEncode,
		Kind:     KindTypeMismatch,
		Element:  element,
		CoreType: coreType,
		WitType:  witType,
	}
}

// MalformedAdapter reports an adapter file that could not be decoded
func MalformedAdapter(name, path string, cause error) *Error {
	return &Error{
		Phase:   PhaseEncode,
		Kind:    KindMalformedAdapter,
		Element: name,
		File:    path,
		Cause:   cause,
	}
}

// EncodeInternal reports an assembly invariant violation; the component is
// never emitted partially built
func EncodeInternal(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindEncodeInternal,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// IO reports a filesystem failure at path
func IO(phase Phase, path string, cause error) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindIO,
		File:  path,
		Cause: cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// UnresolvedImport is a single import no adapter or host namespace covers
type UnresolvedImport struct {
	Namespace string // e.g., "wasi_snapshot_preview1"
	Function  string // e.g., "fd_write"
}

// UnresolvedImportsError is returned when the resolver cannot account for
// every import of the linked module
type UnresolvedImportsError struct {
	Imports []UnresolvedImport
}

// NewUnresolvedImportsError creates an error from "namespace#function" keys
func NewUnresolvedImportsError(imports []string) *UnresolvedImportsError {
	result := &UnresolvedImportsError{
		Imports: make([]UnresolvedImport, 0, len(imports)),
	}
	for _, imp := range imports {
		ns, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, UnresolvedImport{
			Namespace: ns,
			Function:  fn,
		})
	}
	return result
}

func parseImportKey(key string) (namespace, function string) {
	ns, fn, found := strings.Cut(key, "#")
	if found {
		return ns, fn
	}
	return key, ""
}

// demangleRust attempts to extract a readable function name from a mangled
// Rust symbol, which linked modules frequently carry in import names
func demangleRust(name string) string {
	if !strings.HasPrefix(name, "_ZN") {
		return name
	}

	// Format: _ZN<len><name><len><name>...E
	s := name[3:]
	var parts []string

	for len(s) > 0 && s[0] != 'E' {
		lenEnd := 0
		for lenEnd < len(s) && s[lenEnd] >= '0' && s[lenEnd] <= '9' {
			lenEnd++
		}
		if lenEnd == 0 {
			break
		}

		length := 0
		for i := 0; i < lenEnd; i++ {
			length = length*10 + int(s[i]-'0')
		}
		s = s[lenEnd:]

		if length > len(s) {
			break
		}

		part := s[:length]
		s = s[length:]

		// Skip wit_import markers and 17-char hash suffixes
		if strings.HasPrefix(part, "wit_import") {
			continue
		}
		if len(part) == 17 && part[0] == 'h' {
			allHex := true
			for i := 1; i < 17; i++ {
				c := part[i]
				if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
					allHex = false
					break
				}
			}
			if allHex {
				continue
			}
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		return name
	}

	return strings.Join(parts, "::")
}

func (e *UnresolvedImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[resolve] unresolved_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("module requires %d import(s) no adapter or host interface provides:\n", len(e.Imports)))

	// Group by namespace for cleaner output
	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		fn := demangleRust(imp.Function)
		byNS[imp.Namespace] = append(byNS[imp.Namespace], fn)
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, fn := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *UnresolvedImportsError) Is(target error) bool {
	_, ok := target.(*UnresolvedImportsError)
	return ok
}
