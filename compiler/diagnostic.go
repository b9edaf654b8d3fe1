package compiler

import (
	"fmt"
	"strings"
)

// DiagnosticKind classifies a compile diagnostic.
type DiagnosticKind int

const (
	// Lexical diagnostics come from scanner error tokens.
	Lexical DiagnosticKind = iota
	// Syntax diagnostics report an unexpected token.
	Syntax
	// Binding diagnostics report misuse of names and slots: duplicate
	// definitions, recursive initializers, too many locals, upvalues,
	// parameters or arguments, and invalid assignment targets.
	Binding
	// Limit diagnostics report bytecode that cannot be encoded, such as
	// jumps over more than 65535 bytes. Compilation continues after them.
	Limit
)

func (k DiagnosticKind) String() string {
	switch k {
	case Lexical:
		return "lexical"
	case Syntax:
		return "syntax"
	case Binding:
		return "binding"
	case Limit:
		return "limit"
	default:
		return fmt.Sprintf("DiagnosticKind(%d)", int(k))
	}
}

// Diagnostic is a single compile error.
type Diagnostic struct {
	Line    int
	Column  int
	Lexeme  string // offending token text; empty for lexical errors and at end
	AtEnd   bool   // the error was reported at end of input
	Kind    DiagnosticKind
	Message string
}

// String formats the diagnostic in the classic "[line N] Error at 'x': msg"
// form.
func (d Diagnostic) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[line %d] Error", d.Line)
	switch {
	case d.AtEnd:
		sb.WriteString(" at end")
	case d.Lexeme == "\n":
		sb.WriteString(" at end of line")
	case d.Kind != Lexical && d.Lexeme != "":
		fmt.Fprintf(&sb, " at '%s'", d.Lexeme)
	}
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	return sb.String()
}

// Error is returned by Result.Err when compilation produced diagnostics.
type Error struct {
	Diagnostics []Diagnostic
}

func (e *Error) Error() string {
	lines := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}
