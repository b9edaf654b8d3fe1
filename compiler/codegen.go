package compiler

import (
	"io"

	"github.com/chazu/kuro/vm"
	"github.com/tliron/commonlog"
)

func compilerLog() commonlog.Logger { return commonlog.GetLogger("kuro.compiler") }

// ---------------------------------------------------------------------------
// Compilation units
// ---------------------------------------------------------------------------

// FunctionKind distinguishes the kinds of unit being compiled.
type FunctionKind int

const (
	KindModule FunctionKind = iota
	KindFunction
	KindMethod
	KindInitializer
)

// Limits on per-function tables. Slot and upvalue operands are one byte.
const (
	MaxLocals     = 256
	MaxUpvalues   = 256
	MaxParameters = 255
	MaxArguments  = 255
)

// unit is the compilation state of one function. Units form a stack
// through enclosing, mirroring lexical nesting.
type unit struct {
	enclosing  *unit
	function   *vm.Function
	kind       FunctionKind
	locals     []local
	scopeDepth int
	upvalues   []upvalue

	// names maps identifier text to its constant index so each name is
	// stored once per chunk.
	names map[string]int
}

// classScope tracks the class bodies being compiled, innermost first.
type classScope struct {
	enclosing *classScope
}

// ---------------------------------------------------------------------------
// Compiler
// ---------------------------------------------------------------------------

// Compiler compiles Kuro source to bytecode in a single pass. A Compiler is
// used for exactly one compilation; see Compile.
type Compiler struct {
	parser  *parser
	heap    *vm.Heap
	current *unit
	class   *classScope

	disasm io.Writer
}

// MarkRoots implements vm.RootProvider. Every function still under
// construction is reachable only from the unit stack.
func (c *Compiler) MarkRoots(m *vm.Marker) {
	for u := c.current; u != nil; u = u.enclosing {
		m.MarkFunction(u.function)
	}
}

// pushUnit starts compiling a new function of the given kind. For anything
// but the module, the function is named after the previous token.
func (c *Compiler) pushUnit(kind FunctionKind) {
	u := &unit{
		enclosing: c.current,
		kind:      kind,
		names:     make(map[string]int),
	}
	u.function = c.heap.NewFunction()
	c.current = u

	if kind != KindModule {
		u.function.Name = c.heap.CopyString(c.parser.previous.Lexeme)
	}

	// Slot 0 holds the callee, or the receiver for methods.
	receiver := Token{}
	if kind == KindMethod || kind == KindInitializer {
		receiver = syntheticToken("self")
	}
	u.locals = append(u.locals, local{name: receiver, depth: 0})
}

// popUnit finishes the current function and makes its enclosing unit
// current again.
func (c *Compiler) popUnit() (*vm.Function, *unit) {
	c.emitReturn()
	u := c.current
	fn := u.function

	log := compilerLog()
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("compiled %s: %d bytes, %d constants, %d upvalues",
			fn.DisplayName(), len(fn.Chunk.Code), len(fn.Chunk.Constants), fn.UpvalueCount)
	}
	if c.disasm != nil && !c.parser.hadError {
		vm.DisassembleChunk(c.disasm, &fn.Chunk, fn.DisplayName())
	}

	c.current = u.enclosing
	return fn, u
}

func syntheticToken(text string) Token {
	return Token{Type: TokenIdentifier, Lexeme: text}
}

// blockWidth returns the indentation of the line the statement starting at
// the current token sits on.
func (c *Compiler) blockWidth() int {
	return c.parser.previous.Width()
}
