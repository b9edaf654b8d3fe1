package compiler

import (
	"io"

	"github.com/chazu/kuro/vm"
)

// Option configures a compilation.
type Option func(*Compiler)

// WithHeap allocates the compiled objects on h. Without it each compilation
// gets a private heap.
func WithHeap(h *vm.Heap) Option {
	return func(c *Compiler) { c.heap = h }
}

// WithDisassembly writes a listing of every successfully compiled function
// to w as it is finished.
func WithDisassembly(w io.Writer) Option {
	return func(c *Compiler) { c.disasm = w }
}

// WithScanTrace writes every token read from the lexer to w.
func WithScanTrace(w io.Writer) Option {
	return func(c *Compiler) { c.parser.scanTrace = w }
}

// Result is the outcome of one compilation. Function is the top-level
// module function; it is nil when any diagnostic was reported.
type Result struct {
	Function    *vm.Function
	Diagnostics []Diagnostic
}

// HadError reports whether compilation failed.
func (r *Result) HadError() bool {
	return len(r.Diagnostics) > 0
}

// Err returns the diagnostics as an *Error, or nil on success.
func (r *Result) Err() error {
	if !r.HadError() {
		return nil
	}
	return &Error{Diagnostics: r.Diagnostics}
}

// Compile compiles source as a module. Every diagnostic is collected; the
// compiler recovers at the next statement after each one.
func Compile(source string, opts ...Option) *Result {
	c := &Compiler{parser: newParser(source, nil)}
	for _, opt := range opts {
		opt(c)
	}
	if c.heap == nil {
		c.heap = vm.NewHeap()
	}

	remove := c.heap.AddRoots(c)
	defer remove()

	fn := c.module()
	if c.parser.hadError {
		return &Result{Diagnostics: c.parser.diagnostics}
	}
	return &Result{Function: fn}
}

// module compiles every declaration up to EOF into a module function. The
// function is built in full even when diagnostics were reported.
func (c *Compiler) module() *vm.Function {
	p := c.parser
	c.pushUnit(KindModule)
	p.advance()
	for !p.match(TokenEOF) {
		c.declaration()
		if p.check(TokenEOL) {
			p.advance()
		}
	}
	fn, _ := c.popUnit()
	return fn
}

// MustCompile is like Compile but panics on any diagnostic.
func MustCompile(source string, opts ...Option) *vm.Function {
	r := Compile(source, opts...)
	if err := r.Err(); err != nil {
		panic(err)
	}
	return r.Function
}
