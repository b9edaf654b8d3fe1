package compiler

import (
	"testing"

	"github.com/chazu/kuro/vm"
)

var fuzzSeeds = []string{
	// Tokens
	`( ) [ ] { } : , . ; - + / * ! != = == > >= < <=`,
	`42`, `0x1F`, `0b101`, `0o17`, `3.14`, `1.`,
	`"hello"`, `'single'`, `"esc\"aped"`, `"unterminated`,
	`and class def else False for if in let None not or print return self super True while`,
	"# comment only\n",
	// Statements
	"let x = 1\nprint x\n",
	"if x:\n    print 1\nelse:\n    print 2\n",
	"while x < 10:\n    x = x + 1\n",
	"for i = 0, i < 3, i = i + 1:\n    print i\n",
	"def f(a, b):\n    return a + b\nprint f(1, 2)\n",
	"def outer():\n    let x = 1\n    def inner():\n        return x\n    return inner\n",
	"class A:\n    def init(x):\n        self.x = x\n    def get():\n        return self.x\n",
	// Malformed
	"if x: print 1\n",
	"if x:\nprint 1\n",
	"    print 1\n",
	"def f(:\n",
	"class :\n",
	"let = = =\n",
	"print ((((((\n",
	"\tif x:\n  \tprint\n",
	"a.b.c = d = e\n",
	"return\n",
	"self\n",
}

// FuzzLexer ensures the lexer terminates with EOF and never panics.
func FuzzLexer(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, input string) {
		l := NewLexer(input)
		for i := 0; i <= len(input)+1; i++ {
			tok := l.NextToken()
			if tok.Type == TokenEOF {
				return
			}
		}
		t.Fatalf("lexer did not reach EOF for %q", input)
	})
}

// FuzzCompile ensures the compiler never panics and that success and
// diagnostics are mutually exclusive.
func FuzzCompile(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, input string) {
		h := vm.NewHeap()
		r := Compile(input, WithHeap(h))
		if r.HadError() {
			if r.Function != nil {
				t.Fatalf("function returned with %d diagnostics", len(r.Diagnostics))
			}
			if r.Err() == nil {
				t.Fatal("HadError with nil Err")
			}
			return
		}
		if r.Function == nil {
			t.Fatal("no function and no diagnostics")
		}
		// The listing walks every operand; it panics on malformed code.
		_ = vm.Disassemble(r.Function)
		if h.RootCount() != 0 {
			t.Fatalf("root count = %d after compile", h.RootCount())
		}
	})
}
