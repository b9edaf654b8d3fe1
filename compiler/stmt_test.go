package compiler

import (
	"fmt"
	"strings"
	"testing"
)

func TestElseMatchesIfWidth(t *testing.T) {
	sources := []string{
		"if x:\n    print 1\nelse:\n    print 2\n",
		"def f(x):\n    if x:\n        print 1\n    else:\n        print 2\n    print 3\n",
		"def f(x):\n    if x:\n        print 1\n    print 3\n",
		"if x:\n    if y:\n        print 1\n    else:\n        print 2\nelse:\n    print 3\n",
	}
	for _, src := range sources {
		if r := Compile(src); r.HadError() {
			t.Errorf("Compile(%q): %v", src, r.Err())
		}
	}
}

func TestStatementDiagnostics(t *testing.T) {
	tests := []struct {
		name   string
		source string
		kind   DiagnosticKind
		line   int
		msg    string
	}{
		{"else inside then block", "if x:\n    print 1\n    else:\n    print 2\n", Syntax, 3, "Expected expression."},
		{"single line block", "if x: print 1\n", Syntax, 1, "Unsupported single-line block."},
		{"missing indentation", "if x:\nprint 1\n", Syntax, 2, "Expected indentation for block."},
		{"block not deeper", "def f():\n    if x:\n    print 1\n", Syntax, 3, "Unexpected indentation level for new block."},
		{"stray indentation", "print 1\n    print 2\n", Syntax, 2, "Unexpected indentation."},
		{"trailing tokens", "print 1 2\n", Syntax, 1, "Expected end of line."},
		{"missing colon", "if x\n    print 1\n", Syntax, 1, "Expected ':' after condition."},
		{"missing else colon", "if x:\n    print 1\nelse\n    print 2\n", Syntax, 3, "Expected ':' after else."},
		{"for without comma", "for i = 0:\n    print i\n", Syntax, 1, "Expected ',' after loop initializer."},
		{"def without name", "def (a):\n    return a\n", Syntax, 1, "Expected function name."},
		{"def without parens", "def f:\n    return 1\n", Syntax, 1, "Expected '(' after function name."},
		{"def without colon", "def f()\n    return 1\n", Syntax, 1, "Expected ':' after function signature."},
		{"bad parameter", "def f(1):\n    return 1\n", Syntax, 1, "Expected parameter name."},
		{"class without name", "class :\n    def f():\n        return 1\n", Syntax, 1, "Expected class name."},
		{"class body statement", "class A:\n    let x = 1\n", Syntax, 2, "Expected method definition in class body."},
		{"missing property", "print a.\n", Syntax, 1, "Expected property name after '.'."},
		{"unclosed call", "f(1\n", Syntax, 1, "Expected ')' after arguments."},
		{"duplicate local", "def f():\n    let a = 1\n    let a = 2\n", Binding, 3, "Duplicate definition of 'a'."},
		{"recursive initializer", "def f():\n    let a = a\n", Binding, 2, "Can not initialize value recursively (are you shadowing something?)"},
		{"literal assignment", "1 = 2\n", Binding, 1, "Invalid assignment target."},
		{"binary assignment", "a + b = c\n", Binding, 1, "Invalid assignment target."},
		{"self at top level", "print self\n", Binding, 1, "Can not use 'self' outside of a class."},
		{"self in function", "def f():\n    return self\n", Binding, 2, "Can not use 'self' outside of a class."},
		{"initializer value", "class A:\n    def init():\n        return 1\n", Binding, 3, "Can not return a value from an initializer."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			diags := compileErrors(t, tc.source)
			d := diags[0]
			if d.Kind != tc.kind || d.Line != tc.line || d.Message != tc.msg {
				t.Errorf("got %v (%v), want line %d %v %q", d, d.Kind, tc.line, tc.kind, tc.msg)
			}
		})
	}
}

func TestGlobalRedefinitionAllowed(t *testing.T) {
	if r := Compile("let a = 1\nlet a = 2\n"); r.HadError() {
		t.Errorf("unexpected diagnostics: %v", r.Err())
	}
}

func TestShadowingInNestedScope(t *testing.T) {
	src := "def f():\n    let a = 1\n    if a:\n        let a = 2\n        print a\n"
	if r := Compile(src); r.HadError() {
		t.Errorf("unexpected diagnostics: %v", r.Err())
	}
}

func TestBareReturn(t *testing.T) {
	src := "class A:\n    def init():\n        return\n\ndef f():\n    return\nreturn\n"
	if r := Compile(src); r.HadError() {
		t.Errorf("unexpected diagnostics: %v", r.Err())
	}
}

func TestRecoveryInsideBlocks(t *testing.T) {
	src := `def f():
    print )
    print 1
    let = 2
    print 3
print (
`
	diags := compileErrors(t, src)
	if len(diags) != 3 {
		t.Fatalf("got %d diagnostics, want 3:\n%v", len(diags), (&Error{diags}).Error())
	}
	for i, line := range []int{2, 4, 6} {
		if diags[i].Line != line {
			t.Errorf("diagnostic %d at line %d, want %d", i, diags[i].Line, line)
		}
	}
}

func TestSingleLineBlockRecovers(t *testing.T) {
	diags := compileErrors(t, "if x: print 1\nprint )\n")
	if len(diags) != 2 {
		t.Fatalf("got %d diagnostics %v, want 2", len(diags), diags)
	}
	if diags[1].Line != 2 {
		t.Errorf("second diagnostic at line %d, want 2", diags[1].Line)
	}
}

func TestTooManyParameters(t *testing.T) {
	params := make([]string, MaxParameters+1)
	for i := range params {
		params[i] = fmt.Sprintf("p%d", i)
	}
	src := fmt.Sprintf("def f(%s):\n    return 1\n", strings.Join(params, ", "))
	diags := compileErrors(t, src)
	if diags[0].Message != "Too many function parameters." || diags[0].Kind != Binding {
		t.Errorf("got %v", diags[0])
	}
	if len(diags) != 1 {
		t.Errorf("got %d diagnostics, want 1", len(diags))
	}
}

func TestTooManyArguments(t *testing.T) {
	args := make([]string, MaxArguments+1)
	for i := range args {
		args[i] = "1"
	}
	diags := compileErrors(t, fmt.Sprintf("f(%s)\n", strings.Join(args, ", ")))
	if diags[0].Message != "Too many arguments to function." {
		t.Errorf("got %v", diags[0])
	}
}

func TestMaxArgumentsAccepted(t *testing.T) {
	args := make([]string, MaxArguments)
	for i := range args {
		args[i] = "None"
	}
	if r := Compile(fmt.Sprintf("f(%s)\n", strings.Join(args, ", "))); r.HadError() {
		t.Errorf("unexpected diagnostics: %v", r.Err())
	}
}

func TestTooManyLocals(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("def f():\n")
	// Slot 0 is reserved, so the 256th declared local overflows.
	for i := 0; i < MaxLocals; i++ {
		fmt.Fprintf(&sb, "    let v%d = None\n", i)
	}
	diags := compileErrors(t, sb.String())
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if d := diags[0]; d.Message != "Too many local variables in function." || d.Line != MaxLocals+1 {
		t.Errorf("got %v", d)
	}
}

func TestTooManyUpvalues(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("def a():\n")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "    let a%d = None\n", i)
	}
	sb.WriteString("    def b():\n")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "        let b%d = None\n", i)
	}
	sb.WriteString("        def c():\n")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "            print a%d\n", i)
		fmt.Fprintf(&sb, "            print b%d\n", i)
	}
	diags := compileErrors(t, sb.String())
	if diags[0].Message != "Too many closure variables in function." || diags[0].Kind != Binding {
		t.Errorf("got %v", diags[0])
	}
}

func TestJumpTooLarge(t *testing.T) {
	// Each line is GET_GLOBAL, index, PRINT.
	src := "if True:\n" + strings.Repeat("    print x\n", 22000)
	diags := compileErrors(t, src)
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if d := diags[0]; d.Kind != Limit || d.Message != "Jump offset too large." {
		t.Errorf("got %v (%v)", d, d.Kind)
	}
}

func TestLoopTooLarge(t *testing.T) {
	src := "while True:\n" + strings.Repeat("    print x\n", 22000)
	diags := compileErrors(t, src)
	if len(diags) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(diags))
	}
	if diags[0].Message != "Loop body too large." || diags[1].Message != "Jump offset too large." {
		t.Errorf("got %q, %q", diags[0].Message, diags[1].Message)
	}
}

func TestLimitDoesNotSuppressLaterErrors(t *testing.T) {
	src := "if True:\n" + strings.Repeat("    print x\n", 22000) + "print )\n"
	diags := compileErrors(t, src)
	if len(diags) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(diags))
	}
	if diags[1].Kind != Syntax {
		t.Errorf("second diagnostic kind = %v, want syntax", diags[1].Kind)
	}
}
