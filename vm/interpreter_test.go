package vm

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// assemble builds a module function on h from raw code, all on line 1.
// Constants given as Go strings are interned.
func assemble(h *Heap, constants []interface{}, code ...byte) *Function {
	fn := h.NewFunction()
	for _, c := range constants {
		switch c := c.(type) {
		case string:
			fn.Chunk.AddConstant(ObjectValue(h.CopyString(c)))
		case int:
			fn.Chunk.AddConstant(IntegerValue(int64(c)))
		case float64:
			fn.Chunk.AddConstant(FloatValue(c))
		case Value:
			fn.Chunk.AddConstant(c)
		default:
			panic(fmt.Sprintf("assemble: unsupported constant %T", c))
		}
	}
	for _, b := range code {
		fn.Chunk.Write(b, 1)
	}
	return fn
}

func newTestVM() (*VM, *bytes.Buffer) {
	var out bytes.Buffer
	return New(WithOutput(&out)), &out
}

func interpret(t *testing.T, constants []interface{}, code ...byte) (string, error) {
	t.Helper()
	machine, out := newTestVM()
	defer machine.Close()
	err := machine.Interpret(assemble(machine.Heap(), constants, code...))
	return out.String(), err
}

// Shorthands for hand-assembled code.
const (
	bPop       = byte(OpPop)
	bConst     = byte(OpConstant)
	bNone      = byte(OpNone)
	bPrint     = byte(OpPrint)
	bReturn    = byte(OpReturn)
	bGetGlobal = byte(OpGetGlobal)
	bCall      = byte(OpCall)
)

// ---------------------------------------------------------------------------
// Execution tests
// ---------------------------------------------------------------------------

func TestInterpretBinaryOps(t *testing.T) {
	tests := []struct {
		a, b interface{}
		op   Opcode
		want string
	}{
		{1, 2, OpAdd, "3"},
		{1, 0.5, OpAdd, "1.5"},
		{"con", "cat", OpAdd, "concat"},
		{7, 2, OpSubtract, "5"},
		{6, 7, OpMultiply, "42"},
		{7, 2, OpDivide, "3"},
		{-7, 2, OpDivide, "-3"},
		{7.0, 2, OpDivide, "3.5"},
		{1.0, 0, OpDivide, "+Inf"},
		{2, 1, OpGreater, "True"},
		{1, 1.5, OpLess, "True"},
		{1, 1.0, OpEqual, "True"},
		{"a", "b", OpEqual, "False"},
	}
	for _, tt := range tests {
		out, err := interpret(t, []interface{}{tt.a, tt.b},
			bConst, 0, bConst, 1, byte(tt.op), bPrint, bNone, bReturn)
		if err != nil {
			t.Errorf("%v %s %v: %v", tt.a, tt.op, tt.b, err)
			continue
		}
		if got := strings.TrimSpace(out); got != tt.want {
			t.Errorf("%v %s %v = %q, want %q", tt.a, tt.op, tt.b, got, tt.want)
		}
	}
}

func TestInterpretUnaryOps(t *testing.T) {
	tests := []struct {
		v    interface{}
		op   Opcode
		want string
	}{
		{5, OpNegate, "-5"},
		{2.5, OpNegate, "-2.5"},
		{0, OpNot, "True"},
		{"", OpNot, "True"},
		{"x", OpNot, "False"},
		{None, OpNot, "True"},
	}
	for _, tt := range tests {
		out, err := interpret(t, []interface{}{tt.v}, bConst, 0, byte(tt.op), bPrint, bNone, bReturn)
		if err != nil {
			t.Errorf("%s %v: %v", tt.op, tt.v, err)
			continue
		}
		if got := strings.TrimSpace(out); got != tt.want {
			t.Errorf("%s %v = %q, want %q", tt.op, tt.v, got, tt.want)
		}
	}
}

func TestInterpretGlobals(t *testing.T) {
	machine, out := newTestVM()
	defer machine.Close()

	fn := assemble(machine.Heap(), []interface{}{5, "x"},
		bConst, 0,
		byte(OpDefineGlobal), 1,
		bGetGlobal, 1,
		bPrint,
		bNone, bReturn)
	if err := machine.Interpret(fn); err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if out.String() != "5\n" {
		t.Errorf("output = %q", out.String())
	}
	if v, ok := machine.Global("x"); !ok || v.AsInteger() != 5 {
		t.Errorf("Global(x) = %v, %v", v, ok)
	}
	if _, ok := machine.Global("never-interned"); ok {
		t.Error("Global reported an unknown name")
	}
}

func TestInterpretConditionalJump(t *testing.T) {
	// if cond: print "then"
	program := func(cond Opcode) []byte {
		return []byte{
			byte(cond),                // 0
			byte(OpJumpIfFalse), 0, 7, // 1 -> 11
			bPop,      // 4
			bConst, 0, // 5
			bPrint,             // 7
			byte(OpJump), 0, 1, // 8 -> 12
			bPop,           // 11
			bNone, bReturn, // 12
		}
	}
	tests := []struct {
		cond Opcode
		want string
	}{
		{OpTrue, "then\n"},
		{OpFalse, ""},
		{OpNone, ""},
	}
	for _, tt := range tests {
		out, err := interpret(t, []interface{}{"then"}, program(tt.cond)...)
		if err != nil {
			t.Fatalf("%s: %v", tt.cond, err)
		}
		if out != tt.want {
			t.Errorf("%s: output = %q, want %q", tt.cond, out, tt.want)
		}
	}
}

func TestInterpretLoop(t *testing.T) {
	// let n = 3; while n: print n; n = n - 1
	out, err := interpret(t, []interface{}{3, 1},
		bConst, 0, // 0: slot 1
		byte(OpGetLocal), 1, // 2
		byte(OpJumpIfFalse), 0, 15, // 4 -> 22
		bPop,                // 7
		byte(OpGetLocal), 1, // 8
		bPrint,              // 10
		byte(OpGetLocal), 1, // 11
		bConst, 1, // 13
		byte(OpSubtract),    // 15
		byte(OpSetLocal), 1, // 16
		bPop,                // 18
		byte(OpLoop), 0, 20, // 19 -> 2
		bPop,           // 22
		bNone, bReturn, // 23
	)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if out != "3\n2\n1\n" {
		t.Errorf("output = %q", out)
	}
}

func TestInterpretJumpIfTrue(t *testing.T) {
	// True or <unreached>
	out, err := interpret(t, []interface{}{"unreached"},
		byte(OpTrue),
		byte(OpJumpIfTrue), 0, 3,
		bPop,
		bConst, 0,
		bPrint,
		bNone, bReturn)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if out != "True\n" {
		t.Errorf("output = %q", out)
	}
}

func TestInterpretFields(t *testing.T) {
	out, err := interpret(t, []interface{}{"A", 7, "f"},
		byte(OpClass), 0,
		bCall, 0,
		bConst, 1,
		byte(OpSetProperty), 2,
		bPrint,
		bNone, bReturn)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if out != "7\n" {
		t.Errorf("output = %q", out)
	}
}

// ---------------------------------------------------------------------------
// Natives
// ---------------------------------------------------------------------------

func TestBuiltinNatives(t *testing.T) {
	tests := []struct {
		name string
		arg  interface{}
		want string
	}{
		{"len", "héllo", "5"},
		{"len", "", "0"},
		{"str", 1.5, "1.5"},
		{"str", 42, "42"},
		{"str", "same", "same"},
	}
	for _, tt := range tests {
		out, err := interpret(t, []interface{}{tt.name, tt.arg},
			bGetGlobal, 0, bConst, 1, bCall, 1, bPrint, bNone, bReturn)
		if err != nil {
			t.Errorf("%s(%v): %v", tt.name, tt.arg, err)
			continue
		}
		if got := strings.TrimSpace(out); got != tt.want {
			t.Errorf("%s(%v) = %q, want %q", tt.name, tt.arg, got, tt.want)
		}
	}
}

func TestClockNative(t *testing.T) {
	machine, _ := newTestVM()
	defer machine.Close()
	fn := assemble(machine.Heap(), []interface{}{"clock", "t"},
		bGetGlobal, 0, bCall, 0, byte(OpDefineGlobal), 1, bNone, bReturn)
	if err := machine.Interpret(fn); err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	v, ok := machine.Global("t")
	if !ok || !v.IsFloat() || v.AsFloat() < 0 {
		t.Errorf("clock() = %v", v)
	}
}

func TestDefineNative(t *testing.T) {
	machine, out := newTestVM()
	defer machine.Close()
	machine.DefineNative("twice", 1, func(vm *VM, args []Value) (Value, error) {
		return IntegerValue(args[0].AsInteger() * 2), nil
	})
	machine.DefineNative("count", -1, func(vm *VM, args []Value) (Value, error) {
		return IntegerValue(int64(len(args))), nil
	})

	fn := assemble(machine.Heap(), []interface{}{"twice", 21, "count"},
		bGetGlobal, 0, bConst, 1, bCall, 1, bPrint,
		bGetGlobal, 2, bConst, 1, bConst, 1, bConst, 1, bCall, 3, bPrint,
		bGetGlobal, 2, bCall, 0, bPrint,
		bNone, bReturn)
	if err := machine.Interpret(fn); err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if out.String() != "42\n3\n0\n" {
		t.Errorf("output = %q", out.String())
	}
}

// ---------------------------------------------------------------------------
// Runtime errors
// ---------------------------------------------------------------------------

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name      string
		constants []interface{}
		code      []byte
		want      string
	}{
		{"undefined global", []interface{}{"nope"}, []byte{bGetGlobal, 0}, "Undefined variable 'nope'."},
		{"set undefined", []interface{}{"nope"}, []byte{bNone, byte(OpSetGlobal), 0}, "Undefined variable 'nope'."},
		{"add mismatch", []interface{}{1, "a"}, []byte{bConst, 0, bConst, 1, byte(OpAdd)}, "Operands must be two numbers or two strings."},
		{"subtract string", []interface{}{1, "a"}, []byte{bConst, 0, bConst, 1, byte(OpSubtract)}, "Operands must be numbers."},
		{"compare string", []interface{}{1, "a"}, []byte{bConst, 0, bConst, 1, byte(OpLess)}, "Operands must be numbers."},
		{"negate string", []interface{}{"a"}, []byte{bConst, 0, byte(OpNegate)}, "Operand must be a number."},
		{"division by zero", []interface{}{1, 0}, []byte{bConst, 0, bConst, 1, byte(OpDivide)}, "Division by zero."},
		{"call number", []interface{}{1}, []byte{bConst, 0, bCall, 0}, "Can only call functions and classes."},
		{"property of number", []interface{}{1, "p"}, []byte{bConst, 0, byte(OpGetProperty), 1}, "Only instances have properties."},
		{"field of number", []interface{}{1, "p"}, []byte{bConst, 0, bConst, 0, byte(OpSetProperty), 1}, "Only instances have fields."},
		{"native arity", []interface{}{"len"}, []byte{bGetGlobal, 0, bCall, 0}, "Expected 1 arguments but got 0."},
		{"native error", []interface{}{"len", 1}, []byte{bGetGlobal, 0, bConst, 1, bCall, 1}, "len() expects a str, not 'int'"},
		{"class arity", []interface{}{"A", 1}, []byte{byte(OpClass), 0, bConst, 1, bCall, 1}, "Expected 0 arguments but got 1."},
		{"unknown opcode", nil, []byte{0xFF}, "Unknown opcode OP_UNKNOWN(0xFF)."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interpret(t, tt.constants, tt.code...)
			var rerr *RuntimeError
			if !errors.As(err, &rerr) {
				t.Fatalf("error = %v, want *RuntimeError", err)
			}
			if rerr.Message != tt.want {
				t.Errorf("message = %q, want %q", rerr.Message, tt.want)
			}
			if len(rerr.Trace) != 1 || rerr.Trace[0] != "[line 1] in <module>" {
				t.Errorf("trace = %q", rerr.Trace)
			}
		})
	}
}

func TestRuntimeErrorFormat(t *testing.T) {
	err := &RuntimeError{Message: "boom", Trace: []string{"[line 2] in f()", "[line 3] in <module>"}}
	want := "boom\n[line 2] in f()\n[line 3] in <module>"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if (&RuntimeError{Message: "bare"}).Error() != "bare" {
		t.Error("error without a trace should be the bare message")
	}
}

func TestVMRecoversAfterRuntimeError(t *testing.T) {
	machine, out := newTestVM()
	defer machine.Close()
	h := machine.Heap()

	bad := assemble(h, []interface{}{"nope"}, bGetGlobal, 0)
	if err := machine.Interpret(bad); err == nil {
		t.Fatal("expected an error")
	}
	good := assemble(h, []interface{}{"ok"}, bConst, 0, bPrint, bNone, bReturn)
	if err := machine.Interpret(good); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if out.String() != "ok\n" {
		t.Errorf("output = %q", out.String())
	}
}

// ---------------------------------------------------------------------------
// Collection during execution
// ---------------------------------------------------------------------------

func TestInterpretUnderStressGC(t *testing.T) {
	h := NewHeap(WithStressGC(true))
	var fn *Function
	remove := h.AddRoots(RootFunc(func(m *Marker) { m.MarkFunction(fn) }))
	fn = h.NewFunction()
	fn.Chunk.AddConstant(ObjectValue(h.CopyString("con")))
	fn.Chunk.AddConstant(ObjectValue(h.CopyString("cat")))
	for _, b := range []byte{bConst, 0, bConst, 1, byte(OpAdd), bConst, 0, byte(OpAdd), bPrint, bNone, bReturn} {
		fn.Chunk.Write(b, 1)
	}

	var out bytes.Buffer
	machine := New(WithHeap(h), WithOutput(&out))
	defer machine.Close()
	remove()

	if err := machine.Interpret(fn); err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if out.String() != "concatcon\n" {
		t.Errorf("output = %q", out.String())
	}
	if _, ok := h.Interned("len"); !ok {
		t.Error("native name swept while bound as a global")
	}
}

func TestCloseRemovesRoots(t *testing.T) {
	h := NewHeap()
	machine := New(WithHeap(h))
	if h.RootCount() != 1 {
		t.Fatalf("root count = %d, want 1", h.RootCount())
	}
	machine.Close()
	machine.Close()
	if h.RootCount() != 0 {
		t.Errorf("root count = %d, want 0", h.RootCount())
	}
}

func TestTraceOutput(t *testing.T) {
	var out, trace bytes.Buffer
	machine := New(WithOutput(&out), WithTrace(&trace))
	defer machine.Close()
	fn := assemble(machine.Heap(), []interface{}{4}, bConst, 0, bPrint, bNone, bReturn)
	if err := machine.Interpret(fn); err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	for _, want := range []string{"0000    1 OP_CONSTANT", "[ 4 ]", "OP_PRINT", "OP_RETURN"} {
		if !strings.Contains(trace.String(), want) {
			t.Errorf("trace missing %q:\n%s", want, trace.String())
		}
	}
}
