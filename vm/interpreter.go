package vm

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tliron/commonlog"
)

func vmLog() commonlog.Logger { return commonlog.GetLogger("kuro.vm") }

const (
	// FramesMax bounds call depth.
	FramesMax = 64
	// StackMax bounds the operand stack.
	StackMax = FramesMax * 256
)

// ---------------------------------------------------------------------------
// CallFrame: execution state for a closure invocation
// ---------------------------------------------------------------------------

type callFrame struct {
	closure *Closure
	ip      int // offset of the next byte to execute
	base    int // stack index of slot 0
}

func (f *callFrame) chunk() *Chunk { return &f.closure.Function.Chunk }

// ---------------------------------------------------------------------------
// RuntimeError
// ---------------------------------------------------------------------------

// RuntimeError is returned by Interpret when execution fails. Trace lists
// the active frames innermost first.
type RuntimeError struct {
	Message string
	Trace   []string
}

func (e *RuntimeError) Error() string {
	if len(e.Trace) == 0 {
		return e.Message
	}
	return e.Message + "\n" + strings.Join(e.Trace, "\n")
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM executes compiled functions. A VM owns (or shares) a Heap and registers
// its stack, frames, and globals as roots for the VM's lifetime.
type VM struct {
	heap *Heap

	stack        []Value
	frames       []callFrame
	globals      map[*String]Value
	openUpvalues *Upvalue
	initString   *String

	out     io.Writer
	trace   io.Writer
	started time.Time

	removeRoots func()
}

// Option configures a VM.
type Option func(*VM)

// WithHeap makes the VM allocate from h instead of a private heap.
func WithHeap(h *Heap) Option {
	return func(vm *VM) { vm.heap = h }
}

// WithOutput redirects print.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithTrace writes the stack and each instruction to w before it runs.
func WithTrace(w io.Writer) Option {
	return func(vm *VM) { vm.trace = w }
}

// New creates a VM with the built-in natives defined.
func New(opts ...Option) *VM {
	vm := &VM{
		stack:   make([]Value, 0, 256),
		frames:  make([]callFrame, 0, FramesMax),
		globals: make(map[*String]Value),
		out:     os.Stdout,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.heap == nil {
		vm.heap = NewHeap()
	}
	vm.removeRoots = vm.heap.AddRoots(vm)
	vm.initString = vm.heap.CopyString("init")
	vm.registerNatives()
	return vm
}

// Heap returns the heap the VM allocates from.
func (vm *VM) Heap() *Heap { return vm.heap }

// Close unregisters the VM's roots. The VM must not be used afterwards.
func (vm *VM) Close() {
	if vm.removeRoots != nil {
		vm.removeRoots()
		vm.removeRoots = nil
	}
}

// Global returns the value bound to a global name.
func (vm *VM) Global(name string) (Value, bool) {
	key, ok := vm.heap.Interned(name)
	if !ok {
		return None, false
	}
	v, ok := vm.globals[key]
	return v, ok
}

// DefineNative binds a Go function to a global name.
func (vm *VM) DefineNative(name string, arity int, fn NativeFn) {
	key := vm.heap.CopyString(name)
	vm.push(ObjectValue(key))
	native := vm.heap.NewNative(name, arity, fn)
	vm.globals[key] = ObjectValue(native)
	vm.pop()
}

// MarkRoots implements RootProvider.
func (vm *VM) MarkRoots(m *Marker) {
	for _, v := range vm.stack {
		m.MarkValue(v)
	}
	for i := range vm.frames {
		m.MarkObject(vm.frames[i].closure)
	}
	for up := vm.openUpvalues; up != nil; up = up.Next {
		m.MarkObject(up)
	}
	for k, v := range vm.globals {
		m.MarkObject(k)
		m.MarkValue(v)
	}
	m.markString(vm.initString)
}

// Interpret runs a compiled module function to completion.
func (vm *VM) Interpret(fn *Function) error {
	vm.resetStack()
	vm.push(ObjectValue(fn))
	closure := vm.heap.NewClosure(fn)
	vm.pop()
	vm.push(ObjectValue(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

// ---------------------------------------------------------------------------
// Stack
// ---------------------------------------------------------------------------

func (vm *VM) resetStack() {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.openUpvalues = nil
}

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) runtimeError(format string, args ...interface{}) error {
	err := &RuntimeError{Message: fmt.Sprintf(format, args...)}
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := &vm.frames[i]
		line := f.chunk().LineAt(CodeOffset(f.ip - 1))
		if f.closure.Function.Name == nil {
			err.Trace = append(err.Trace, fmt.Sprintf("[line %d] in <module>", line))
		} else {
			err.Trace = append(err.Trace, fmt.Sprintf("[line %d] in %s()", line, f.closure.Function.Name.Chars))
		}
	}
	vmLog().Debugf("runtime error: %s", err.Message)
	vm.resetStack()
	return err
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (vm *VM) call(closure *Closure, argc int) error {
	if argc != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argc)
	}
	if len(vm.frames) == FramesMax || len(vm.stack) >= StackMax {
		return vm.runtimeError("Stack overflow.")
	}
	vm.frames = append(vm.frames, callFrame{
		closure: closure,
		base:    len(vm.stack) - argc - 1,
	})
	return nil
}

func (vm *VM) callValue(callee Value, argc int) error {
	calleeSlot := len(vm.stack) - argc - 1
	switch obj := callee.AsObject().(type) {
	case *Closure:
		return vm.call(obj, argc)
	case *Native:
		if obj.Arity >= 0 && argc != obj.Arity {
			return vm.runtimeError("Expected %d arguments but got %d.", obj.Arity, argc)
		}
		args := make([]Value, argc)
		copy(args, vm.stack[calleeSlot+1:])
		result, err := obj.Fn(vm, args)
		if err != nil {
			return vm.runtimeError("%s", err.Error())
		}
		vm.stack = vm.stack[:calleeSlot]
		vm.push(result)
		return nil
	case *Class:
		instance := vm.heap.NewInstance(obj)
		vm.stack[calleeSlot] = ObjectValue(instance)
		if init, ok := obj.Methods[vm.initString]; ok {
			return vm.call(init.AsObject().(*Closure), argc)
		}
		if argc != 0 {
			return vm.runtimeError("Expected 0 arguments but got %d.", argc)
		}
		return nil
	case *BoundMethod:
		vm.stack[calleeSlot] = obj.Receiver
		return vm.call(obj.Method, argc)
	}
	return vm.runtimeError("Can only call functions and classes.")
}

func (vm *VM) bindMethod(class *Class, name *String) error {
	method, ok := class.Methods[name]
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	bound := vm.heap.NewBoundMethod(vm.peek(0), method.AsObject().(*Closure))
	vm.pop()
	vm.push(ObjectValue(bound))
	return nil
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// captureUpvalue returns the open upvalue for slot, creating it if needed.
// The open list is sorted by descending slot.
func (vm *VM) captureUpvalue(slot int) *Upvalue {
	var prev *Upvalue
	up := vm.openUpvalues
	for up != nil && up.Slot > slot {
		prev = up
		up = up.Next
	}
	if up != nil && up.Slot == slot {
		return up
	}
	created := vm.heap.NewUpvalue(slot)
	created.Next = up
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues hoists every open upvalue at or above last off the stack.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= last {
		up := vm.openUpvalues
		up.Closed = vm.stack[up.Slot]
		up.IsOpen = false
		vm.openUpvalues = up.Next
		up.Next = nil
	}
}

func (vm *VM) upvalueGet(up *Upvalue) Value {
	if up.IsOpen {
		return vm.stack[up.Slot]
	}
	return up.Closed
}

func (vm *VM) upvalueSet(up *Upvalue, v Value) {
	if up.IsOpen {
		vm.stack[up.Slot] = v
		return
	}
	up.Closed = v
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

func (vm *VM) run() error {
	frame := &vm.frames[len(vm.frames)-1]
	code := frame.chunk().Code

	readByte := func() byte {
		b := code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		v := int(code[frame.ip])<<8 | int(code[frame.ip+1])
		frame.ip += 2
		return v
	}
	readLong := func() int {
		v := int(code[frame.ip])<<16 | int(code[frame.ip+1])<<8 | int(code[frame.ip+2])
		frame.ip += 3
		return v
	}
	readConstant := func(long bool) Value {
		if long {
			return frame.chunk().Constants[readLong()]
		}
		return frame.chunk().Constants[readByte()]
	}
	readString := func(long bool) *String {
		return readConstant(long).AsString()
	}
	// reload refreshes the cached frame after a call or return.
	reload := func() {
		frame = &vm.frames[len(vm.frames)-1]
		code = frame.chunk().Code
	}

	for {
		if vm.trace != nil {
			vm.traceInstruction(frame)
		}

		op := Opcode(readByte())
		switch op {
		case OpConstant, OpConstantLong:
			vm.push(readConstant(op == OpConstantLong))
		case OpNone:
			vm.push(None)
		case OpTrue:
			vm.push(True)
		case OpFalse:
			vm.push(False)
		case OpPop:
			vm.pop()

		case OpGetLocal:
			vm.push(vm.stack[frame.base+int(readByte())])
		case OpSetLocal:
			vm.stack[frame.base+int(readByte())] = vm.peek(0)

		case OpDefineGlobal, OpDefineGlobalLong:
			name := readString(op == OpDefineGlobalLong)
			vm.globals[name] = vm.peek(0)
			vm.pop()
		case OpGetGlobal, OpGetGlobalLong:
			name := readString(op == OpGetGlobalLong)
			v, ok := vm.globals[name]
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case OpSetGlobal, OpSetGlobalLong:
			name := readString(op == OpSetGlobalLong)
			if _, ok := vm.globals[name]; !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.globals[name] = vm.peek(0)

		case OpGetUpvalue:
			vm.push(vm.upvalueGet(frame.closure.Upvalues[readByte()]))
		case OpSetUpvalue:
			vm.upvalueSet(frame.closure.Upvalues[readByte()], vm.peek(0))
		case OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case OpGetProperty, OpGetPropertyLong:
			name := readString(op == OpGetPropertyLong)
			instance, ok := vm.peek(0).AsObject().(*Instance)
			if !ok {
				return vm.runtimeError("Only instances have properties.")
			}
			if v, ok := instance.Fields[name]; ok {
				vm.pop()
				vm.push(v)
				break
			}
			if err := vm.bindMethod(instance.Class, name); err != nil {
				return err
			}
		case OpSetProperty, OpSetPropertyLong:
			name := readString(op == OpSetPropertyLong)
			instance, ok := vm.peek(1).AsObject().(*Instance)
			if !ok {
				return vm.runtimeError("Only instances have fields.")
			}
			instance.Fields[name] = vm.peek(0)
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolValue(Equal(a, b)))
		case OpGreater, OpLess:
			b, a := vm.peek(0), vm.peek(1)
			if !a.IsNumber() || !b.IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			vm.pop()
			vm.pop()
			vm.push(BoolValue(compareNumbers(op, a, b)))
		case OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case OpSubtract, OpMultiply, OpDivide:
			if err := vm.arithmetic(op); err != nil {
				return err
			}
		case OpNot:
			vm.push(BoolValue(vm.pop().IsFalsey()))
		case OpNegate:
			v := vm.peek(0)
			switch {
			case v.IsInteger():
				vm.pop()
				vm.push(IntegerValue(-v.AsInteger()))
			case v.IsFloat():
				vm.pop()
				vm.push(FloatValue(-v.AsFloat()))
			default:
				return vm.runtimeError("Operand must be a number.")
			}

		case OpPrint:
			fmt.Fprintln(vm.out, vm.pop().String())

		case OpJump:
			offset := readShort()
			frame.ip += offset
		case OpJumpIfFalse:
			offset := readShort()
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}
		case OpJumpIfTrue:
			offset := readShort()
			if !vm.peek(0).IsFalsey() {
				frame.ip += offset
			}
		case OpLoop:
			offset := readShort()
			frame.ip -= offset

		case OpCall:
			argc := int(readByte())
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}
			reload()
		case OpClosure, OpClosureLong:
			fn := readConstant(op == OpClosureLong).AsFunction()
			closure := vm.heap.NewClosure(fn)
			vm.push(ObjectValue(closure))
			for i := range closure.Upvalues {
				isLocal := readByte()
				index := int(readByte())
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.base + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
		case OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.base)
			base := frame.base
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				vm.stack = vm.stack[:0]
				return nil
			}
			vm.stack = vm.stack[:base]
			vm.push(result)
			reload()

		case OpClass, OpClassLong:
			vm.push(ObjectValue(vm.heap.NewClass(readString(op == OpClassLong))))
		case OpMethod, OpMethodLong:
			name := readString(op == OpMethodLong)
			class := vm.peek(1).AsObject().(*Class)
			class.Methods[name] = vm.peek(0)
			vm.pop()

		default:
			return vm.runtimeError("Unknown opcode %s.", op)
		}
	}
}

func (vm *VM) traceInstruction(frame *callFrame) {
	var sb strings.Builder
	sb.WriteString("          ")
	for _, v := range vm.stack {
		fmt.Fprintf(&sb, "[ %s ]", v)
	}
	fmt.Fprintln(vm.trace, sb.String())
	DisassembleInstruction(vm.trace, frame.chunk(), CodeOffset(frame.ip))
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func (vm *VM) add() error {
	b, a := vm.peek(0), vm.peek(1)
	switch {
	case a.IsString() && b.IsString():
		// Operands stay on the stack while the result is allocated.
		s := vm.heap.CopyString(a.AsString().Chars + b.AsString().Chars)
		vm.pop()
		vm.pop()
		vm.push(ObjectValue(s))
	case a.IsInteger() && b.IsInteger():
		vm.pop()
		vm.pop()
		vm.push(IntegerValue(a.AsInteger() + b.AsInteger()))
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(FloatValue(a.AsNumber() + b.AsNumber()))
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	return nil
}

func (vm *VM) arithmetic(op Opcode) error {
	b, a := vm.peek(0), vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	if a.IsInteger() && b.IsInteger() {
		x, y := a.AsInteger(), b.AsInteger()
		var r int64
		switch op {
		case OpSubtract:
			r = x - y
		case OpMultiply:
			r = x * y
		case OpDivide:
			if y == 0 {
				return vm.runtimeError("Division by zero.")
			}
			r = x / y
		}
		vm.pop()
		vm.pop()
		vm.push(IntegerValue(r))
		return nil
	}
	x, y := a.AsNumber(), b.AsNumber()
	var r float64
	switch op {
	case OpSubtract:
		r = x - y
	case OpMultiply:
		r = x * y
	case OpDivide:
		r = x / y
	}
	vm.pop()
	vm.pop()
	vm.push(FloatValue(r))
	return nil
}

func compareNumbers(op Opcode, a, b Value) bool {
	if a.IsInteger() && b.IsInteger() {
		if op == OpGreater {
			return a.AsInteger() > b.AsInteger()
		}
		return a.AsInteger() < b.AsInteger()
	}
	if op == OpGreater {
		return a.AsNumber() > b.AsNumber()
	}
	return a.AsNumber() < b.AsNumber()
}
