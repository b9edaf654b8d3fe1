package vm

import (
	"fmt"
)

// ObjType identifies the concrete type of a heap object.
type ObjType uint8

const (
	ObjString ObjType = iota
	ObjFunction
	ObjNative
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjBoundMethod
)

var objTypeNames = [...]string{
	ObjString:      "str",
	ObjFunction:    "function",
	ObjNative:      "native",
	ObjClosure:     "function",
	ObjUpvalue:     "upvalue",
	ObjClass:       "class",
	ObjInstance:    "instance",
	ObjBoundMethod: "method",
}

func (t ObjType) String() string {
	if int(t) < len(objTypeNames) {
		return objTypeNames[t]
	}
	return fmt.Sprintf("ObjType(%d)", t)
}

// Obj is implemented by every heap-allocated object. Objects are created
// through a Heap so the collector can account for them.
type Obj interface {
	Type() ObjType
	String() string
	header() *objHeader
}

// objHeader carries collector state shared by all objects.
type objHeader struct {
	marked bool
}

func (h *objHeader) header() *objHeader { return h }

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// String is an interned, immutable string. Two String objects with equal
// contents allocated from the same Heap are the same pointer.
type String struct {
	objHeader
	Chars string
	Hash  uint32
}

func (s *String) Type() ObjType  { return ObjString }
func (s *String) String() string { return s.Chars }

// hashString is FNV-1a, matching the runtime's table hashing.
func hashString(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// Function is a compiled function: bytecode plus the metadata the VM needs
// to build closures and call frames. A module is a Function with a nil Name
// and zero arity.
type Function struct {
	objHeader
	Name         *String
	Arity        int
	UpvalueCount int
	Chunk        Chunk
}

func (f *Function) Type() ObjType { return ObjFunction }

func (f *Function) String() string {
	if f.Name == nil {
		return "<module>"
	}
	return fmt.Sprintf("<function %s>", f.Name.Chars)
}

// DisplayName returns the name used in disassembly and stack traces.
func (f *Function) DisplayName() string {
	if f.Name == nil {
		return "<module>"
	}
	return f.Name.Chars
}

// NativeFn is the signature of a Go function callable from Kuro.
type NativeFn func(vm *VM, args []Value) (Value, error)

// Native wraps a Go function.
type Native struct {
	objHeader
	Name  string
	Arity int // -1 for variadic
	Fn    NativeFn
}

func (n *Native) Type() ObjType  { return ObjNative }
func (n *Native) String() string { return fmt.Sprintf("<built-in function %s>", n.Name) }

// Closure pairs a Function with its captured upvalues.
type Closure struct {
	objHeader
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) Type() ObjType  { return ObjClosure }
func (c *Closure) String() string { return c.Function.String() }

// Upvalue references a variable captured by a closure. While open it
// points into the VM stack by slot; once closed it owns the value.
type Upvalue struct {
	objHeader
	Slot   int
	Closed Value
	IsOpen bool
	Next   *Upvalue
}

func (u *Upvalue) Type() ObjType  { return ObjUpvalue }
func (u *Upvalue) String() string { return "<upvalue>" }

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

// Class holds a name and a method table.
type Class struct {
	objHeader
	Name    *String
	Methods map[*String]Value
}

func (c *Class) Type() ObjType  { return ObjClass }
func (c *Class) String() string { return fmt.Sprintf("<class %s>", c.Name.Chars) }

// Instance is an object created by calling a class.
type Instance struct {
	objHeader
	Class  *Class
	Fields map[*String]Value
}

func (i *Instance) Type() ObjType { return ObjInstance }
func (i *Instance) String() string {
	return fmt.Sprintf("<%s instance>", i.Class.Name.Chars)
}

// BoundMethod is a method closure bound to its receiver.
type BoundMethod struct {
	objHeader
	Receiver Value
	Method   *Closure
}

func (b *BoundMethod) Type() ObjType  { return ObjBoundMethod }
func (b *BoundMethod) String() string { return b.Method.String() }
