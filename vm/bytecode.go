package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpPop Opcode = 0x01 // discard top of stack
)

// Push Constants
const (
	OpConstant Opcode = 0x10 // push constant (8-bit index)
	OpNone     Opcode = 0x11 // push none
	OpTrue     Opcode = 0x12 // push true
	OpFalse    Opcode = 0x13 // push false
)

// Arithmetic
const (
	OpAdd      Opcode = 0x20
	OpSubtract Opcode = 0x21
	OpMultiply Opcode = 0x22
	OpDivide   Opcode = 0x23
	OpNegate   Opcode = 0x24
)

// Comparison and logic. There are deliberately no opcodes for !=, <= and
// >=; the compiler synthesises them with OpNot.
const (
	OpEqual   Opcode = 0x28
	OpGreater Opcode = 0x29
	OpLess    Opcode = 0x2A
	OpNot     Opcode = 0x2B
)

// Variable Operations
const (
	OpDefineGlobal Opcode = 0x30 // define global (8-bit name index)
	OpGetGlobal    Opcode = 0x31 // push global (8-bit name index)
	OpSetGlobal    Opcode = 0x32 // store global (8-bit name index)
	OpGetLocal     Opcode = 0x33 // push local (8-bit slot)
	OpSetLocal     Opcode = 0x34 // store local (8-bit slot)
	OpGetUpvalue   Opcode = 0x35 // push upvalue (8-bit index)
	OpSetUpvalue   Opcode = 0x36 // store upvalue (8-bit index)
	OpCloseUpvalue Opcode = 0x37 // hoist top of stack into its upvalue, pop
)

// Control Flow
const (
	OpJump        Opcode = 0x40 // unconditional forward jump (16-bit offset)
	OpJumpIfFalse Opcode = 0x41 // forward jump if top is falsey, no pop (16-bit offset)
	OpJumpIfTrue  Opcode = 0x42 // forward jump if top is truthy, no pop (16-bit offset)
	OpLoop        Opcode = 0x43 // backward jump (16-bit offset)
)

// Calls and Closures
const (
	OpCall    Opcode = 0x50 // call (8-bit argc)
	OpClosure Opcode = 0x51 // make closure (8-bit function index, then upvalue pairs)
	OpReturn  Opcode = 0x52 // return top of stack
)

// Classes
const (
	OpClass       Opcode = 0x60 // push new class (8-bit name index)
	OpMethod      Opcode = 0x61 // bind closure on top to class below it (8-bit name index)
	OpGetProperty Opcode = 0x62 // (8-bit name index)
	OpSetProperty Opcode = 0x63 // (8-bit name index)
)

// Output
const (
	OpPrint Opcode = 0x70 // pop and print
)

// Long forms carry a 24-bit big-endian operand and are used once a
// constant index no longer fits in one byte.
const (
	OpConstantLong     Opcode = 0x90
	OpDefineGlobalLong Opcode = 0xB0
	OpGetGlobalLong    Opcode = 0xB1
	OpSetGlobalLong    Opcode = 0xB2
	OpClosureLong      Opcode = 0xD1
	OpClassLong        Opcode = 0xE0
	OpMethodLong       Opcode = 0xE1
	OpGetPropertyLong  Opcode = 0xE2
	OpSetPropertyLong  Opcode = 0xE3
)

// Operand limits.
const (
	ShortOperandLimit = 256     // indices below this use the short form
	LongOperandLimit  = 1 << 24 // indices must stay below this
	MaxJump           = 0xFFFF  // largest 16-bit jump distance
)

// longForms maps each constant-indexed opcode to its wide variant.
var longForms = map[Opcode]Opcode{
	OpConstant:     OpConstantLong,
	OpDefineGlobal: OpDefineGlobalLong,
	OpGetGlobal:    OpGetGlobalLong,
	OpSetGlobal:    OpSetGlobalLong,
	OpClosure:      OpClosureLong,
	OpClass:        OpClassLong,
	OpMethod:       OpMethodLong,
	OpGetProperty:  OpGetPropertyLong,
	OpSetProperty:  OpSetPropertyLong,
}

// Long returns the wide variant of op and true, or op and false when op has
// no constant operand.
func (op Opcode) Long() (Opcode, bool) {
	l, ok := longForms[op]
	if !ok {
		return op, false
	}
	return l, true
}

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind describes how an instruction's operand bytes are read.
type OperandKind uint8

const (
	OperandNone      OperandKind = iota
	OperandByte                  // 8-bit slot, count or index
	OperandConst                 // 8-bit constant index
	OperandConstLong             // 24-bit constant index
	OperandJump                  // 16-bit forward distance
	OperandLoop                  // 16-bit backward distance
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name    string
	Operand OperandKind
}

// OperandBytes returns the fixed operand width. Closures additionally carry
// two bytes per captured upvalue.
func (i OpcodeInfo) OperandBytes() int {
	switch i.Operand {
	case OperandByte, OperandConst:
		return 1
	case OperandJump, OperandLoop:
		return 2
	case OperandConstLong:
		return 3
	default:
		return 0
	}
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpPop: {"OP_POP", OperandNone},

	OpConstant: {"OP_CONSTANT", OperandConst},
	OpNone:     {"OP_NONE", OperandNone},
	OpTrue:     {"OP_TRUE", OperandNone},
	OpFalse:    {"OP_FALSE", OperandNone},

	OpAdd:      {"OP_ADD", OperandNone},
	OpSubtract: {"OP_SUBTRACT", OperandNone},
	OpMultiply: {"OP_MULTIPLY", OperandNone},
	OpDivide:   {"OP_DIVIDE", OperandNone},
	OpNegate:   {"OP_NEGATE", OperandNone},

	OpEqual:   {"OP_EQUAL", OperandNone},
	OpGreater: {"OP_GREATER", OperandNone},
	OpLess:    {"OP_LESS", OperandNone},
	OpNot:     {"OP_NOT", OperandNone},

	OpDefineGlobal: {"OP_DEFINE_GLOBAL", OperandConst},
	OpGetGlobal:    {"OP_GET_GLOBAL", OperandConst},
	OpSetGlobal:    {"OP_SET_GLOBAL", OperandConst},
	OpGetLocal:     {"OP_GET_LOCAL", OperandByte},
	OpSetLocal:     {"OP_SET_LOCAL", OperandByte},
	OpGetUpvalue:   {"OP_GET_UPVALUE", OperandByte},
	OpSetUpvalue:   {"OP_SET_UPVALUE", OperandByte},
	OpCloseUpvalue: {"OP_CLOSE_UPVALUE", OperandNone},

	OpJump:        {"OP_JUMP", OperandJump},
	OpJumpIfFalse: {"OP_JUMP_IF_FALSE", OperandJump},
	OpJumpIfTrue:  {"OP_JUMP_IF_TRUE", OperandJump},
	OpLoop:        {"OP_LOOP", OperandLoop},

	OpCall:    {"OP_CALL", OperandByte},
	OpClosure: {"OP_CLOSURE", OperandConst},
	OpReturn:  {"OP_RETURN", OperandNone},

	OpClass:       {"OP_CLASS", OperandConst},
	OpMethod:      {"OP_METHOD", OperandConst},
	OpGetProperty: {"OP_GET_PROPERTY", OperandConst},
	OpSetProperty: {"OP_SET_PROPERTY", OperandConst},

	OpPrint: {"OP_PRINT", OperandNone},

	OpConstantLong:     {"OP_CONSTANT_LONG", OperandConstLong},
	OpDefineGlobalLong: {"OP_DEFINE_GLOBAL_LONG", OperandConstLong},
	OpGetGlobalLong:    {"OP_GET_GLOBAL_LONG", OperandConstLong},
	OpSetGlobalLong:    {"OP_SET_GLOBAL_LONG", OperandConstLong},
	OpClosureLong:      {"OP_CLOSURE_LONG", OperandConstLong},
	OpClassLong:        {"OP_CLASS_LONG", OperandConstLong},
	OpMethodLong:       {"OP_METHOD_LONG", OperandConstLong},
	OpGetPropertyLong:  {"OP_GET_PROPERTY_LONG", OperandConstLong},
	OpSetPropertyLong:  {"OP_SET_PROPERTY_LONG", OperandConstLong},
}

// Info returns metadata for the opcode.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

// String returns the opcode's mnemonic.
func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("OP_UNKNOWN(0x%02X)", byte(op))
}

// ---------------------------------------------------------------------------
// Chunk: a function's bytecode and constant pool
// ---------------------------------------------------------------------------

// CodeOffset is an index into Chunk.Code. Jump placeholders are addressed by
// offset rather than pointer so they stay valid as the buffer grows.
type CodeOffset int

// LineRun records that the bytes from Offset up to the next run came from
// source line Line.
type LineRun struct {
	Offset CodeOffset
	Line   int
}

// Chunk is a function's bytecode buffer plus its constant pool.
type Chunk struct {
	Code      []byte
	Lines     []LineRun
	Constants []Value
}

// NewChunk creates an empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code: make([]byte, 0, 64),
	}
}

// Write appends one byte attributed to line.
func (c *Chunk) Write(b byte, line int) CodeOffset {
	offset := CodeOffset(len(c.Code))
	c.Code = append(c.Code, b)
	if n := len(c.Lines); n == 0 || c.Lines[n-1].Line != line {
		c.Lines = append(c.Lines, LineRun{Offset: offset, Line: line})
	}
	return offset
}

// AddConstant appends a value to the pool and returns its index.
func (c *Chunk) AddConstant(v Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// Len returns the current code length; it is also the offset of the next
// byte to be written.
func (c *Chunk) Len() CodeOffset {
	return CodeOffset(len(c.Code))
}

// LineAt returns the source line for the byte at offset, or 0.
func (c *Chunk) LineAt(offset CodeOffset) int {
	line := 0
	for _, run := range c.Lines {
		if run.Offset > offset {
			break
		}
		line = run.Line
	}
	return line
}

// ReadUint16 decodes a big-endian 16-bit operand at offset.
func (c *Chunk) ReadUint16(offset CodeOffset) int {
	return int(c.Code[offset])<<8 | int(c.Code[offset+1])
}

// ReadUint24 decodes a big-endian 24-bit operand at offset.
func (c *Chunk) ReadUint24(offset CodeOffset) int {
	return int(c.Code[offset])<<16 | int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
}
