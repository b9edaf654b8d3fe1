package compiler

import (
	"github.com/chazu/kuro/vm"
)

// ---------------------------------------------------------------------------
// Chunk emission
// ---------------------------------------------------------------------------

func (c *Compiler) chunk() *vm.Chunk {
	return &c.current.function.Chunk
}

// emitByte appends b, attributed to the line of the last consumed token.
func (c *Compiler) emitByte(b byte) {
	c.chunk().Write(b, c.parser.previous.Line)
}

func (c *Compiler) emitOp(ops ...vm.Opcode) {
	for _, op := range ops {
		c.emitByte(byte(op))
	}
}

func (c *Compiler) emitOpByte(op vm.Opcode, b byte) {
	c.emitByte(byte(op))
	c.emitByte(b)
}

func (c *Compiler) emitReturn() {
	if c.current.kind == KindInitializer {
		c.emitOpByte(vm.OpGetLocal, 0)
	} else {
		c.emitOp(vm.OpNone)
	}
	c.emitOp(vm.OpReturn)
}

// makeConstant adds v to the current chunk's pool.
func (c *Compiler) makeConstant(v vm.Value) int {
	idx := c.chunk().AddConstant(v)
	if idx >= vm.LongOperandLimit {
		c.parser.error(Limit, "Too many constants in one chunk.")
		return 0
	}
	return idx
}

// emitConstantOp emits op with a constant index operand, switching to the
// long form when idx does not fit in a byte. The choice is made per
// instruction, since a chunk's pool can cross the threshold mid-function.
func (c *Compiler) emitConstantOp(op vm.Opcode, idx int) {
	if idx < vm.ShortOperandLimit {
		c.emitOpByte(op, byte(idx))
		return
	}
	long, ok := op.Long()
	if !ok {
		panic("compiler: " + op.String() + " has no long form")
	}
	c.emitOp(long)
	c.emitByte(byte(idx >> 16))
	c.emitByte(byte(idx >> 8))
	c.emitByte(byte(idx))
}

func (c *Compiler) emitConstant(v vm.Value) {
	c.emitConstantOp(vm.OpConstant, c.makeConstant(v))
}

// emitJump emits a forward jump with a placeholder operand and returns the
// operand's offset for patchJump.
func (c *Compiler) emitJump(op vm.Opcode) vm.CodeOffset {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return c.chunk().Len() - 2
}

// patchJump points the jump whose operand is at offset to the next
// instruction to be emitted.
func (c *Compiler) patchJump(offset vm.CodeOffset) {
	jump := int(c.chunk().Len() - offset - 2)
	if jump > vm.MaxJump {
		c.parser.error(Limit, "Jump offset too large.")
		return
	}
	code := c.chunk().Code
	code[offset] = byte(jump >> 8)
	code[offset+1] = byte(jump)
}

// emitLoop emits a backward jump to loopStart.
func (c *Compiler) emitLoop(loopStart vm.CodeOffset) {
	c.emitOp(vm.OpLoop)
	offset := int(c.chunk().Len() - loopStart + 2)
	if offset > vm.MaxJump {
		c.parser.error(Limit, "Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}
