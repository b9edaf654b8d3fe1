package vm

import (
	"fmt"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble returns a listing of fn followed by every function nested in
// its constant pool, depth first.
func Disassemble(fn *Function) string {
	var sb strings.Builder
	DisassembleFunction(&sb, fn)
	return sb.String()
}

// DisassembleFunction writes fn and its nested functions to w.
func DisassembleFunction(w io.Writer, fn *Function) {
	DisassembleChunk(w, &fn.Chunk, fn.DisplayName())
	for _, c := range fn.Chunk.Constants {
		if nested := c.AsFunction(); nested != nil {
			fmt.Fprintln(w)
			DisassembleFunction(w, nested)
		}
	}
}

// DisassembleChunk writes a header and every instruction in c.
func DisassembleChunk(w io.Writer, c *Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := CodeOffset(0); offset < c.Len(); {
		offset = DisassembleInstruction(w, c, offset)
	}
}

// DisassembleInstruction writes the instruction at offset and returns the
// offset of the next one.
func DisassembleInstruction(w io.Writer, c *Chunk, offset CodeOffset) CodeOffset {
	fmt.Fprintf(w, "%04d ", offset)
	line := c.LineAt(offset)
	if offset > 0 && line == c.LineAt(offset-1) {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", line)
	}

	op := Opcode(c.Code[offset])
	info, ok := op.Info()
	if !ok {
		fmt.Fprintf(w, "%s\n", op)
		return offset + 1
	}

	operand := offset + 1
	next := operand + CodeOffset(info.OperandBytes())
	if int(next) > len(c.Code) {
		fmt.Fprintf(w, "%s <truncated>\n", info.Name)
		return CodeOffset(len(c.Code))
	}

	switch info.Operand {
	case OperandNone:
		fmt.Fprintf(w, "%s\n", info.Name)
	case OperandByte:
		fmt.Fprintf(w, "%-20s %4d\n", info.Name, c.Code[operand])
	case OperandConst, OperandConstLong:
		idx := int(c.Code[operand])
		if info.Operand == OperandConstLong {
			idx = c.ReadUint24(operand)
		}
		fmt.Fprintf(w, "%-20s %4d '%s'\n", info.Name, idx, constantText(c, idx))
		if op == OpClosure || op == OpClosureLong {
			next = disassembleCaptures(w, c, idx, next)
		}
	case OperandJump:
		jump := c.ReadUint16(operand)
		fmt.Fprintf(w, "%-20s %4d -> %d\n", info.Name, offset, int(next)+jump)
	case OperandLoop:
		jump := c.ReadUint16(operand)
		fmt.Fprintf(w, "%-20s %4d -> %d\n", info.Name, offset, int(next)-jump)
	}
	return next
}

func constantText(c *Chunk, idx int) string {
	if idx < 0 || idx >= len(c.Constants) {
		return "?"
	}
	return c.Constants[idx].String()
}

func disassembleCaptures(w io.Writer, c *Chunk, idx int, offset CodeOffset) CodeOffset {
	if idx >= len(c.Constants) {
		return offset
	}
	fn := c.Constants[idx].AsFunction()
	if fn == nil {
		return offset
	}
	for i := 0; i < fn.UpvalueCount && int(offset)+1 < len(c.Code); i++ {
		kind := "upvalue"
		if c.Code[offset] == 1 {
			kind = "local"
		}
		fmt.Fprintf(w, "%04d    |                      %s %d\n", offset, kind, c.Code[offset+1])
		offset += 2
	}
	return offset
}
