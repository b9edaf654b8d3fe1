package server

import (
	"sort"

	"github.com/chazu/kuro/vm"
)

// SymbolKind classifies a module-level definition.
type SymbolKind int

const (
	SymbolVariable SymbolKind = iota
	SymbolFunction
	SymbolClass
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolFunction:
		return "function"
	case SymbolClass:
		return "class"
	default:
		return "variable"
	}
}

// Symbol is a global defined by a module, recovered from its bytecode.
type Symbol struct {
	Name    string
	Kind    SymbolKind
	Arity   int      // functions only
	Methods []string // classes only
	Listing string   // disassembly of the function body
}

// moduleSymbols walks the top-level chunk of a compiled module and
// returns its global definitions sorted by name. The result holds no
// heap references.
func moduleSymbols(fn *vm.Function) []Symbol {
	if fn == nil {
		return nil
	}
	c := &fn.Chunk

	byName := make(map[string]*Symbol)
	var lastFn *vm.Function
	var lastClass *Symbol
	var prev vm.Opcode

	for offset := vm.CodeOffset(0); int(offset) < len(c.Code); {
		op := vm.Opcode(c.Code[offset])
		info, ok := op.Info()
		if !ok {
			break
		}
		operand := offset + 1
		next := operand + vm.CodeOffset(info.OperandBytes())
		if int(next) > len(c.Code) {
			break
		}

		idx := -1
		switch info.Operand {
		case vm.OperandConst:
			idx = int(c.Code[operand])
		case vm.OperandConstLong:
			idx = c.ReadUint24(operand)
		}

		switch op {
		case vm.OpClosure, vm.OpClosureLong:
			lastFn = constantFunction(c, idx)
			if lastFn != nil {
				next += vm.CodeOffset(2 * lastFn.UpvalueCount)
			}
		case vm.OpMethod, vm.OpMethodLong:
			if lastClass != nil {
				if name := constantName(c, idx); name != "" {
					lastClass.Methods = append(lastClass.Methods, name)
				}
			}
		case vm.OpDefineGlobal, vm.OpDefineGlobalLong:
			name := constantName(c, idx)
			if name == "" {
				break
			}
			sym := &Symbol{Name: name}
			switch prev {
			case vm.OpClosure, vm.OpClosureLong:
				sym.Kind = SymbolFunction
				if lastFn != nil {
					sym.Arity = lastFn.Arity
					sym.Listing = vm.Disassemble(lastFn)
				}
			case vm.OpClass, vm.OpClassLong:
				sym.Kind = SymbolClass
				lastClass = sym
			}
			byName[name] = sym
		}

		prev = op
		offset = next
	}

	out := make([]Symbol, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func constantName(c *vm.Chunk, idx int) string {
	if idx < 0 || idx >= len(c.Constants) {
		return ""
	}
	s := c.Constants[idx].AsString()
	if s == nil {
		return ""
	}
	return s.Chars
}

func constantFunction(c *vm.Chunk, idx int) *vm.Function {
	if idx < 0 || idx >= len(c.Constants) {
		return nil
	}
	return c.Constants[idx].AsFunction()
}
