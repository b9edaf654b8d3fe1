package compiler

import (
	"fmt"

	"github.com/chazu/kuro/vm"
)

// ---------------------------------------------------------------------------
// Scope and symbol resolution
// ---------------------------------------------------------------------------

// local is a stack slot in the current function. depth is -1 between the
// declaration and the end of the initializer.
type local struct {
	name     Token
	depth    int
	captured bool
}

// upvalue describes where a closure captures a variable from: a local slot
// of the enclosing function, or one of the enclosing function's upvalues.
type upvalue struct {
	index   int
	isLocal bool
}

func (c *Compiler) beginScope() {
	c.current.scopeDepth++
}

// endScope drops every local deeper than the new depth, newest first,
// closing those captured by a closure.
func (c *Compiler) endScope() {
	u := c.current
	u.scopeDepth--
	for len(u.locals) > 0 && u.locals[len(u.locals)-1].depth > u.scopeDepth {
		if u.locals[len(u.locals)-1].captured {
			c.emitOp(vm.OpCloseUpvalue)
		} else {
			c.emitOp(vm.OpPop)
		}
		u.locals = u.locals[:len(u.locals)-1]
	}
}

// identifierConstant returns the constant index of name in the current
// chunk, adding it on first use.
func (c *Compiler) identifierConstant(name string) int {
	if idx, ok := c.current.names[name]; ok {
		return idx
	}
	s := c.heap.CopyString(name)
	idx := c.makeConstant(vm.ObjectValue(s))
	c.current.names[name] = idx
	return idx
}

func (c *Compiler) addLocal(name Token) {
	u := c.current
	if len(u.locals) == MaxLocals {
		c.parser.error(Binding, "Too many local variables in function.")
		return
	}
	u.locals = append(u.locals, local{name: name, depth: -1})
}

// declareVariable registers the previous token as a local when inside a
// scope. Globals are late bound and need no declaration.
func (c *Compiler) declareVariable() {
	u := c.current
	if u.scopeDepth == 0 {
		return
	}
	name := c.parser.previous
	for i := len(u.locals) - 1; i >= 0; i-- {
		l := &u.locals[i]
		if l.depth != -1 && l.depth < u.scopeDepth {
			break
		}
		if l.name.Lexeme == name.Lexeme {
			c.parser.error(Binding, fmt.Sprintf("Duplicate definition of '%s'.", name.Lexeme))
		}
	}
	c.addLocal(name)
}

// parseVariable consumes a variable name and declares it. For globals it
// returns the name's constant index; for locals it returns 0.
func (c *Compiler) parseVariable(msg string) int {
	c.parser.consume(TokenIdentifier, msg)
	c.declareVariable()
	if c.current.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.parser.previous.Lexeme)
}

func (c *Compiler) markInitialized() {
	u := c.current
	if u.scopeDepth == 0 {
		return
	}
	u.locals[len(u.locals)-1].depth = u.scopeDepth
}

// defineVariable completes a declaration once its value is on the stack.
func (c *Compiler) defineVariable(global int) {
	if c.current.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitConstantOp(vm.OpDefineGlobal, global)
}

// resolveLocal returns the slot of name in u, or -1.
func (c *Compiler) resolveLocal(u *unit, name Token) int {
	for i := len(u.locals) - 1; i >= 0; i-- {
		l := &u.locals[i]
		if l.name.Lexeme == name.Lexeme {
			if l.depth == -1 {
				c.parser.error(Binding, "Can not initialize value recursively (are you shadowing something?)")
			}
			return i
		}
	}
	return -1
}

// addUpvalue returns the index of the (index, isLocal) capture in u,
// appending it if new.
func (c *Compiler) addUpvalue(u *unit, index int, isLocal bool) int {
	for i, up := range u.upvalues {
		if up.index == index && up.isLocal == isLocal {
			return i
		}
	}
	if len(u.upvalues) == MaxUpvalues {
		c.parser.error(Binding, "Too many closure variables in function.")
		return 0
	}
	u.upvalues = append(u.upvalues, upvalue{index: index, isLocal: isLocal})
	u.function.UpvalueCount = len(u.upvalues)
	return len(u.upvalues) - 1
}

// resolveUpvalue walks the enclosing units looking for name, threading a
// capture through every function in between. It returns -1 if name is
// not a local of any enclosing function.
func (c *Compiler) resolveUpvalue(u *unit, name Token) int {
	if u.enclosing == nil {
		return -1
	}
	if l := c.resolveLocal(u.enclosing, name); l != -1 {
		u.enclosing.locals[l].captured = true
		return c.addUpvalue(u, l, true)
	}
	if up := c.resolveUpvalue(u.enclosing, name); up != -1 {
		return c.addUpvalue(u, up, false)
	}
	return -1
}

// namedVariable emits a load of name, or a store if an assignment follows
// and the context allows one.
func (c *Compiler) namedVariable(name Token, canAssign bool) {
	var getOp, setOp vm.Opcode
	global := false

	arg := c.resolveLocal(c.current, name)
	switch {
	case arg != -1:
		getOp, setOp = vm.OpGetLocal, vm.OpSetLocal
	default:
		if arg = c.resolveUpvalue(c.current, name); arg != -1 {
			getOp, setOp = vm.OpGetUpvalue, vm.OpSetUpvalue
		} else {
			arg = c.identifierConstant(name.Lexeme)
			getOp, setOp = vm.OpGetGlobal, vm.OpSetGlobal
			global = true
		}
	}

	op := getOp
	if canAssign && c.parser.match(TokenEqual) {
		c.expression()
		op = setOp
	}
	if global {
		c.emitConstantOp(op, arg)
	} else {
		c.emitOpByte(op, byte(arg))
	}
}
