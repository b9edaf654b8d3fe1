package compiler

import (
	"github.com/chazu/kuro/vm"
)

// ---------------------------------------------------------------------------
// Declarations and statements
// ---------------------------------------------------------------------------

func (c *Compiler) declaration() {
	p := c.parser
	switch {
	case p.check(TokenDef):
		c.defDeclaration()
	case p.match(TokenLet):
		c.varDeclaration()
		c.expectEndOfLine()
	case p.check(TokenClass):
		c.classDeclaration()
	case p.check(TokenEOL):
	case p.check(TokenIndentation):
		p.errorAtCurrent(Syntax, "Unexpected indentation.")
		p.advance()
	default:
		c.statement()
	}

	if p.panicMode {
		p.synchronize()
	}
}

func (c *Compiler) statement() {
	p := c.parser
	switch {
	case p.check(TokenEOL):
	case p.match(TokenPrint):
		c.expression()
		c.emitOp(vm.OpPrint)
		c.expectEndOfLine()
	case p.check(TokenIf):
		c.ifStatement()
	case p.check(TokenWhile):
		c.whileStatement()
	case p.check(TokenFor):
		c.forStatement()
	case p.match(TokenReturn):
		c.returnStatement()
	default:
		c.expression()
		c.emitOp(vm.OpPop)
		c.expectEndOfLine()
	}
}

// expectEndOfLine reports trailing tokens after a simple statement. The
// end of line itself is left for the enclosing block to consume.
func (c *Compiler) expectEndOfLine() {
	if !c.parser.check(TokenEOL) && !c.parser.check(TokenEOF) {
		c.parser.errorAtCurrent(Syntax, "Expected end of line.")
	}
}

// ---------------------------------------------------------------------------
// Blocks
// ---------------------------------------------------------------------------

// block compiles an indented block belonging to a statement on a line of
// the given width. The first line of the block fixes its width, which must
// exceed the enclosing width; the block ends at the first line with any
// other width. Each line is compiled with line.
func (c *Compiler) block(width int, line func()) {
	p := c.parser
	if !p.match(TokenEOL) {
		p.errorAtCurrent(Syntax, "Unsupported single-line block.")
		return
	}
	if !p.check(TokenIndentation) {
		p.errorAtCurrent(Syntax, "Expected indentation for block.")
		return
	}

	blockWidth := p.current.Width()
	if blockWidth <= width {
		p.errorAtCurrent(Syntax, "Unexpected indentation level for new block.")
		return
	}

	for p.check(TokenIndentation) && p.current.Width() == blockWidth {
		p.advance()
		line()
		if p.check(TokenEOL) {
			p.advance()
		}
	}
}

// ---------------------------------------------------------------------------
// Variables and functions
// ---------------------------------------------------------------------------

// varDeclaration compiles "name [= initializer]"; the let keyword has
// already been consumed.
func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expected variable name.")
	if c.parser.match(TokenEqual) {
		c.expression()
	} else {
		c.emitOp(vm.OpNone)
	}
	c.defineVariable(global)
}

func (c *Compiler) defDeclaration() {
	width := c.blockWidth()
	c.parser.advance()

	global := c.parseVariable("Expected function name.")
	// A function may refer to itself.
	c.markInitialized()
	c.function(KindFunction, width)
	c.defineVariable(global)
}

// function compiles a parameter list and body into a new function and
// emits the closure that creates it at runtime. The function is named after
// the previous token.
func (c *Compiler) function(kind FunctionKind, width int) {
	p := c.parser
	c.pushUnit(kind)
	c.beginScope()

	p.consume(TokenLeftParen, "Expected '(' after function name.")
	if !p.check(TokenRightParen) {
		for {
			c.current.function.Arity++
			if c.current.function.Arity > MaxParameters {
				p.errorAtCurrent(Binding, "Too many function parameters.")
			}
			param := c.parseVariable("Expected parameter name.")
			c.defineVariable(param)
			if !p.match(TokenComma) {
				break
			}
		}
	}
	p.consume(TokenRightParen, "Expected ')' after parameters.")
	p.consume(TokenColon, "Expected ':' after function signature.")
	c.block(width, c.declaration)

	fn, u := c.popUnit()
	c.emitConstantOp(vm.OpClosure, c.makeConstant(vm.ObjectValue(fn)))
	for _, up := range u.upvalues {
		if up.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(byte(up.index))
	}
}

func (c *Compiler) returnStatement() {
	p := c.parser
	if p.check(TokenEOL) || p.check(TokenEOF) {
		c.emitReturn()
		return
	}
	if c.current.kind == KindInitializer {
		p.error(Binding, "Can not return a value from an initializer.")
	}
	c.expression()
	c.emitOp(vm.OpReturn)
	c.expectEndOfLine()
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

func (c *Compiler) classDeclaration() {
	p := c.parser
	width := c.blockWidth()
	p.advance()

	p.consume(TokenIdentifier, "Expected class name.")
	className := p.previous
	nameConst := c.identifierConstant(className.Lexeme)
	c.declareVariable()

	c.emitConstantOp(vm.OpClass, nameConst)
	c.defineVariable(nameConst)

	c.class = &classScope{enclosing: c.class}
	defer func() { c.class = c.class.enclosing }()

	// The class stays on the stack while its methods are bound.
	c.namedVariable(className, false)
	p.consume(TokenColon, "Expected ':' after class name.")
	c.block(width, c.classMember)
	c.emitOp(vm.OpPop)
}

func (c *Compiler) classMember() {
	p := c.parser
	switch {
	case p.check(TokenDef):
		c.method()
	case p.check(TokenEOL):
	default:
		p.errorAtCurrent(Syntax, "Expected method definition in class body.")
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (c *Compiler) method() {
	p := c.parser
	width := c.blockWidth()
	p.advance()

	p.consume(TokenIdentifier, "Expected method name.")
	nameConst := c.identifierConstant(p.previous.Lexeme)
	kind := KindMethod
	if p.previous.Lexeme == "init" {
		kind = KindInitializer
	}
	c.function(kind, width)
	c.emitConstantOp(vm.OpMethod, nameConst)
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// ifStatement compiles an if and its optional else. An else belongs to
// this if only when it starts a line of the same width as the if.
func (c *Compiler) ifStatement() {
	p := c.parser
	width := c.blockWidth()
	p.advance()

	c.expression()
	p.consume(TokenColon, "Expected ':' after condition.")

	thenJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)

	c.beginScope()
	c.block(width, c.declaration)
	c.endScope()

	elseJump := c.emitJump(vm.OpJump)
	c.patchJump(thenJump)
	c.emitOp(vm.OpPop)

	hasElse := false
	if width == 0 {
		hasElse = p.match(TokenElse)
	} else if p.check(TokenIndentation) && p.current.Width() == width && p.peek().Type == TokenElse {
		// Only consume the indentation once we know an else follows;
		// otherwise it starts the next line of the enclosing block.
		p.advance()
		p.advance()
		hasElse = true
	}
	if hasElse {
		p.consume(TokenColon, "Expected ':' after else.")
		c.beginScope()
		c.block(width, c.declaration)
		c.endScope()
	}

	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	p := c.parser
	width := c.blockWidth()
	p.advance()

	loopStart := c.chunk().Len()
	c.expression()
	p.consume(TokenColon, "Expected ':' after condition.")

	exitJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)

	c.beginScope()
	c.block(width, c.declaration)
	c.endScope()

	c.emitLoop(loopStart)
	c.patchJump(exitJump)
	c.emitOp(vm.OpPop)
}

// forStatement compiles "for name = init, condition[, step]:". The loop
// variable lives in a scope around the whole loop; the body gets its own.
func (c *Compiler) forStatement() {
	p := c.parser
	width := c.blockWidth()
	p.advance()

	c.beginScope()
	c.varDeclaration()
	p.consume(TokenComma, "Expected ',' after loop initializer.")

	loopStart := c.chunk().Len()
	c.expression()
	exitJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)

	if p.match(TokenComma) {
		// Jump over the step to the body; the body loops back to the step,
		// which loops back to the condition.
		bodyJump := c.emitJump(vm.OpJump)
		stepStart := c.chunk().Len()
		c.expression()
		c.emitOp(vm.OpPop)
		c.emitLoop(loopStart)
		loopStart = stepStart
		c.patchJump(bodyJump)
	}

	p.consume(TokenColon, "Expected ':' after loop clauses.")

	c.beginScope()
	c.block(width, c.declaration)
	c.endScope()

	c.emitLoop(loopStart)
	c.patchJump(exitJump)
	c.emitOp(vm.OpPop)
	c.endScope()
}
