package compiler

import (
	"strconv"
	"strings"

	"github.com/chazu/kuro/vm"
)

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

// parsePrecedence compiles an expression whose operators all bind at least
// as tightly as prec.
func (c *Compiler) parsePrecedence(prec Precedence) {
	p := c.parser
	p.advance()
	prefix := getRule(p.previous.Type).prefix
	if prefix == nil {
		p.error(Syntax, "Expected expression.")
		return
	}

	canAssign := prec <= PrecAssignment
	prefix(c, canAssign)

	for prec <= getRule(p.current.Type).precedence {
		p.advance()
		getRule(p.previous.Type).infix(c, canAssign)
	}

	if canAssign && p.match(TokenEqual) {
		p.error(Binding, "Invalid assignment target.")
	}
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.parser.consume(TokenRightParen, "Expected ')' after expression.")
}

func (c *Compiler) unary(canAssign bool) {
	op := c.parser.previous.Type
	c.parsePrecedence(PrecUnary)
	switch op {
	case TokenMinus:
		c.emitOp(vm.OpNegate)
	case TokenBang, TokenNot:
		c.emitOp(vm.OpNot)
	}
}

// binary compiles the right operand and the operator. There are no opcodes
// for !=, >= and <=; they are the negations of ==, < and >.
func (c *Compiler) binary(canAssign bool) {
	op := c.parser.previous.Type
	c.parsePrecedence(getRule(op).precedence + 1)

	switch op {
	case TokenBangEqual:
		c.emitOp(vm.OpEqual, vm.OpNot)
	case TokenEqualEqual:
		c.emitOp(vm.OpEqual)
	case TokenGreater:
		c.emitOp(vm.OpGreater)
	case TokenGreaterEqual:
		c.emitOp(vm.OpLess, vm.OpNot)
	case TokenLess:
		c.emitOp(vm.OpLess)
	case TokenLessEqual:
		c.emitOp(vm.OpGreater, vm.OpNot)
	case TokenPlus:
		c.emitOp(vm.OpAdd)
	case TokenMinus:
		c.emitOp(vm.OpSubtract)
	case TokenAsterisk:
		c.emitOp(vm.OpMultiply)
	case TokenSolidus:
		c.emitOp(vm.OpDivide)
	}
}

// and leaves the left operand on the stack if it is falsey, otherwise
// replaces it with the right operand.
func (c *Compiler) and(canAssign bool) {
	end := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(end)
}

func (c *Compiler) or(canAssign bool) {
	end := c.emitJump(vm.OpJumpIfTrue)
	c.emitOp(vm.OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(end)
}

func (c *Compiler) call(canAssign bool) {
	argc := c.argumentList()
	c.emitOpByte(vm.OpCall, argc)
}

func (c *Compiler) argumentList() byte {
	argc := 0
	if !c.parser.check(TokenRightParen) {
		for {
			c.expression()
			if argc == MaxArguments {
				c.parser.error(Binding, "Too many arguments to function.")
			}
			argc++
			if !c.parser.match(TokenComma) {
				break
			}
		}
	}
	c.parser.consume(TokenRightParen, "Expected ')' after arguments.")
	if argc > MaxArguments {
		argc = MaxArguments
	}
	return byte(argc)
}

func (c *Compiler) dot(canAssign bool) {
	c.parser.consume(TokenIdentifier, "Expected property name after '.'.")
	name := c.identifierConstant(c.parser.previous.Lexeme)
	if canAssign && c.parser.match(TokenEqual) {
		c.expression()
		c.emitConstantOp(vm.OpSetProperty, name)
		return
	}
	c.emitConstantOp(vm.OpGetProperty, name)
}

func (c *Compiler) literal(canAssign bool) {
	switch c.parser.previous.Type {
	case TokenFalse:
		c.emitOp(vm.OpFalse)
	case TokenNone:
		c.emitOp(vm.OpNone)
	case TokenTrue:
		c.emitOp(vm.OpTrue)
	}
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.parser.previous, canAssign)
}

func (c *Compiler) self(canAssign bool) {
	if c.class == nil {
		c.parser.error(Binding, "Can not use 'self' outside of a class.")
		return
	}
	c.namedVariable(syntheticToken("self"), false)
}

// number compiles an integer or float literal. 0x, 0b and 0o prefixes
// select the base; a decimal literal containing '.' is a float.
func (c *Compiler) number(canAssign bool) {
	text := c.parser.previous.Lexeme
	base := 10
	digits := text
	if len(text) > 1 && text[0] == '0' {
		switch text[1] {
		case 'x', 'X':
			base, digits = 16, text[2:]
		case 'b', 'B':
			base, digits = 2, text[2:]
		case 'o', 'O':
			base, digits = 8, text[2:]
		}
	}

	if base == 10 && strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			c.parser.error(Syntax, "Invalid number literal.")
			return
		}
		c.emitConstant(vm.FloatValue(f))
		return
	}

	n, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		c.parser.error(Syntax, "Invalid number literal.")
		return
	}
	c.emitConstant(vm.IntegerValue(n))
}

func (c *Compiler) stringLiteral(canAssign bool) {
	lexeme := c.parser.previous.Lexeme
	text := unescape(lexeme[1 : len(lexeme)-1])
	c.emitConstant(vm.ObjectValue(c.heap.CopyString(text)))
}

// unescape decodes backslash escapes. Unknown escapes are kept as written;
// a backslash before a newline joins the lines.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '0':
			sb.WriteByte(0)
		case '\\', '"', '\'':
			sb.WriteByte(s[i])
		case '\n':
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}
