package compiler

import (
	"fmt"
	"io"
)

// ---------------------------------------------------------------------------
// parser: token cursor and error recovery
// ---------------------------------------------------------------------------

// parser is the token cursor shared by every unit of one compilation. It
// keeps one token of lookahead (current) plus an optional second buffered
// token used only to recognize a same-width else.
type parser struct {
	lexer    *Lexer
	current  Token
	previous Token

	peeked    Token
	hasPeeked bool

	hadError    bool
	panicMode   bool
	diagnostics []Diagnostic

	scanTrace io.Writer
}

func newParser(source string, scanTrace io.Writer) *parser {
	return &parser{
		lexer:     NewLexer(source),
		scanTrace: scanTrace,
	}
}

// scan pulls the next non-retry token from the buffer or the lexer.
func (p *parser) scan() Token {
	if p.hasPeeked {
		p.hasPeeked = false
		return p.peeked
	}
	for {
		tok := p.lexer.NextToken()
		if p.scanTrace != nil {
			fmt.Fprintf(p.scanTrace, "%4d:%-3d %s\n", tok.Line, tok.Column, tok)
		}
		if tok.Type != TokenRetry {
			return tok
		}
	}
}

// advance shifts current into previous and reads the next token, reporting
// any scanner errors on the way.
func (p *parser) advance() {
	p.previous = p.current
	for {
		p.current = p.scan()
		if p.current.Type != TokenError {
			return
		}
		p.errorAtCurrent(Lexical, p.current.Lexeme)
	}
}

// peek returns the token after current without consuming anything.
func (p *parser) peek() Token {
	if !p.hasPeeked {
		p.peeked = p.scan()
		p.hasPeeked = true
	}
	return p.peeked
}

func (p *parser) check(t TokenType) bool {
	return p.current.Type == t
}

func (p *parser) match(t TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) consume(t TokenType, msg string) {
	if p.check(t) {
		p.advance()
		return
	}
	p.errorAtCurrent(Syntax, msg)
}

// errorAt records a diagnostic at tok. While in panic mode it does nothing.
// Limit diagnostics do not enter panic mode, so statements after them are
// still checked.
func (p *parser) errorAt(tok Token, kind DiagnosticKind, msg string) {
	if p.panicMode {
		return
	}
	if kind != Limit {
		p.panicMode = true
	}
	p.hadError = true

	d := Diagnostic{
		Line:    tok.Line,
		Column:  tok.Column,
		Kind:    kind,
		Message: msg,
	}
	switch tok.Type {
	case TokenEOF:
		d.AtEnd = true
	case TokenError:
	default:
		d.Lexeme = tok.Lexeme
	}
	p.diagnostics = append(p.diagnostics, d)
	compilerLog().Debugf("%s", d)
}

func (p *parser) error(kind DiagnosticKind, msg string) {
	p.errorAt(p.previous, kind, msg)
}

func (p *parser) errorAtCurrent(kind DiagnosticKind, msg string) {
	p.errorAt(p.current, kind, msg)
}

// synchronize leaves panic mode and skips to the next statement boundary:
// just past an end of line, or at a statement keyword.
func (p *parser) synchronize() {
	p.panicMode = false
	for p.current.Type != TokenEOF {
		if p.previous.Type == TokenEOL {
			return
		}
		switch p.current.Type {
		case TokenClass, TokenDef, TokenLet, TokenFor, TokenIf, TokenWhile, TokenPrint, TokenReturn:
			return
		}
		p.advance()
	}
}
