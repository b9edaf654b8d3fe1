package compiler

// ---------------------------------------------------------------------------
// Lexer: tokenizer for Kuro source
// ---------------------------------------------------------------------------

// Lexer tokenizes Kuro source code. Indentation is significant: the first
// token of every non-blank line that starts with spaces or tabs is a
// TokenIndentation carrying that whitespace. Blank and comment-only lines
// produce TokenRetry and are otherwise invisible.
type Lexer struct {
	input       string
	start       int // offset of the token being scanned
	pos         int // offset of the next unread byte
	line        int // current line (1-based)
	lineStart   int // offset of the current line's first byte
	startOfLine bool
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:       input,
		line:        1,
		startOfLine: true,
	}
}

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.input)
}

// readChar consumes and returns the next byte.
func (l *Lexer) readChar() byte {
	c := l.input[l.pos]
	l.pos++
	return c
}

// peekChar returns the next byte without consuming it, or 0 at end.
func (l *Lexer) peekChar() byte {
	if l.atEnd() {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

func (l *Lexer) matchChar(expected byte) bool {
	if l.peekChar() != expected {
		return false
	}
	l.pos++
	return true
}

func (l *Lexer) newline() {
	l.line++
	l.lineStart = l.pos
	l.startOfLine = true
}

func (l *Lexer) makeToken(t TokenType) Token {
	return Token{
		Type:   t,
		Lexeme: l.input[l.start:l.pos],
		Line:   l.line,
		Column: l.start - l.lineStart + 1,
	}
}

func (l *Lexer) errorToken(msg string) Token {
	return Token{
		Type:   TokenError,
		Lexeme: msg,
		Line:   l.line,
		Column: l.start - l.lineStart + 1,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if l.startOfLine {
		l.startOfLine = false
		if tok, ok := l.readIndentation(); ok {
			return tok
		}
	}
	return l.scanToken()
}

// readIndentation handles the start of a line. It reports false when the
// line has no leading whitespace and scanning should proceed normally.
func (l *Lexer) readIndentation() (Token, bool) {
	l.start = l.pos
	for c := l.peekChar(); c == ' ' || c == '\t'; c = l.peekChar() {
		l.pos++
	}
	switch c := l.peekChar(); {
	case l.atEnd():
		return Token{}, false
	case c == '#':
		for !l.atEnd() && l.peekChar() != '\n' {
			l.pos++
		}
		if l.atEnd() {
			return Token{}, false
		}
		fallthrough
	case c == '\n', c == '\r' && l.peekNext() == '\n':
		tok := l.makeToken(TokenRetry)
		if l.readChar() == '\r' {
			l.pos++
		}
		l.newline()
		return tok, true
	}
	if l.pos == l.start {
		return Token{}, false
	}
	return l.makeToken(TokenIndentation), true
}

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() {
		switch l.peekChar() {
		case ' ', '\t', '\r':
			l.pos++
		case '#':
			for !l.atEnd() && l.peekChar() != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *Lexer) scanToken() Token {
	l.skipWhitespace()
	l.start = l.pos
	if l.atEnd() {
		return l.makeToken(TokenEOF)
	}

	c := l.readChar()
	switch {
	case isLetter(c):
		return l.readIdentifierOrKeyword()
	case isDigit(c):
		return l.readNumber(c)
	}

	switch c {
	case '\n':
		tok := l.makeToken(TokenEOL)
		l.newline()
		return tok
	case '(':
		return l.makeToken(TokenLeftParen)
	case ')':
		return l.makeToken(TokenRightParen)
	case '{':
		return l.makeToken(TokenLeftBrace)
	case '}':
		return l.makeToken(TokenRightBrace)
	case '[':
		return l.makeToken(TokenLeftSquare)
	case ']':
		return l.makeToken(TokenRightSquare)
	case ':':
		return l.makeToken(TokenColon)
	case ',':
		return l.makeToken(TokenComma)
	case '.':
		return l.makeToken(TokenDot)
	case ';':
		return l.makeToken(TokenSemicolon)
	case '-':
		return l.makeToken(TokenMinus)
	case '+':
		return l.makeToken(TokenPlus)
	case '/':
		return l.makeToken(TokenSolidus)
	case '*':
		return l.makeToken(TokenAsterisk)
	case '!':
		if l.matchChar('=') {
			return l.makeToken(TokenBangEqual)
		}
		return l.makeToken(TokenBang)
	case '=':
		if l.matchChar('=') {
			return l.makeToken(TokenEqualEqual)
		}
		return l.makeToken(TokenEqual)
	case '<':
		if l.matchChar('=') {
			return l.makeToken(TokenLessEqual)
		}
		return l.makeToken(TokenLess)
	case '>':
		if l.matchChar('=') {
			return l.makeToken(TokenGreaterEqual)
		}
		return l.makeToken(TokenGreater)
	case '"', '\'':
		return l.readString(c)
	}
	return l.errorToken("Unexpected character.")
}

// readString scans a quoted string. Escapes are kept verbatim in the
// lexeme and decoded by the compiler.
func (l *Lexer) readString(quote byte) Token {
	startLine := l.line
	for !l.atEnd() && l.peekChar() != quote {
		switch l.readChar() {
		case '\\':
			if !l.atEnd() {
				if l.readChar() == '\n' {
					l.line++
					l.lineStart = l.pos
				}
			}
		case '\n':
			l.line++
			l.lineStart = l.pos
		}
	}
	if l.atEnd() {
		tok := l.errorToken("Unterminated string.")
		tok.Line = startLine
		return tok
	}
	l.pos++ // closing quote
	tok := l.makeToken(TokenString)
	tok.Line = startLine
	return tok
}

func (l *Lexer) readNumber(first byte) Token {
	if first == '0' {
		switch l.peekChar() {
		case 'x', 'X', 'b', 'B', 'o', 'O':
			l.pos++
			for isHexDigit(l.peekChar()) {
				l.pos++
			}
			return l.makeToken(TokenNumber)
		}
	}
	for isDigit(l.peekChar()) {
		l.pos++
	}
	if l.peekChar() == '.' && isDigit(l.peekNext()) {
		l.pos++
		for isDigit(l.peekChar()) {
			l.pos++
		}
	}
	return l.makeToken(TokenNumber)
}

func (l *Lexer) readIdentifierOrKeyword() Token {
	for isLetter(l.peekChar()) || isDigit(l.peekChar()) {
		l.pos++
	}
	if t, ok := reservedWords[l.input[l.start:l.pos]]; ok {
		return l.makeToken(t)
	}
	return l.makeToken(TokenIdentifier)
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

// Tokenize returns every token in input up to and including EOF, skipping
// retry tokens.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenRetry {
			continue
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}
