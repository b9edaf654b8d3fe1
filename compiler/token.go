package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Token types for the Kuro lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenRetry       // produced for blank and comment-only lines; never parsed
	TokenEOL         // end of a logical line
	TokenIndentation // leading whitespace of a line; width = len(Lexeme)

	// Delimiters
	TokenLeftParen   // (
	TokenRightParen  // )
	TokenLeftBrace   // {
	TokenRightBrace  // }
	TokenLeftSquare  // [
	TokenRightSquare // ]
	TokenColon       // :
	TokenComma       // ,
	TokenDot         // .
	TokenSemicolon   // ;

	// Operators
	TokenMinus        // -
	TokenPlus         // +
	TokenSolidus      // /
	TokenAsterisk     // *
	TokenBang         // !
	TokenBangEqual    // !=
	TokenEqual        // =
	TokenEqualEqual   // ==
	TokenGreater      // >
	TokenGreaterEqual // >=
	TokenLess         // <
	TokenLessEqual    // <=

	// Literals
	TokenIdentifier
	TokenString
	TokenNumber

	// Keywords
	TokenAnd
	TokenClass
	TokenDef
	TokenElse
	TokenFalse
	TokenFor
	TokenIf
	TokenIn
	TokenLet
	TokenNone
	TokenNot
	TokenOr
	TokenPrint
	TokenReturn
	TokenSelf
	TokenSuper
	TokenTrue
	TokenWhile

	tokenTypeCount
)

var tokenNames = map[TokenType]string{
	TokenEOF:          "EOF",
	TokenError:        "ERROR",
	TokenRetry:        "RETRY",
	TokenEOL:          "EOL",
	TokenIndentation:  "INDENTATION",
	TokenLeftParen:    "(",
	TokenRightParen:   ")",
	TokenLeftBrace:    "{",
	TokenRightBrace:   "}",
	TokenLeftSquare:   "[",
	TokenRightSquare:  "]",
	TokenColon:        ":",
	TokenComma:        ",",
	TokenDot:          ".",
	TokenSemicolon:    ";",
	TokenMinus:        "-",
	TokenPlus:         "+",
	TokenSolidus:      "/",
	TokenAsterisk:     "*",
	TokenBang:         "!",
	TokenBangEqual:    "!=",
	TokenEqual:        "=",
	TokenEqualEqual:   "==",
	TokenGreater:      ">",
	TokenGreaterEqual: ">=",
	TokenLess:         "<",
	TokenLessEqual:    "<=",
	TokenIdentifier:   "IDENTIFIER",
	TokenString:       "STRING",
	TokenNumber:       "NUMBER",
	TokenAnd:          "and",
	TokenClass:        "class",
	TokenDef:          "def",
	TokenElse:         "else",
	TokenFalse:        "False",
	TokenFor:          "for",
	TokenIf:           "if",
	TokenIn:           "in",
	TokenLet:          "let",
	TokenNone:         "None",
	TokenNot:          "not",
	TokenOr:           "or",
	TokenPrint:        "print",
	TokenReturn:       "return",
	TokenSelf:         "self",
	TokenSuper:        "super",
	TokenTrue:         "True",
	TokenWhile:        "while",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token. For TokenError the lexeme is the error
// message; for TokenIndentation it is the run of leading whitespace.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int // 1-based
	Column int // 1-based, in bytes
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenEOL:
		return "EOL"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Lexeme)
	case TokenIndentation:
		return fmt.Sprintf("INDENTATION(%d)", len(t.Lexeme))
	}
	if len(t.Lexeme) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Lexeme[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Lexeme)
}

// Width returns the indentation width of an indentation token.
func (t Token) Width() int {
	if t.Type != TokenIndentation {
		return 0
	}
	return len(t.Lexeme)
}

// Reserved words mapped to their token types. The literal keywords are
// accepted in both Python and lowercase spelling.
var reservedWords = map[string]TokenType{
	"and":    TokenAnd,
	"class":  TokenClass,
	"def":    TokenDef,
	"else":   TokenElse,
	"False":  TokenFalse,
	"false":  TokenFalse,
	"for":    TokenFor,
	"if":     TokenIf,
	"in":     TokenIn,
	"let":    TokenLet,
	"None":   TokenNone,
	"none":   TokenNone,
	"not":    TokenNot,
	"or":     TokenOr,
	"print":  TokenPrint,
	"return": TokenReturn,
	"self":   TokenSelf,
	"super":  TokenSuper,
	"True":   TokenTrue,
	"true":   TokenTrue,
	"while":  TokenWhile,
}

// Keywords returns every reserved word in sorted order.
func Keywords() []string {
	words := make([]string, 0, len(reservedWords))
	for w := range reservedWords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}
