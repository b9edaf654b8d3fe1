package compiler

// Precedence is the binding power of an infix operator, lowest first.
type Precedence int

const (
	PrecNone       Precedence = iota
	PrecAssignment            // =
	PrecOr                    // or
	PrecAnd                   // and
	PrecEquality              // == !=
	PrecComparison            // < > <= >=
	PrecTerm                  // + -
	PrecFactor                // * /
	PrecUnary                 // ! - not
	PrecCall                  // . ()
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

// parseRule says how a token behaves at the start of an expression
// (prefix) and after a complete operand (infix).
type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

var rules [tokenTypeCount]parseRule

// The table is filled in init because the parse functions refer back to
// it through getRule.
func init() {
	rules = [tokenTypeCount]parseRule{
		TokenLeftParen:    {(*Compiler).grouping, (*Compiler).call, PrecCall},
		TokenDot:          {nil, (*Compiler).dot, PrecCall},
		TokenMinus:        {(*Compiler).unary, (*Compiler).binary, PrecTerm},
		TokenPlus:         {nil, (*Compiler).binary, PrecTerm},
		TokenSolidus:      {nil, (*Compiler).binary, PrecFactor},
		TokenAsterisk:     {nil, (*Compiler).binary, PrecFactor},
		TokenBang:         {(*Compiler).unary, nil, PrecNone},
		TokenNot:          {(*Compiler).unary, nil, PrecNone},
		TokenBangEqual:    {nil, (*Compiler).binary, PrecEquality},
		TokenEqualEqual:   {nil, (*Compiler).binary, PrecEquality},
		TokenGreater:      {nil, (*Compiler).binary, PrecComparison},
		TokenGreaterEqual: {nil, (*Compiler).binary, PrecComparison},
		TokenLess:         {nil, (*Compiler).binary, PrecComparison},
		TokenLessEqual:    {nil, (*Compiler).binary, PrecComparison},
		TokenIdentifier:   {(*Compiler).variable, nil, PrecNone},
		TokenString:       {(*Compiler).stringLiteral, nil, PrecNone},
		TokenNumber:       {(*Compiler).number, nil, PrecNone},
		TokenAnd:          {nil, (*Compiler).and, PrecAnd},
		TokenOr:           {nil, (*Compiler).or, PrecOr},
		TokenFalse:        {(*Compiler).literal, nil, PrecNone},
		TokenNone:         {(*Compiler).literal, nil, PrecNone},
		TokenTrue:         {(*Compiler).literal, nil, PrecNone},
		TokenSelf:         {(*Compiler).self, nil, PrecNone},
	}
}

func getRule(t TokenType) *parseRule {
	return &rules[t]
}
