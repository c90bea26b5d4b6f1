package expr

import (
	"strconv"
)

// Expression is a validated token sequence. It is immutable once compiled
// and safe to share between goroutines; evaluation state lives in Evaluator.
type Expression struct {
	tokens []Token
	text   string

	// Per-token decoded data, indexed like tokens.
	consts []int64
	ops    []Operator
}

// Compile tokenizes and validates text. On failure the returned error is a
// *ParseError and no Expression is produced.
func Compile(text string) (*Expression, error) {
	tokens, canonical, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	if err := Validate(tokens); err != nil {
		return nil, err
	}

	e := &Expression{
		tokens: tokens,
		text:   canonical,
		consts: make([]int64, len(tokens)),
		ops:    make([]Operator, len(tokens)),
	}
	for i, tok := range tokens {
		switch tok.Kind {
		case TokenConstant:
			// At most 10 hex digits, so this cannot overflow.
			u, err := strconv.ParseUint(tok.Text, 16, 64)
			if err != nil {
				return nil, &ParseError{Kind: OperandTooWide, Pos: tok.Pos, Text: tok.Text, Message: err.Error()}
			}
			e.consts[i] = int64(u)
		case TokenInfix, TokenPrefix:
			e.ops[i] = operatorOf(tok)
		}
	}
	return e, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(text string) *Expression {
	e, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return e
}

// Text returns the canonical text: whitespace removed, unary minus markers
// stripped. Compiling it yields an equivalent Expression.
func (e *Expression) Text() string {
	return e.text
}

// String implements fmt.Stringer.
func (e *Expression) String() string {
	return e.text
}

// Tokens returns a copy of the token sequence.
func (e *Expression) Tokens() []Token {
	return append([]Token(nil), e.tokens...)
}

// UsesVariable reports whether the expression references t.
func (e *Expression) UsesVariable() bool {
	for _, tok := range e.tokens {
		if tok.Kind == TokenVariable {
			return true
		}
	}
	return false
}
