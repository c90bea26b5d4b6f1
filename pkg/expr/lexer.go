package expr

import (
	"strconv"
	"strings"
)

// OperatorChars contains the characters that form operators.
const OperatorChars = "~*/%+-<>&^|"

// Lexer tokenizes plotter expression text.
type Lexer struct {
	input  string
	pos    int
	tokens []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize returns the token sequence for text together with its canonical
// form: whitespace removed and unary minus markers stripped.
func Tokenize(text string) ([]Token, string, error) {
	tokens, err := NewLexer(text).Tokenize()
	if err != nil {
		return nil, "", err
	}
	return tokens, Canonical(tokens), nil
}

// Tokenize scans the entire input and returns all tokens. Spaces are dropped,
// a minus in prefix position is rewritten to "u-", and tokens that can never
// be part of a valid expression are rejected.
func (l *Lexer) Tokenize() ([]Token, error) {
	if err := l.checkChars(); err != nil {
		return nil, err
	}

	for l.pos < len(l.input) {
		if tok, ok := l.next(); ok {
			l.tokens = append(l.tokens, tok)
		}
	}
	if len(l.tokens) == 0 {
		return nil, structural(-1, "", "no expression")
	}

	for i := 1; i < len(l.tokens); i++ {
		if l.tokens[i].Text == "-" && l.tokens[i-1].Text == "-" {
			return nil, structural(l.tokens[i].Pos, "--", "double negation is not supported")
		}
	}

	for i := range l.tokens {
		if l.tokens[i].Text != "-" {
			continue
		}
		if i == 0 || precedesUnaryMinus(l.tokens[i-1].Text[0]) {
			l.tokens[i].Text = string(unaryMarker) + "-"
			l.tokens[i].Kind = TokenPrefix
		}
	}

	for _, tok := range l.tokens {
		if len(tok.Text) > MaxConstantDigits {
			return nil, &ParseError{
				Kind:    OperandTooWide,
				Pos:     tok.Pos,
				Text:    tok.Text,
				Message: "constant " + tok.Text + " exceeds the maximum width of 10 hex digits",
			}
		}
		if tok.Text == "<" || tok.Text == ">" {
			return nil, structural(tok.Pos, tok.Text, "incomplete shift operator %q", tok.Text)
		}
	}

	return l.tokens, nil
}

// checkChars rejects any character outside the expression alphabet.
func (l *Lexer) checkChars() error {
	for i, r := range l.input {
		if r >= 0x80 || !isLegal(byte(r)) {
			return &ParseError{
				Kind:    IllegalCharacter,
				Pos:     i,
				Text:    string(r),
				Message: "illegal character " + strconv.QuoteRune(r),
			}
		}
	}
	return nil
}

// next scans one token. Spaces are consumed and reported with ok=false.
func (l *Lexer) next() (Token, bool) {
	start := l.pos
	ch := l.input[l.pos]

	switch {
	case ch == ' ':
		l.pos++
		return Token{}, false
	case isHexDigit(ch):
		for l.pos < len(l.input) && isHexDigit(l.input[l.pos]) {
			l.pos++
		}
	case (ch == '<' || ch == '>') && l.pos+1 < len(l.input) && l.input[l.pos+1] == ch:
		l.pos += 2
	default:
		l.pos++
	}

	text := l.input[start:l.pos]
	return Token{Kind: kindOf(text), Text: text, Pos: start}, true
}

// Canonical re-serializes tokens with unary markers removed.
func Canonical(tokens []Token) string {
	var sb strings.Builder
	for _, tok := range tokens {
		if tok.Kind == TokenPrefix && tok.Text[0] == unaryMarker {
			sb.WriteString(tok.Text[1:])
			continue
		}
		sb.WriteString(tok.Text)
	}
	return sb.String()
}

// kindOf derives a token's kind from its first character.
func kindOf(text string) TokenKind {
	c := text[0]
	switch {
	case c == '(':
		return TokenGroupOpen
	case c == ')':
		return TokenGroupClose
	case isHexDigit(c):
		return TokenConstant
	case c == Variable:
		return TokenVariable
	case c == '~' || c == unaryMarker:
		return TokenPrefix
	}
	return TokenInfix
}

func isHexDigit(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f')
}

func isOperatorChar(ch byte) bool {
	return strings.IndexByte(OperatorChars, ch) >= 0
}

func isLegal(ch byte) bool {
	return isHexDigit(ch) || ch == Variable || isOperatorChar(ch) || ch == '(' || ch == ')' || ch == ' '
}

// precedesUnaryMinus reports whether a minus following a token starting with
// ch is in prefix position.
func precedesUnaryMinus(ch byte) bool {
	return isOperatorChar(ch) || ch == '('
}
