// Package expr implements the plotter's integer expression engine: a
// tokenizer, a structural validator and a dual-stack precedence evaluator
// operating on fixed-width signed 64-bit integers.
//
// Constants are unprefixed lowercase hexadecimal ("ff", not "0xff"). The
// single input variable is t.
package expr

// Variable is the symbol that stands for the sweep parameter.
const Variable = 't'

// MaxConstantDigits is the maximum number of hex digits in a constant.
const MaxConstantDigits = 10

// unaryMarker prefixes a minus that was rewritten to unary negation.
const unaryMarker = 'u'

// TokenKind represents the kind of a lexical token.
type TokenKind int

const (
	TokenConstant   TokenKind = iota // hex constant
	TokenVariable                    // t
	TokenInfix                       // binary operator
	TokenPrefix                      // ~ or unary minus
	TokenGroupOpen                   // (
	TokenGroupClose                  // )
)

// Token represents a single lexical token.
type Token struct {
	Kind TokenKind
	Text string // raw text; unary minus is "u-"
	Pos  int    // byte offset in source
}

// String returns a debug-friendly representation of the token kind.
func (k TokenKind) String() string {
	switch k {
	case TokenConstant:
		return "CONSTANT"
	case TokenVariable:
		return "VARIABLE"
	case TokenInfix:
		return "INFIX"
	case TokenPrefix:
		return "PREFIX"
	case TokenGroupOpen:
		return "OPEN"
	case TokenGroupClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// IsOperand reports whether the kind pushes a value.
func (k TokenKind) IsOperand() bool {
	return k == TokenConstant || k == TokenVariable
}

// Operator identifies an entry of the evaluator's operator stack.
type Operator int

const (
	OpOpenParen Operator = iota
	OpNot
	OpNeg
	OpMul
	OpDiv
	OpMod
	OpAdd
	OpSub
	OpShl
	OpShr
	OpAnd
	OpXor
	OpOr
)

// rank is the precedence of each operator; smaller binds tighter. OpenParen
// has no rank and is never resolved by precedence.
var rank = [...]int{
	OpOpenParen: -1,
	OpNot:       0,
	OpNeg:       0,
	OpMul:       1,
	OpDiv:       1,
	OpMod:       1,
	OpAdd:       2,
	OpSub:       2,
	OpShl:       3,
	OpShr:       3,
	OpAnd:       4,
	OpXor:       5,
	OpOr:        6,
}

// Rank returns the precedence rank of op. Smaller binds tighter.
func (op Operator) Rank() int {
	return rank[op]
}

// IsUnary reports whether op is a prefix operator.
func (op Operator) IsUnary() bool {
	return op == OpNot || op == OpNeg
}

// IsBinary reports whether op is an infix operator.
func (op Operator) IsBinary() bool {
	return op >= OpMul
}

// String returns the source spelling of op.
func (op Operator) String() string {
	switch op {
	case OpOpenParen:
		return "("
	case OpNot:
		return "~"
	case OpNeg:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpShl:
		return "<<"
	case OpShr:
		return ">>"
	case OpAnd:
		return "&"
	case OpXor:
		return "^"
	case OpOr:
		return "|"
	default:
		return "?"
	}
}

// operatorOf maps an operator token to its Operator.
func operatorOf(tok Token) Operator {
	switch tok.Text[0] {
	case '~':
		return OpNot
	case unaryMarker:
		return OpNeg
	case '*':
		return OpMul
	case '/':
		return OpDiv
	case '%':
		return OpMod
	case '+':
		return OpAdd
	case '-':
		return OpSub
	case '<':
		return OpShl
	case '>':
		return OpShr
	case '&':
		return OpAnd
	case '^':
		return OpXor
	}
	return OpOr
}
