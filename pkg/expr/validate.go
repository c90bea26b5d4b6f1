package expr

// class is the coarse token category used by the adjacency check.
type class byte

const (
	classOperand class = 'x'
	classInfix   class = 'i'
	classPrefix  class = 'p'
	classOpen    class = '('
	classClose   class = ')'
)

func classOf(k TokenKind) class {
	switch k {
	case TokenConstant, TokenVariable:
		return classOperand
	case TokenInfix:
		return classInfix
	case TokenPrefix:
		return classPrefix
	case TokenGroupOpen:
		return classOpen
	default:
		return classClose
	}
}

// forbidden lists the adjacent token pairs that can never occur in a valid
// expression.
var forbidden = map[[2]class]string{
	{classOperand, classOperand}: "two adjacent operands",
	{classInfix, classInfix}:     "two adjacent infix operators",
	{classOpen, classClose}:      "empty group",
	{classClose, classOpen}:      "implicit multiplication is not supported",
	{classOperand, classOpen}:    "implicit multiplication is not supported",
	{classClose, classOperand}:   "implicit multiplication is not supported",
	{classInfix, classClose}:     "infix operator without right operand",
	{classOpen, classInfix}:      "infix operator without left operand",
	{classPrefix, classPrefix}:   "two adjacent prefix operators",
	{classPrefix, classInfix}:    "prefix operator followed by infix operator",
	{classPrefix, classClose}:    "prefix operator without operand",
	{classOperand, classPrefix}:  "prefix operator after operand",
	{classClose, classPrefix}:    "prefix operator after group",
}

// Validate checks the structure of a token sequence: operand and infix
// operator counts, group balance and nesting, and forbidden adjacent pairs.
func Validate(tokens []Token) error {
	if len(tokens) == 0 {
		return structural(-1, "", "no expression")
	}

	var operands, infix, depth int
	for i, tok := range tokens {
		switch tok.Kind {
		case TokenConstant, TokenVariable:
			operands++
		case TokenInfix:
			infix++
		case TokenGroupOpen:
			depth++
		case TokenGroupClose:
			depth--
			if depth < 0 {
				return structural(tok.Pos, tok.Text, "close group without matching open group")
			}
		}

		if i+1 < len(tokens) {
			next := tokens[i+1]
			if msg, bad := forbidden[[2]class{classOf(tok.Kind), classOf(next.Kind)}]; bad {
				return structural(next.Pos, tok.Text+next.Text, "%s", msg)
			}
		}
	}

	if operands != infix+1 {
		return structural(-1, "", "%d operands for %d infix operators", operands, infix)
	}
	if depth != 0 {
		return structural(-1, "", "%d unclosed groups", depth)
	}
	return nil
}
