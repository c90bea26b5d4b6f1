package expr

// Shift counts outside [MinShift, MaxShift] are undefined and fault.
const (
	MinShift = 0
	MaxShift = 63
)

// Evaluator evaluates compiled expressions with an operand and an operator
// stack. The stacks are transient: they are empty whenever Eval returns.
// An Evaluator is not safe for concurrent use; give each goroutine its own.
type Evaluator struct {
	operands  []int64
	operators []Operator
}

// NewEvaluator creates an evaluator with empty stacks.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		operands:  make([]int64, 0, 16),
		operators: make([]Operator, 0, 16),
	}
}

// Eval evaluates e with the variable bound to t. Arithmetic faults are
// returned as *FaultError with Parameter set to t.
func (ev *Evaluator) Eval(e *Expression, t int64) (int64, error) {
	defer ev.reset()

	for i, tok := range e.tokens {
		switch tok.Kind {
		case TokenConstant:
			ev.operands = append(ev.operands, e.consts[i])
		case TokenVariable:
			ev.operands = append(ev.operands, t)
		case TokenGroupOpen:
			ev.operators = append(ev.operators, OpOpenParen)
		case TokenGroupClose:
			for {
				top, ok := ev.top()
				if !ok {
					return 0, structural(tok.Pos, tok.Text, "close group without matching open group")
				}
				if top == OpOpenParen {
					ev.operators = ev.operators[:len(ev.operators)-1]
					break
				}
				if err := ev.step(t); err != nil {
					return 0, err
				}
			}
		default:
			op := e.ops[i]
			for ev.resolves(op) {
				if err := ev.step(t); err != nil {
					return 0, err
				}
			}
			ev.operators = append(ev.operators, op)
		}
	}

	for len(ev.operators) > 0 {
		if err := ev.step(t); err != nil {
			return 0, err
		}
	}

	if len(ev.operands) != 1 {
		return 0, structural(-1, "", "%d values left after evaluation", len(ev.operands))
	}
	return ev.operands[0], nil
}

// resolves reports whether the operator on top of the stack must be applied
// before incoming is pushed.
func (ev *Evaluator) resolves(incoming Operator) bool {
	top, ok := ev.top()
	if !ok || top == OpOpenParen {
		return false
	}
	return top.Rank() <= incoming.Rank()
}

// step pops and applies the operator on top of the stack.
func (ev *Evaluator) step(t int64) error {
	top, _ := ev.top()
	switch {
	case top.IsUnary():
		return ev.applyUnary()
	case top.IsBinary():
		return ev.applyBinary(t)
	default:
		return structural(-1, "(", "open group without matching close group")
	}
}

// applyUnary replaces the top operand with its complement or negation.
func (ev *Evaluator) applyUnary() error {
	n := len(ev.operands)
	if n < 1 {
		return structural(-1, "", "prefix operator without operand")
	}
	op := ev.popOperator()
	switch op {
	case OpNot:
		ev.operands[n-1] = ^ev.operands[n-1]
	case OpNeg:
		ev.operands[n-1] = -ev.operands[n-1]
	}
	return nil
}

// applyBinary replaces the top two operands v2, v1 with v2 op v1.
func (ev *Evaluator) applyBinary(t int64) error {
	n := len(ev.operands)
	if n < 2 {
		return structural(-1, "", "infix operator without two operands")
	}
	op := ev.popOperator()
	v2, v1 := ev.operands[n-2], ev.operands[n-1]
	ev.operands = ev.operands[:n-2]

	r, err := apply(op, v2, v1, t)
	if err != nil {
		return err
	}
	ev.operands = append(ev.operands, r)
	return nil
}

// apply computes a op b with wraparound 64-bit semantics.
func apply(op Operator, a, b, t int64) (int64, error) {
	switch op {
	case OpMul:
		return a * b, nil
	case OpDiv:
		if b == 0 {
			return 0, &FaultError{Kind: DivisionFault, Parameter: t, Op: op, Operand: b}
		}
		return a / b, nil
	case OpMod:
		if b == 0 {
			return 0, &FaultError{Kind: DivisionFault, Parameter: t, Op: op, Operand: b}
		}
		return a % b, nil
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpShl:
		if b < MinShift || b > MaxShift {
			return 0, &FaultError{Kind: ShiftFault, Parameter: t, Op: op, Operand: b}
		}
		return a << uint(b), nil
	case OpShr:
		if b < MinShift || b > MaxShift {
			return 0, &FaultError{Kind: ShiftFault, Parameter: t, Op: op, Operand: b}
		}
		return a >> uint(b), nil
	case OpAnd:
		return a & b, nil
	case OpXor:
		return a ^ b, nil
	case OpOr:
		return a | b, nil
	}
	return 0, structural(-1, op.String(), "unknown operator %q", op.String())
}

func (ev *Evaluator) top() (Operator, bool) {
	if len(ev.operators) == 0 {
		return 0, false
	}
	return ev.operators[len(ev.operators)-1], true
}

func (ev *Evaluator) popOperator() Operator {
	op := ev.operators[len(ev.operators)-1]
	ev.operators = ev.operators[:len(ev.operators)-1]
	return op
}

func (ev *Evaluator) reset() {
	ev.operands = ev.operands[:0]
	ev.operators = ev.operators[:0]
}

// Eval evaluates e at t with a fresh Evaluator. Use an
// Evaluator directly when evaluating many parameter values.
func Eval(e *Expression, t int64) (int64, error) {
	return NewEvaluator().Eval(e, t)
}
