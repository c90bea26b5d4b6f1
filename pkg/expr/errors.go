package expr

import (
	"fmt"

	"github.com/lemonberrylabs/i64-plotter/pkg/types"
)

// ParseErrorKind classifies a parse-time failure.
type ParseErrorKind int

const (
	IllegalCharacter ParseErrorKind = iota
	StructurallyInvalid
	OperandTooWide
)

func (k ParseErrorKind) String() string {
	switch k {
	case IllegalCharacter:
		return types.TagIllegalCharacter
	case StructurallyInvalid:
		return types.TagStructurallyInvalid
	case OperandTooWide:
		return types.TagOperandTooWide
	default:
		return "Unknown"
	}
}

// ParseError is returned when expression text cannot be tokenized or fails
// structural validation.
type ParseError struct {
	Kind    ParseErrorKind
	Pos     int    // byte offset of the offending token, -1 if not positional
	Text    string // offending token or character
	Message string
}

func (e *ParseError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("invalid expression: %s", e.Message)
	}
	return fmt.Sprintf("invalid expression at position %d: %s", e.Pos, e.Message)
}

// PlotError implements types.Tagged.
func (e *ParseError) PlotError() *types.PlotError {
	extra := map[string]interface{}{"kind": e.Kind.String()}
	if e.Pos >= 0 {
		extra["position"] = e.Pos
	}
	return &types.PlotError{
		Message: e.Error(),
		Tags:    []string{types.TagParseError, e.Kind.String()},
		Extra:   extra,
		Err:     e,
	}
}

func structural(pos int, text, format string, args ...interface{}) *ParseError {
	return &ParseError{Kind: StructurallyInvalid, Pos: pos, Text: text, Message: fmt.Sprintf(format, args...)}
}

// FaultKind classifies an arithmetic fault detected during evaluation.
type FaultKind int

const (
	DivisionFault FaultKind = iota
	ShiftFault
)

func (k FaultKind) String() string {
	switch k {
	case DivisionFault:
		return types.TagDivisionFault
	case ShiftFault:
		return types.TagShiftFault
	default:
		return "Unknown"
	}
}

// FaultError reports a division or modulo by zero, or a shift count outside
// [0, 63], at a given parameter value.
type FaultError struct {
	Kind      FaultKind
	Parameter int64
	Op        Operator
	Operand   int64 // the offending right-hand operand
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("evaluation failed at parameter=%d: %s with right operand %d", e.Parameter, e.Op, e.Operand)
}

// PlotError implements types.Tagged.
func (e *FaultError) PlotError() *types.PlotError {
	return &types.PlotError{
		Message: e.Error(),
		Tags:    []string{types.TagEvaluationError, e.Kind.String()},
		Extra: map[string]interface{}{
			"kind":      e.Kind.String(),
			"parameter": e.Parameter,
		},
		Err: e,
	}
}

var (
	_ types.Tagged = (*ParseError)(nil)
	_ types.Tagged = (*FaultError)(nil)
)
