// Package ast defines the types of a parsed plot definition. A definition
// is produced by the parser from YAML or JSON and is ready to sweep.
package ast

import (
	"github.com/lemonberrylabs/i64-plotter/pkg/expr"
	"github.com/lemonberrylabs/i64-plotter/pkg/runtime"
)

// Plot is a parsed plot definition.
type Plot struct {
	// X and Y are the expression texts as written in the source.
	X string
	Y string

	// Description is free text shown by the dashboard.
	Description string

	// Range is the parameter range to sweep. It is the default range
	// -2048..2048 when the source does not specify one.
	Range runtime.Range

	// HasRange indicates whether the source specified a range.
	HasRange bool

	// XExpr and YExpr are the compiled expressions.
	XExpr *expr.Expression
	YExpr *expr.Expression
}

// Axis returns the compiled expression of the named axis.
func (p *Plot) Axis(a runtime.Axis) *expr.Expression {
	if a == runtime.AxisY {
		return p.YExpr
	}
	return p.XExpr
}
