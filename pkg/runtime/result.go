package runtime

import (
	"fmt"

	"github.com/lemonberrylabs/i64-plotter/pkg/expr"
	"github.com/lemonberrylabs/i64-plotter/pkg/types"
)

// Parameter range defaults.
const (
	DefaultFrom int64 = -2048
	DefaultTo   int64 = 2048

	// MaxSweepPoints bounds the number of parameter values in one sweep.
	MaxSweepPoints = 1 << 20
)

// Range is an inclusive range of parameter values.
type Range struct {
	From int64 `json:"from" yaml:"from"`
	To   int64 `json:"to" yaml:"to"`
}

// DefaultRange returns the range -2048..2048.
func DefaultRange() Range {
	return Range{From: DefaultFrom, To: DefaultTo}
}

// Len returns the number of parameter values in r. It is only meaningful for
// a range that passes Validate.
func (r Range) Len() int {
	return int(r.To-r.From) + 1
}

// Validate checks that From <= To and that the range holds at most
// MaxSweepPoints values.
func (r Range) Validate() error {
	if r.From > r.To {
		return types.NewInvalidArgumentError(fmt.Sprintf("range from %d is greater than to %d", r.From, r.To))
	}
	if uint64(r.To-r.From) >= MaxSweepPoints {
		return types.NewInvalidArgumentError(fmt.Sprintf("range %d..%d exceeds maximum of %d points", r.From, r.To, MaxSweepPoints))
	}
	return nil
}

// Axis names one of the two expressions of a plot.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
)

// Fault records an arithmetic fault of one axis during a sweep.
type Fault struct {
	Axis      Axis             `json:"axis"`
	Kind      expr.FaultKind   `json:"-"`
	Parameter int64            `json:"parameter"`
	Err       *expr.FaultError `json:"-"`
}

// Result holds the values of a sweep and the faults that stopped it.
type Result struct {
	Range Range
	X     *expr.Values
	Y     *expr.Values

	// Faults lists the faults at the parameter that stopped the sweep. It has
	// one entry, or two when both axes faulted at the same parameter.
	Faults []Fault
}

// Len returns the number of evaluated parameter values, equal for both axes.
func (r *Result) Len() int {
	return r.X.Len()
}

// Failed reports whether the sweep stopped on a fault.
func (r *Result) Failed() bool {
	return len(r.Faults) > 0
}

// DivisionFault returns the parameter of the first division or modulo by
// zero, if any.
func (r *Result) DivisionFault() (int64, bool) {
	return r.faultOf(expr.DivisionFault)
}

// ShiftFault returns the parameter of the first out-of-range shift, if any.
func (r *Result) ShiftFault() (int64, bool) {
	return r.faultOf(expr.ShiftFault)
}

func (r *Result) faultOf(kind expr.FaultKind) (int64, bool) {
	for _, f := range r.Faults {
		if f.Kind == kind {
			return f.Parameter, true
		}
	}
	return 0, false
}

// Err returns the first fault as an error, or nil.
func (r *Result) Err() error {
	if len(r.Faults) == 0 {
		return nil
	}
	f := r.Faults[0]
	return fmt.Errorf("%s expression: %w", f.Axis, f.Err)
}

// Parameter returns the parameter value at index i of the buffers.
func (r *Result) Parameter(i int) int64 {
	return r.Range.From + int64(i)
}
