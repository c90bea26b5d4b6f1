// Package plot holds the state of one parametric plot: its two current
// expressions, the most recent parse errors and the last sweep.
package plot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lemonberrylabs/i64-plotter/pkg/expr"
	"github.com/lemonberrylabs/i64-plotter/pkg/runtime"
)

// Expressions a new plot starts with.
const (
	DefaultX = "-(((t-ff)&1ff)*(~(t-ff)&1ff)>>9)*(((((((t-ff)^((t-ff)<<1f))-((t-ff)<<1f))%400)/200)*2)-1)"
	DefaultY = "-((t&1ff)*(~t&1ff)>>9)*((((((t^(t<<1f))-(t<<1f))%400)/200)*2)-1)"
)

// Plot is safe for concurrent use.
type Plot struct {
	mu sync.RWMutex

	x, y       *expr.Expression
	xErr, yErr error
	result     *runtime.Result

	workers int
	logger  zerolog.Logger
}

// Option configures a Plot.
type Option func(*Plot)

// WithWorkers sets the number of sweep workers.
func WithWorkers(n int) Option {
	return func(p *Plot) { p.workers = n }
}

// WithLogger sets the logger passed to the sweep engine.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Plot) { p.logger = l }
}

// New creates a plot with the default expressions.
func New(opts ...Option) *Plot {
	p := &Plot{
		x:      expr.MustCompile(DefaultX),
		y:      expr.MustCompile(DefaultY),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetX compiles text as the X expression. On failure the previous
// expression stays current and the error is recorded until the next
// successful SetX.
func (p *Plot) SetX(text string) (*expr.Expression, error) {
	return p.set(runtime.AxisX, text)
}

// SetY is SetX for the Y expression.
func (p *Plot) SetY(text string) (*expr.Expression, error) {
	return p.set(runtime.AxisY, text)
}

func (p *Plot) set(axis runtime.Axis, text string) (*expr.Expression, error) {
	e, err := expr.Compile(text)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("%s expression: %w", axis, err)
		if axis == runtime.AxisX {
			p.xErr = err
		} else {
			p.yErr = err
		}
		return nil, err
	}

	if axis == runtime.AxisX {
		p.x, p.xErr = e, nil
	} else {
		p.y, p.yErr = e, nil
	}
	p.result = nil
	return e, nil
}

// Evaluate sweeps r with the current expressions and keeps the result. It
// returns the pending parse error, if any, without sweeping. A fault is not
// an error; inspect the result or Fault.
func (p *Plot) Evaluate(ctx context.Context, r runtime.Range) (*runtime.Result, error) {
	p.mu.Lock()
	p.result = nil
	if err := p.parseErrLocked(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	x, y := p.x, p.y
	p.mu.Unlock()

	eng := runtime.NewEngine(x, y, runtime.WithWorkers(p.workers), runtime.WithLogger(p.logger))
	res, err := eng.Execute(ctx, r)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.result = res
	p.mu.Unlock()
	return res, nil
}

// ParseErr returns the recorded parse errors of both axes, or nil.
func (p *Plot) ParseErr() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.parseErrLocked()
}

func (p *Plot) parseErrLocked() error {
	return errors.Join(p.xErr, p.yErr)
}

// Result returns the last sweep, or nil.
func (p *Plot) Result() *runtime.Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.result
}

// Fault returns the fault that stopped the last sweep, or nil.
func (p *Plot) Fault() error {
	if res := p.Result(); res != nil {
		return res.Err()
	}
	return nil
}

// DivisionFault returns the parameter of a division fault in the last sweep.
func (p *Plot) DivisionFault() (int64, bool) {
	if res := p.Result(); res != nil {
		return res.DivisionFault()
	}
	return 0, false
}

// ShiftFault returns the parameter of a shift fault in the last sweep.
func (p *Plot) ShiftFault() (int64, bool) {
	if res := p.Result(); res != nil {
		return res.ShiftFault()
	}
	return 0, false
}

// NumValues returns the number of plottable points, 0 when the buffers
// disagree or nothing was swept yet.
func (p *Plot) NumValues() int {
	xs, ys := p.X(), p.Y()
	if xs.Len() != ys.Len() {
		return 0
	}
	return xs.Len()
}

// X returns the X values of the last sweep. It is empty before a sweep.
func (p *Plot) X() *expr.Values {
	if res := p.Result(); res != nil {
		return res.X
	}
	return &expr.Values{}
}

// Y returns the Y values of the last sweep.
func (p *Plot) Y() *expr.Values {
	if res := p.Result(); res != nil {
		return res.Y
	}
	return &expr.Values{}
}

// CanonicalX returns the canonical text of the current X expression.
func (p *Plot) CanonicalX() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.x.Text()
}

// CanonicalY returns the canonical text of the current Y expression.
func (p *Plot) CanonicalY() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.y.Text()
}

// Viewport returns the viewport of the last sweep for a w × h area.
func (p *Plot) Viewport(w, h int) Viewport {
	return NewViewport(w, h, p.X(), p.Y())
}

// Banner texts shown instead of a plot.
const (
	BannerParseError    = "Parse Error"
	BannerDivisionFault = "Floating Point Exception"
	BannerShiftFault    = "Undefined Behavior Triggered (shift)"
)

// Banner returns the banner for a plot in the given condition, or "" when
// the points can be drawn. A parse error takes precedence over a division
// fault, which takes precedence over a shift fault.
func Banner(parseErr error, divisionFault, shiftFault bool) string {
	switch {
	case parseErr != nil:
		return BannerParseError
	case divisionFault:
		return BannerDivisionFault
	case shiftFault:
		return BannerShiftFault
	}
	return ""
}

// Banner returns the banner for the current state of p.
func (p *Plot) Banner() string {
	_, div := p.DivisionFault()
	_, shift := p.ShiftFault()
	return Banner(p.ParseErr(), div, shift)
}
