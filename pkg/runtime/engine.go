// Package runtime runs parameter sweeps of X/Y expression pairs.
package runtime

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lemonberrylabs/i64-plotter/pkg/expr"
)

// ErrCancelled is returned by Execute after Cancel.
var ErrCancelled = errors.New("sweep cancelled")

// minChunk is the smallest number of parameters handed to one worker.
const minChunk = 64

// Engine evaluates an X/Y expression pair over a parameter range.
type Engine struct {
	x, y    *expr.Expression
	workers int
	logger  zerolog.Logger

	evaluated atomic.Int64
	cancelled atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of parallel workers. Values below 2 run the
// sweep sequentially.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates a sweep engine for the given expressions.
func NewEngine(x, y *expr.Expression, opts ...Option) *Engine {
	e := &Engine{
		x:      x,
		y:      y,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute sweeps r. For each parameter t, X and then Y are evaluated; the
// sweep stops after the first t at which either faults. Faults are part of
// the Result, not errors; the error is non-nil only for an invalid range,
// cancellation or a malformed expression.
func (e *Engine) Execute(ctx context.Context, r Range) (*Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	e.evaluated.Store(0)

	var (
		res *Result
		err error
	)
	if e.workers > 1 && r.Len() > minChunk {
		res, err = e.executeParallel(ctx, r)
	} else {
		res, err = e.executeSequential(ctx, r)
	}
	if err != nil {
		return nil, err
	}

	ev := e.logger.Debug().
		Str("x", e.x.Text()).
		Str("y", e.y.Text()).
		Int64("from", r.From).
		Int64("to", r.To).
		Int("values", res.Len())
	for _, f := range res.Faults {
		ev = ev.Str(string(f.Axis)+"_fault", f.Kind.String()).Int64(string(f.Axis)+"_fault_parameter", f.Parameter)
	}
	ev.Msg("sweep finished")
	return res, nil
}

func (e *Engine) executeSequential(ctx context.Context, r Range) (*Result, error) {
	res := &Result{
		Range: r,
		X:     expr.NewValues(r.Len()),
		Y:     expr.NewValues(r.Len()),
	}
	evx, evy := expr.NewEvaluator(), expr.NewEvaluator()

	for t := r.From; ; t++ {
		if err := e.check(ctx); err != nil {
			return nil, err
		}

		xv, yv, faults, err := e.evalPair(evx, evy, t)
		if err != nil {
			return nil, err
		}
		if len(faults) > 0 {
			res.Faults = faults
			break
		}
		res.X.Append(xv)
		res.Y.Append(yv)
		e.evaluated.Add(1)

		if t == r.To {
			break
		}
	}
	return res, nil
}

// executeParallel splits r into chunks evaluated concurrently. Every worker
// stops at the first fault in its chunk and lowers the shared lowest faulting
// index; chunks wholly above it are skipped. The result is truncated at the
// lowest faulting index, which makes it identical to a sequential sweep.
func (e *Engine) executeParallel(ctx context.Context, r Range) (*Result, error) {
	n := r.Len()
	xs := make([]int64, n)
	ys := make([]int64, n)

	chunk := n / (e.workers * 4)
	if chunk < minChunk {
		chunk = minChunk
	}

	var lowest atomic.Int64
	lowest.Store(math.MaxInt64)

	var mu sync.Mutex
	faultsAt := make(map[int64][]Fault)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for start := 0; start < n; start += chunk {
		start := start
		end := start + chunk
		if end > n {
			end = n
		}
		g.Go(func() error {
			evx, evy := expr.NewEvaluator(), expr.NewEvaluator()
			for i := start; i < end; i++ {
				if int64(i) > lowest.Load() {
					return nil
				}
				if err := e.check(gctx); err != nil {
					return err
				}

				t := r.From + int64(i)
				xv, yv, faults, err := e.evalPair(evx, evy, t)
				if err != nil {
					return err
				}
				if len(faults) > 0 {
					mu.Lock()
					faultsAt[int64(i)] = faults
					mu.Unlock()
					lowerTo(&lowest, int64(i))
					return nil
				}
				xs[i], ys[i] = xv, yv
				e.evaluated.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	count := n
	res := &Result{Range: r}
	if low := lowest.Load(); low != math.MaxInt64 {
		count = int(low)
		res.Faults = faultsAt[low]
	}
	res.X = expr.NewValues(count)
	res.Y = expr.NewValues(count)
	for i := 0; i < count; i++ {
		res.X.Append(xs[i])
		res.Y.Append(ys[i])
	}
	return res, nil
}

// lowerTo sets v to idx if idx is smaller than its current value.
func lowerTo(v *atomic.Int64, idx int64) {
	for {
		cur := v.Load()
		if idx >= cur || v.CompareAndSwap(cur, idx) {
			return
		}
	}
}

// evalPair evaluates both axes at t. Arithmetic faults are collected; any
// other evaluation error is returned.
func (e *Engine) evalPair(evx, evy *expr.Evaluator, t int64) (int64, int64, []Fault, error) {
	var faults []Fault

	xv, err := evx.Eval(e.x, t)
	if err != nil {
		f, ferr := asFault(AxisX, err)
		if ferr != nil {
			return 0, 0, nil, ferr
		}
		faults = append(faults, f)
	}

	yv, err := evy.Eval(e.y, t)
	if err != nil {
		f, ferr := asFault(AxisY, err)
		if ferr != nil {
			return 0, 0, nil, ferr
		}
		faults = append(faults, f)
	}

	return xv, yv, faults, nil
}

func asFault(axis Axis, err error) (Fault, error) {
	var fe *expr.FaultError
	if !errors.As(err, &fe) {
		return Fault{}, err
	}
	return Fault{Axis: axis, Kind: fe.Kind, Parameter: fe.Parameter, Err: fe}, nil
}

func (e *Engine) check(ctx context.Context) error {
	if e.cancelled.Load() {
		return ErrCancelled
	}
	return ctx.Err()
}

// Cancel stops a running sweep. Execute returns ErrCancelled.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
}

// Evaluated returns the number of parameter values evaluated so far.
func (e *Engine) Evaluated() int64 {
	return e.evaluated.Load()
}
