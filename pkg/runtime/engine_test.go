package runtime

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/i64-plotter/pkg/expr"
	"github.com/lemonberrylabs/i64-plotter/pkg/types"
)

const (
	defaultY = "-((t&1ff)*(~t&1ff)>>9)*((((((t^(t<<1f))-(t<<1f))%400)/200)*2)-1)"
	defaultX = "-(((t-ff)&1ff)*(~(t-ff)&1ff)>>9)*(((((((t-ff)^((t-ff)<<1f))-((t-ff)<<1f))%400)/200)*2)-1)"
)

func newEngine(t *testing.T, x, y string, opts ...Option) *Engine {
	t.Helper()
	xe, err := expr.Compile(x)
	require.NoError(t, err)
	ye, err := expr.Compile(y)
	require.NoError(t, err)
	return NewEngine(xe, ye, opts...)
}

func TestExecuteDefaultRange(t *testing.T) {
	e := newEngine(t, "t", "-t")
	res, err := e.Execute(context.Background(), DefaultRange())
	require.NoError(t, err)

	assert.False(t, res.Failed())
	assert.NoError(t, res.Err())
	assert.Equal(t, 4097, res.Len())
	assert.Equal(t, 4097, res.Y.Len())
	assert.Equal(t, int64(-2048), res.X.At(0))
	assert.Equal(t, int64(2048), res.Y.At(0))
	assert.Equal(t, int64(2048), res.X.At(4096))
	assert.Equal(t, int64(0), res.Parameter(2048))
	assert.Equal(t, int64(4097), e.Evaluated())

	_, ok := res.DivisionFault()
	assert.False(t, ok)
	_, ok = res.ShiftFault()
	assert.False(t, ok)
}

func TestExecuteStopsAtFault(t *testing.T) {
	tests := []struct {
		name    string
		x, y    string
		r       Range
		wantLen int
		faults  []Fault
	}{
		{
			name:    "x division",
			x:       "1/(t-5)",
			y:       "t",
			r:       Range{From: -10, To: 10},
			wantLen: 15,
			faults:  []Fault{{Axis: AxisX, Kind: expr.DivisionFault, Parameter: 5}},
		},
		{
			name:    "y division drops x value",
			x:       "t",
			y:       "1/(t-2)",
			r:       Range{From: 0, To: 5},
			wantLen: 2,
			faults:  []Fault{{Axis: AxisY, Kind: expr.DivisionFault, Parameter: 2}},
		},
		{
			name:    "both axes at the same parameter",
			x:       "1/(t-3)",
			y:       "1<<((t-3)*(t-3)-1)",
			r:       Range{From: 0, To: 6},
			wantLen: 3,
			faults: []Fault{
				{Axis: AxisX, Kind: expr.DivisionFault, Parameter: 3},
				{Axis: AxisY, Kind: expr.ShiftFault, Parameter: 3},
			},
		},
		{
			name:    "fault at first parameter",
			x:       "t",
			y:       "1<<t",
			r:       Range{From: -3, To: 3},
			wantLen: 0,
			faults:  []Fault{{Axis: AxisY, Kind: expr.ShiftFault, Parameter: -3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newEngine(t, tt.x, tt.y).Execute(context.Background(), tt.r)
			require.NoError(t, err)

			assert.True(t, res.Failed())
			assert.Equal(t, tt.wantLen, res.X.Len())
			assert.Equal(t, tt.wantLen, res.Y.Len())
			require.Len(t, res.Faults, len(tt.faults))
			for i, want := range tt.faults {
				got := res.Faults[i]
				assert.Equal(t, want.Axis, got.Axis)
				assert.Equal(t, want.Kind, got.Kind)
				assert.Equal(t, want.Parameter, got.Parameter)
				require.NotNil(t, got.Err)
			}
			assert.Error(t, res.Err())
		})
	}
}

func TestResultFaultMarkers(t *testing.T) {
	res, err := newEngine(t, "1/(t-3)", "1<<((t-3)*(t-3)-1)").Execute(context.Background(), Range{From: 0, To: 6})
	require.NoError(t, err)

	p, ok := res.DivisionFault()
	assert.True(t, ok)
	assert.Equal(t, int64(3), p)

	p, ok = res.ShiftFault()
	assert.True(t, ok)
	assert.Equal(t, int64(3), p)

	assert.True(t, types.HasTag(res.Err(), types.TagDivisionFault))
}

func TestExecuteParallelMatchesSequential(t *testing.T) {
	tests := []struct {
		name string
		x, y string
	}{
		{"default plot", defaultX, defaultY},
		{"late x fault", "1/(t-7d0)", "t*t"},
		{"earliest of two faults", "1/(t-7d0)", "1/(t+400)"},
		{"shift fault", "t", "1<<(t+800)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := newEngine(t, tt.x, tt.y).Execute(context.Background(), DefaultRange())
			require.NoError(t, err)

			par, err := newEngine(t, tt.x, tt.y, WithWorkers(8)).Execute(context.Background(), DefaultRange())
			require.NoError(t, err)

			assert.Equal(t, seq.X.Slice(), par.X.Slice())
			assert.Equal(t, seq.Y.Slice(), par.Y.Slice())
			require.Len(t, par.Faults, len(seq.Faults))
			for i := range seq.Faults {
				assert.Equal(t, seq.Faults[i].Axis, par.Faults[i].Axis)
				assert.Equal(t, seq.Faults[i].Kind, par.Faults[i].Kind)
				assert.Equal(t, seq.Faults[i].Parameter, par.Faults[i].Parameter)
			}
		})
	}
}

func TestExecuteParallelEarliestFault(t *testing.T) {
	res, err := newEngine(t, "1/(t-7d0)", "1/(t+400)", WithWorkers(4)).Execute(context.Background(), DefaultRange())
	require.NoError(t, err)

	require.Len(t, res.Faults, 1)
	assert.Equal(t, AxisY, res.Faults[0].Axis)
	assert.Equal(t, int64(-1024), res.Faults[0].Parameter)
	assert.Equal(t, 1024, res.Len())
}

func TestRangeValidate(t *testing.T) {
	tests := []struct {
		name    string
		r       Range
		wantErr bool
	}{
		{"default", DefaultRange(), false},
		{"single point", Range{From: 7, To: 7}, false},
		{"inverted", Range{From: 1, To: 0}, true},
		{"max points", Range{From: 0, To: MaxSweepPoints - 1}, false},
		{"too many points", Range{From: 0, To: MaxSweepPoints}, true},
		{"full int64", Range{From: math.MinInt64, To: math.MaxInt64}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.HasTag(err, types.TagInvalidArgument))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestExecuteInvalidRange(t *testing.T) {
	_, err := newEngine(t, "t", "t").Execute(context.Background(), Range{From: 5, To: -5})
	require.Error(t, err)
}

func TestExecuteRangeEndingAtMaxInt64(t *testing.T) {
	res, err := newEngine(t, "t", "t").Execute(context.Background(), Range{From: math.MaxInt64 - 2, To: math.MaxInt64})
	require.NoError(t, err)
	assert.Equal(t, []int64{math.MaxInt64 - 2, math.MaxInt64 - 1, math.MaxInt64}, res.X.Slice())
}

func TestExecuteContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 4} {
		_, err := newEngine(t, "t", "t", WithWorkers(workers)).Execute(ctx, DefaultRange())
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	}
}

func TestCancel(t *testing.T) {
	e := newEngine(t, "t", "t")
	e.Cancel()
	_, err := e.Execute(context.Background(), DefaultRange())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, e.Evaluated())
}
