package expr

// Values is the ordered sequence of results of one sweep, one per evaluated
// parameter value. The zero value is an empty buffer ready to use.
type Values struct {
	vals []int64
}

// NewValues creates an empty buffer with room for n values.
func NewValues(n int) *Values {
	return &Values{vals: make([]int64, 0, n)}
}

// ValuesOf creates a buffer holding a copy of vals.
func ValuesOf(vals []int64) *Values {
	return &Values{vals: append([]int64(nil), vals...)}
}

// Append adds v at the end of the buffer.
func (v *Values) Append(x int64) {
	v.vals = append(v.vals, x)
}

// Len returns the number of values.
func (v *Values) Len() int {
	return len(v.vals)
}

// At returns the value at index i. It panics if i is out of range.
func (v *Values) At(i int) int64 {
	return v.vals[i]
}

// Reset empties the buffer, keeping its storage.
func (v *Values) Reset() {
	v.vals = v.vals[:0]
}

// Truncate drops every value from index n on.
func (v *Values) Truncate(n int) {
	if n < len(v.vals) {
		v.vals = v.vals[:n]
	}
}

// Slice returns a copy of the values.
func (v *Values) Slice() []int64 {
	return append([]int64(nil), v.vals...)
}

// MinMax scans the buffer for its smallest and largest value. ok is false
// for an empty buffer.
func (v *Values) MinMax() (lo, hi int64, ok bool) {
	if len(v.vals) == 0 {
		return 0, 0, false
	}
	lo, hi = v.vals[0], v.vals[0]
	for _, x := range v.vals[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi, true
}

// Min returns the smallest value, or 0 for an empty buffer.
func (v *Values) Min() int64 {
	lo, _, _ := v.MinMax()
	return lo
}

// Max returns the largest value, or 0 for an empty buffer.
func (v *Values) Max() int64 {
	_, hi, _ := v.MinMax()
	return hi
}
