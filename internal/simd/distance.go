// Package simd computes L2 vector distance with a hardware-gated fast path.
//
// Two interchangeable strategies exist: a lane-oriented kernel that processes
// 16 floats per iteration through two independent accumulators (the shape the
// compiler vectorizes on AVX2/NEON capable hardware), and a plain scalar
// loop. The strategy is probed once at process start and cached as immutable
// process-wide state; it never varies mid-query. Both strategies agree up to
// floating-point summation order, across all dimensions including
// non-multiples of the lane width.
package simd

import (
	"fmt"

	"github.com/chewxy/math32"
	"golang.org/x/sys/cpu"
)

// Strategy identifies the distance kernel selected at startup.
type Strategy string

const (
	// StrategyLanes is the unrolled multi-accumulator kernel used when the
	// CPU advertises wide SIMD support.
	StrategyLanes Strategy = "lanes"
	// StrategyScalar is the guaranteed-correct fallback.
	StrategyScalar Strategy = "scalar"
)

// laneWidth is the number of floats per accumulator group. Two groups are
// processed per iteration, matching a 2x8-lane AVX2 kernel.
const laneWidth = 8

// active is selected once in init and never written afterwards.
var active Strategy = StrategyScalar

func init() {
	if cpu.X86.HasAVX2 || cpu.X86.HasAVX512F || cpu.ARM64.HasASIMD {
		active = StrategyLanes
	}
}

// Active reports the strategy selected at process start.
func Active() Strategy {
	return active
}

// ErrDimensionMismatch indicates the two vectors differ in dimension.
// The offending candidate is excluded from scoring; the query continues.
type ErrDimensionMismatch struct {
	A, B int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("distance dimension mismatch: %d vs %d", e.A, e.B)
}

// Distance returns the L2 (Euclidean) distance between a and b.
func Distance(a, b []float32) (float32, error) {
	sq, err := SquaredDistance(a, b)
	if err != nil {
		return 0, err
	}
	return math32.Sqrt(sq), nil
}

// SquaredDistance returns the squared L2 distance between a and b.
// Ranking by squared distance is order-equivalent to ranking by distance,
// so the engine scores with this and defers the sqrt.
func SquaredDistance(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch{A: len(a), B: len(b)}
	}
	if active == StrategyLanes {
		return l2SquaredLanes(a, b), nil
	}
	return l2SquaredScalar(a, b, 0), nil
}

// l2SquaredLanes processes 2*laneWidth elements per iteration with two
// independent accumulators, then hands the remainder to the scalar loop.
func l2SquaredLanes(a, b []float32) float32 {
	var acc0, acc1 float32
	n := len(a)

	i := 0
	for ; i+2*laneWidth <= n; i += 2 * laneWidth {
		x := a[i : i+2*laneWidth : i+2*laneWidth]
		y := b[i : i+2*laneWidth : i+2*laneWidth]

		d0 := x[0] - y[0]
		d1 := x[1] - y[1]
		d2 := x[2] - y[2]
		d3 := x[3] - y[3]
		d4 := x[4] - y[4]
		d5 := x[5] - y[5]
		d6 := x[6] - y[6]
		d7 := x[7] - y[7]
		acc0 += d0*d0 + d1*d1 + d2*d2 + d3*d3 + d4*d4 + d5*d5 + d6*d6 + d7*d7

		e0 := x[8] - y[8]
		e1 := x[9] - y[9]
		e2 := x[10] - y[10]
		e3 := x[11] - y[11]
		e4 := x[12] - y[12]
		e5 := x[13] - y[13]
		e6 := x[14] - y[14]
		e7 := x[15] - y[15]
		acc1 += e0*e0 + e1*e1 + e2*e2 + e3*e3 + e4*e4 + e5*e5 + e6*e6 + e7*e7
	}

	sum := acc0 + acc1
	if i < n {
		sum = l2SquaredScalar(a, b, i) + sum
	}
	return sum
}

// l2SquaredScalar accumulates (a[i]-b[i])^2 from index from to the end.
func l2SquaredScalar(a, b []float32, from int) float32 {
	var acc float32
	for i := from; i < len(a); i++ {
		d := a[i] - b[i]
		acc += d * d
	}
	return acc
}
