package optimization

import (
	"fmt"
	"math"
)

// ObjectiveN is a cost function of several variables.
type ObjectiveN func(x []float64) (float64, error)

// Point is the outcome of a multi-dimensional search.
type Point struct {
	X          []float64
	F          float64
	Evals      int
	Iterations int
}

// PowellConfig tunes MinimizePowellBounded. Zero values take defaults.
type PowellConfig struct {
	XTol          float64
	FTol          float64
	MaxIterations int
	MaxEvals      int
}

func (c PowellConfig) withDefaults(n int) PowellConfig {
	if c.XTol <= 0 {
		c.XTol = 1e-4
	}
	if c.FTol <= 0 {
		c.FTol = 1e-4
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 1000 * n
	}
	if c.MaxEvals <= 0 {
		c.MaxEvals = 1000 * n
	}
	return c
}

// MinimizePowellBounded runs Powell's conjugate direction method inside the
// box [lower, upper]. Each line search is a bounded Brent search over the
// segment of the direction that stays in the box.
func MinimizePowellBounded(f ObjectiveN, x0, lower, upper []float64, cfg PowellConfig) (Point, error) {
	n := len(x0)
	if n == 0 || len(lower) != n || len(upper) != n {
		return Point{}, fmt.Errorf("%w: dimension mismatch", ErrInvalidBounds)
	}
	for i := range x0 {
		if !(lower[i] <= upper[i]) {
			return Point{}, fmt.Errorf("%w: [%v, %v]", ErrInvalidBounds, lower[i], upper[i])
		}
	}
	cfg = cfg.withDefaults(n)

	evals := 0
	eval := func(x []float64) (float64, error) {
		evals++
		return f(x)
	}

	x := make([]float64, n)
	for i := range x0 {
		x[i] = clamp(x0[i], lower[i], upper[i])
	}
	direc := make([][]float64, n)
	for i := range direc {
		direc[i] = make([]float64, n)
		direc[i][i] = 1
	}
	fval, err := eval(x)
	if err != nil {
		return Point{}, err
	}
	x1 := clone(x)
	lineTol := cfg.XTol * 100
	iter := 0

	for {
		fx := fval
		bigind := 0
		delta := 0.0
		for i := 0; i < n; i++ {
			fx2 := fval
			fval, x, _, err = linesearch(eval, x, direc[i], lower, upper, fval, lineTol)
			if err != nil {
				return Point{}, err
			}
			if fx2-fval > delta {
				delta = fx2 - fval
				bigind = i
			}
		}
		iter++

		if 2*(fx-fval) <= cfg.FTol*(math.Abs(fx)+math.Abs(fval))+1e-20 {
			break
		}
		if evals >= cfg.MaxEvals || iter >= cfg.MaxIterations {
			return Point{X: x, F: fval, Evals: evals, Iterations: iter},
				fmt.Errorf("%w: %d iterations, %d evaluations", ErrNotConverged, iter, evals)
		}

		direc1 := make([]float64, n)
		for i := range x {
			direc1[i] = x[i] - x1[i]
		}
		x1 = clone(x)

		_, lmax := lineBounds(x, direc1, lower, upper)
		step := math.Min(lmax, 1)
		x2 := make([]float64, n)
		for i := range x {
			x2[i] = x[i] + step*direc1[i]
		}
		fx2, err := eval(x2)
		if err != nil {
			return Point{}, err
		}

		if fx > fx2 {
			t := 2 * (fx + fx2 - 2*fval)
			temp := fx - fval - delta
			t *= temp * temp
			temp = fx - fx2
			t -= delta * temp * temp
			if t < 0 {
				var moved []float64
				fval, x, moved, err = linesearch(eval, x, direc1, lower, upper, fval, lineTol)
				if err != nil {
					return Point{}, err
				}
				if !isZero(moved) {
					direc[bigind] = direc[n-1]
					direc[n-1] = moved
				}
			}
		}
	}
	return Point{X: x, F: fval, Evals: evals, Iterations: iter}, nil
}

// linesearch minimizes along xi from p, returning the new value, the new
// point and the displacement taken.
func linesearch(f ObjectiveN, p, xi, lower, upper []float64, fval, tol float64) (float64, []float64, []float64, error) {
	if isZero(xi) {
		return fval, p, xi, nil
	}
	lmin, lmax := lineBounds(p, xi, lower, upper)
	along := func(alpha float64) (float64, error) {
		return f(axpy(alpha, xi, p))
	}
	res, err := MinimizeBounded(along, lmin, lmax, tol/100, 500)
	if err != nil {
		return 0, nil, nil, err
	}
	moved := make([]float64, len(xi))
	for i := range xi {
		moved[i] = res.X * xi[i]
	}
	return res.F, axpy(1, moved, p), moved, nil
}

// lineBounds returns the range of alpha for which x0 + alpha*dir stays in
// the box; (0, 0) when the range is empty.
func lineBounds(x0, dir, lower, upper []float64) (float64, float64) {
	lmin, lmax := math.Inf(-1), math.Inf(1)
	for i := range dir {
		if dir[i] == 0 {
			continue
		}
		low := (lower[i] - x0[i]) / dir[i]
		high := (upper[i] - x0[i]) / dir[i]
		if dir[i] < 0 {
			low, high = high, low
		}
		lmin = math.Max(lmin, low)
		lmax = math.Min(lmax, high)
	}
	if math.IsInf(lmin, -1) || lmax < lmin {
		return 0, 0
	}
	return lmin, lmax
}

func axpy(alpha float64, x, y []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = y[i] + alpha*x[i]
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clone(x []float64) []float64 {
	return append([]float64(nil), x...)
}

func isZero(x []float64) bool {
	for _, v := range x {
		if v != 0 {
			return false
		}
	}
	return true
}
