package optimization

import (
	"fmt"
	"math"
)

// Objective is a cost function of one variable. An error aborts the search.
type Objective func(x float64) (float64, error)

// Scalar is the outcome of a one-dimensional search.
type Scalar struct {
	X     float64
	F     float64
	Evals int
}

const (
	sqrtEps    = 1.4901161193847656e-08
	goldenMean = 0.3819660112501051
)

// MinimizeBounded finds a local minimum of f on [lo, hi] with Brent's
// method (parabolic interpolation guarded by golden-section steps), to an
// absolute tolerance xatol in x. It evaluates f at most maxEvals times.
func MinimizeBounded(f Objective, lo, hi, xatol float64, maxEvals int) (Scalar, error) {
	if !(lo <= hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return Scalar{}, fmt.Errorf("%w: [%v, %v]", ErrInvalidBounds, lo, hi)
	}
	a, b := lo, hi
	fulc := a + goldenMean*(b-a)
	nfc, xf := fulc, fulc
	var rat, e float64

	fx, err := f(xf)
	if err != nil {
		return Scalar{}, err
	}
	evals := 1
	ffulc, fnfc := fx, fx
	xm := 0.5 * (a + b)
	tol1 := sqrtEps*math.Abs(xf) + xatol/3
	tol2 := 2 * tol1

	for math.Abs(xf-xm) > tol2-0.5*(b-a) {
		golden := true
		if math.Abs(e) > tol1 {
			golden = false
			r := (xf - nfc) * (fx - ffulc)
			q := (xf - fulc) * (fx - fnfc)
			p := (xf-fulc)*q - (xf-nfc)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			r = e
			e = rat

			if math.Abs(p) < math.Abs(0.5*q*r) && p > q*(a-xf) && p < q*(b-xf) {
				rat = p / q
				x := xf + rat
				if x-a < tol2 || b-x < tol2 {
					rat = tol1 * signOrOne(xm-xf)
				}
			} else {
				golden = true
			}
		}
		if golden {
			if xf >= xm {
				e = a - xf
			} else {
				e = b - xf
			}
			rat = goldenMean * e
		}

		x := xf + signOrOne(rat)*math.Max(math.Abs(rat), tol1)
		fu, err := f(x)
		if err != nil {
			return Scalar{}, err
		}
		evals++

		if fu <= fx {
			if x >= xf {
				a = xf
			} else {
				b = xf
			}
			fulc, ffulc = nfc, fnfc
			nfc, fnfc = xf, fx
			xf, fx = x, fu
		} else {
			if x < xf {
				a = x
			} else {
				b = x
			}
			if fu <= fnfc || nfc == xf {
				fulc, ffulc = nfc, fnfc
				nfc, fnfc = x, fu
			} else if fu <= ffulc || fulc == xf || fulc == nfc {
				fulc, ffulc = x, fu
			}
		}

		xm = 0.5 * (a + b)
		tol1 = sqrtEps*math.Abs(xf) + xatol/3
		tol2 = 2 * tol1

		if evals >= maxEvals {
			return Scalar{X: xf, F: fx, Evals: evals}, fmt.Errorf("%w: %d evaluations", ErrNotConverged, evals)
		}
	}
	return Scalar{X: xf, F: fx, Evals: evals}, nil
}

func signOrOne(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
