package grading

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// numericStrategy compares against CorrectNumerical with an optional tolerance.
// Examples:
//
//	Tolerance: "tol=0.01"     // absolute tolerance
//	Tolerance: "reltol=0.05"  // 5% relative tolerance
//	Tolerance: "tol=0.01,reltol=0.05"
type numericStrategy struct {
	negative   bool
	defaultTol float64
}

func (s numericStrategy) Grade(_ context.Context, q Q, r Response) (Result, error) {
	if r.Number == nil {
		return Result{MaxMarks: q.PositiveMarks}, ErrWrongChannel
	}
	res := Result{MaxMarks: q.PositiveMarks, Answered: true}
	if q.CorrectNumerical != nil && withinTolerance(*r.Number, *q.CorrectNumerical, q.Tolerance, s.defaultTol) {
		res.Correct = true
		res.Marks = q.PositiveMarks
		return res, nil
	}
	if s.negative {
		res.Marks = -q.NegativeMarks
	}
	return res, nil
}

func withinTolerance(got, want float64, spec string, defaultTol float64) bool {
	if got == want {
		return true
	}
	absTol, relTol := ParseTolerance(spec)
	if absTol < 0 && relTol < 0 {
		absTol = defaultTol
	}
	diff := math.Abs(got - want)
	if absTol >= 0 && diff <= absTol {
		return true
	}
	return relTol >= 0 && diff <= relTol*math.Abs(want)
}

// ParseTolerance reads "tol=" and "reltol=" terms separated by commas or
// spaces. A bare number is an absolute tolerance. Missing terms are -1.
func ParseTolerance(spec string) (absTol float64, relTol float64) {
	absTol, relTol = -1, -1
	for _, k := range strings.FieldsFunc(spec, func(r rune) bool { return r == ',' || r == ' ' }) {
		k = strings.TrimSpace(strings.ToLower(k))
		switch {
		case strings.HasPrefix(k, "tol="):
			if v, err := strconv.ParseFloat(strings.TrimPrefix(k, "tol="), 64); err == nil {
				absTol = v
			}
		case strings.HasPrefix(k, "reltol="):
			if v, err := strconv.ParseFloat(strings.TrimPrefix(k, "reltol="), 64); err == nil {
				relTol = v
			}
		default:
			if v, err := strconv.ParseFloat(k, 64); err == nil {
				absTol = v
			}
		}
	}
	return
}
