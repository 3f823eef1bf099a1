package grading

import (
	"context"
	"errors"
)

// Q is the answer-key view of a question needed for marking.
type Q struct {
	Type          string // "mcq" or "numerical"
	PositiveMarks float64
	NegativeMarks float64

	CorrectOption    string
	CorrectNumerical *float64
	Tolerance        string // e.g. "tol=0.01" or "reltol=0.05"; empty means exact
}

// Response is one student's answer; at most one channel is set.
type Response struct {
	Option *string
	Number *float64
}

func (r Response) Answered() bool { return r.Option != nil || r.Number != nil }

// Result is the outcome of marking a single response.
type Result struct {
	Answered bool
	Correct  bool
	Marks    float64 // +positive, -negative or 0
	MaxMarks float64
}

var ErrWrongChannel = errors.New("response does not match question type")

// Strategy marks a single question type.
type Strategy interface {
	Grade(ctx context.Context, q Q, r Response) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, r Response) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, r Response) (Result, error) {
	if !r.Answered() {
		return Result{MaxMarks: q.PositiveMarks}, nil
	}
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxMarks: q.PositiveMarks}, errors.New("no strategy for type " + q.Type)
	}
	return s.Grade(ctx, q, r)
}

// Engine options

type Option func(*config)

type config struct {
	NumericalNegative bool    // apply negative marks to wrong numerical answers
	DefaultAbsTol     float64 // used when a numerical question has no tolerance
}

func WithNumericalNegative(b bool) Option    { return func(c *config) { c.NumericalNegative = b } }
func WithDefaultTolerance(t float64) Option { return func(c *config) { c.DefaultAbsTol = t } }

// NewDefaultGrader installs the NTA marking scheme: correct earns the
// question's positive marks, a wrong answer loses its negative marks and
// an unanswered question scores zero.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{NumericalNegative: true}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{
		strategies: map[string]Strategy{
			"mcq":       mcqStrategy{},
			"numerical": numericStrategy{negative: cfg.NumericalNegative, defaultTol: cfg.DefaultAbsTol},
		},
	}
}

// --- Strategies ---

type mcqStrategy struct{}

func (mcqStrategy) Grade(_ context.Context, q Q, r Response) (Result, error) {
	res := Result{MaxMarks: q.PositiveMarks, Answered: true}
	if r.Option == nil {
		return Result{MaxMarks: q.PositiveMarks}, ErrWrongChannel
	}
	if q.CorrectOption != "" && normalize(*r.Option) == normalize(q.CorrectOption) {
		res.Correct = true
		res.Marks = q.PositiveMarks
		return res, nil
	}
	res.Marks = -q.NegativeMarks
	return res, nil
}
