package attempt

import (
	"errors"
	"fmt"
)

// ErrMalformed marks payloads the engine refuses to run against.
var ErrMalformed = errors.New("malformed test payload")

type StructuralError struct {
	Field  string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrMalformed, e.Field, e.Reason)
}

func (e *StructuralError) Unwrap() error { return ErrMalformed }

func malformed(field, format string, args ...any) error {
	return &StructuralError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks that test and attempt are safe to navigate and time.
func Validate(t Test, a Attempt) error {
	if len(t.Sections) == 0 {
		return malformed("sections", "test has no sections")
	}
	seenSec := map[string]bool{}
	for i, s := range t.Sections {
		if s.ID == "" {
			return malformed(fmt.Sprintf("sections[%d]._id", i), "missing id")
		}
		if seenSec[s.ID] {
			return malformed(fmt.Sprintf("sections[%d]._id", i), "duplicate section %s", s.ID)
		}
		seenSec[s.ID] = true
		if len(s.Questions) == 0 {
			return malformed(fmt.Sprintf("sections[%d].questions", i), "section %s has no questions", s.ID)
		}
		seenQ := map[string]bool{}
		for j, q := range s.Questions {
			field := fmt.Sprintf("sections[%d].questions[%d]", i, j)
			if q.Question.ID == "" {
				return malformed(field, "missing question id")
			}
			if seenQ[q.Question.ID] {
				return malformed(field, "duplicate question %s", q.Question.ID)
			}
			seenQ[q.Question.ID] = true
			switch q.Question.Type {
			case TypeMCQ, TypeNumerical:
			default:
				return malformed(field, "unsupported question type %q", q.Question.Type)
			}
			if q.PositiveMarks < 0 || q.NegativeMarks < 0 {
				return malformed(field, "negative marks")
			}
		}
	}
	if a.StartedAt.IsZero() {
		return malformed("attempt.startedAt", "missing")
	}
	if a.DurationSec <= 0 {
		return malformed("attempt.durationSec", "must be positive")
	}
	for i, rec := range a.Answers {
		if _, ok := lookup(t, rec.Key()); !ok {
			return malformed(fmt.Sprintf("attempt.answers[%d]", i), "references unknown question %s", rec.Key())
		}
	}
	return nil
}

func lookup(t Test, k Key) (QuestionEntry, bool) {
	for _, s := range t.Sections {
		if s.ID != k.SectionID {
			continue
		}
		for _, q := range s.Questions {
			if q.Question.ID == k.QuestionID {
				return q, true
			}
		}
	}
	return QuestionEntry{}, false
}
