package exam

import (
	"fmt"
	"time"

	"github.com/mind-engage/examportal/pkg/attempt"
)

// ValidateTest applies the engine's structural rules to an uploaded test
// and checks that every question carries a usable answer key.
func ValidateTest(t Test) error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing _id", ErrInvalidTest)
	}
	if t.DurationMin <= 0 {
		return fmt.Errorf("%w: duration must be positive minutes", ErrInvalidTest)
	}
	probe := attempt.Attempt{TestID: t.ID, StartedAt: time.Unix(1, 0), DurationSec: t.DurationSec()}
	if err := attempt.Validate(StudentView(t, nil), probe); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTest, err)
	}
	for _, s := range t.Sections {
		for _, q := range s.Questions {
			switch q.Question.Type {
			case string(attempt.TypeMCQ):
				if !isOption(q.Question.CorrectOption) {
					return fmt.Errorf("%w: %s/%s: correctOption must be one of %v", ErrInvalidTest, s.ID, q.Question.ID, attempt.OptionLetters)
				}
			case string(attempt.TypeNumerical):
				if q.Question.CorrectNumerical == nil {
					return fmt.Errorf("%w: %s/%s: correctNumerical is required", ErrInvalidTest, s.ID, q.Question.ID)
				}
			}
		}
	}
	return nil
}

func isOption(s string) bool {
	for _, o := range attempt.OptionLetters {
		if o == s {
			return true
		}
	}
	return false
}

// checkAnswer enforces the one-channel rule against the question type.
func checkAnswer(q QuestionEntry, a Answer) error {
	if a.SelectedOption != nil && a.NumericalAnswer != nil {
		return fmt.Errorf("%w: both selectedOption and numericalAnswer set", ErrInvalidAnswer)
	}
	switch q.Question.Type {
	case string(attempt.TypeMCQ):
		if a.NumericalAnswer != nil {
			return fmt.Errorf("%w: %s takes an option", ErrInvalidAnswer, q.Question.ID)
		}
		if a.SelectedOption != nil && !isOption(*a.SelectedOption) {
			return fmt.Errorf("%w: option %q", ErrInvalidAnswer, *a.SelectedOption)
		}
	case string(attempt.TypeNumerical):
		if a.SelectedOption != nil {
			return fmt.Errorf("%w: %s takes a number", ErrInvalidAnswer, q.Question.ID)
		}
	}
	return nil
}
