// pkg/attempt/types.go
package attempt

import (
	"context"
	"errors"
	"time"
)

type QuestionType string

const (
	TypeMCQ       QuestionType = "mcq"
	TypeNumerical QuestionType = "numerical"
)

// OptionLetters is the fixed mcq alphabet.
var OptionLetters = []string{"A", "B", "C", "D"}

func validOption(opt string) bool {
	for _, o := range OptionLetters {
		if o == opt {
			return true
		}
	}
	return false
}

// Question is the student-safe view; correct-answer data never reaches the engine.
type Question struct {
	ID       string       `json:"_id"`
	Type     QuestionType `json:"type"`
	ImageURL string       `json:"imageUrl,omitempty"`
}

type QuestionEntry struct {
	Question      Question `json:"question"`
	PositiveMarks float64  `json:"positiveMarks"`
	NegativeMarks float64  `json:"negativeMarks"`
}

type Section struct {
	ID        string          `json:"_id"`
	Name      string          `json:"name"`
	Questions []QuestionEntry `json:"questions"`
}

type Test struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	DurationMin int       `json:"duration"` // minutes
	Sections    []Section `json:"sections"`
}

// Key identifies one question within an attempt.
type Key struct {
	SectionID  string
	QuestionID string
}

func (k Key) String() string { return k.SectionID + "_" + k.QuestionID }

// AnswerRecord carries at most one meaningful channel; the other is nil.
type AnswerRecord struct {
	SectionID       string   `json:"sectionId"`
	QuestionID      string   `json:"question"`
	SelectedOption  *string  `json:"selectedOption"`
	NumericalAnswer *float64 `json:"numericalAnswer"`

	// Seq is the client write id; the server ignores upserts older than what it holds.
	Seq int64 `json:"seq,omitempty"`
}

func (r AnswerRecord) Key() Key { return Key{SectionID: r.SectionID, QuestionID: r.QuestionID} }

// HasAnswer reports whether the active channel holds a value.
func (r AnswerRecord) HasAnswer() bool {
	return r.SelectedOption != nil || r.NumericalAnswer != nil
}

type Attempt struct {
	ID          string         `json:"_id"`
	TestID      string         `json:"test"`
	UserID      string         `json:"student"`
	StartedAt   time.Time      `json:"startedAt"`
	DurationSec int            `json:"durationSec"`
	Answers     []AnswerRecord `json:"answers"`
	SubmittedAt *time.Time     `json:"submittedAt,omitempty"`
}

func (a Attempt) Submitted() bool { return a.SubmittedAt != nil }

// GradedAnswer is an AnswerRecord as returned by the results view.
type GradedAnswer struct {
	AnswerRecord
	IsCorrect    bool    `json:"isCorrect"`
	MarksAwarded float64 `json:"marksAwarded"`
}

type Result struct {
	Attempt    Attempt        `json:"attempt"`
	Test       Test           `json:"test"`
	Answers    []GradedAnswer `json:"answers"`
	TotalScore float64        `json:"totalScore"`
	MaxScore   float64        `json:"maxScore"`
}

var (
	// ErrAlreadySubmitted is returned by StartAttempt when the student's
	// attempt for the test is already final. Callers redirect to results.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrInvalidAnswer    = errors.New("invalid answer")
	ErrFrozen           = errors.New("attempt is frozen")
	ErrOutOfRange       = errors.New("position out of range")
	ErrUnknownQuestion  = errors.New("unknown question")
)

// Service is the remote test/attempt collaborator.
type Service interface {
	StartAttempt(ctx context.Context, testID string) (Test, Attempt, error)
	SaveAnswer(ctx context.Context, testID string, rec AnswerRecord) error
	SubmitAttempt(ctx context.Context, testID string) error
	FetchResult(ctx context.Context, testID string) (Result, error)
}
