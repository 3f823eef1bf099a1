package exam

import (
	"errors"
	"time"
)

const (
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrDeadlinePassed   = errors.New("attempt deadline passed")
	ErrUnknownQuestion  = errors.New("unknown question")
	ErrInvalidAnswer    = errors.New("invalid answer")
	ErrInvalidTest      = errors.New("invalid test")
	ErrNotSubmitted     = errors.New("attempt not submitted yet")
)

// Question is the full authoring view, answer key included.
type Question struct {
	ID       string `json:"_id"`
	Type     string `json:"type"` // mcq | numerical
	ImageKey string `json:"imageKey,omitempty"`

	CorrectOption    string   `json:"correctOption,omitempty"`
	CorrectNumerical *float64 `json:"correctNumerical,omitempty"`
	Tolerance        string   `json:"tolerance,omitempty"` // see grading.ParseTolerance
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
	DurationMin int       `json:"duration"`
	Sections    []Section `json:"sections"`

	CreatedAt int64 `json:"createdAt,omitempty"`
}

func (t Test) DurationSec() int { return t.DurationMin * 60 }

// Lookup finds a question by section and question id.
func (t Test) Lookup(sectionID, questionID string) (QuestionEntry, bool) {
	for _, s := range t.Sections {
		if s.ID != sectionID {
			continue
		}
		for _, q := range s.Questions {
			if q.Question.ID == questionID {
				return q, true
			}
		}
	}
	return QuestionEntry{}, false
}

// MaxScore is the sum of positive marks.
func (t Test) MaxScore() float64 {
	total := 0.0
	for _, s := range t.Sections {
		for _, q := range s.Questions {
			total += q.PositiveMarks
		}
	}
	return total
}

type Answer struct {
	SectionID       string   `json:"sectionId"`
	QuestionID      string   `json:"question"`
	SelectedOption  *string  `json:"selectedOption"`
	NumericalAnswer *float64 `json:"numericalAnswer"`
	Seq             int64    `json:"seq,omitempty"`

	// set on submission
	IsCorrect    bool    `json:"isCorrect"`
	MarksAwarded float64 `json:"marksAwarded"`
}

func (a Answer) HasAnswer() bool { return a.SelectedOption != nil || a.NumericalAnswer != nil }

type Attempt struct {
	ID          string     `json:"_id"`
	TestID      string     `json:"test"`
	UserID      string     `json:"student"`
	Status      string     `json:"status"` // in_progress|submitted
	StartedAt   time.Time  `json:"startedAt"`
	DurationSec int        `json:"durationSec"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	Score       float64    `json:"totalScore"`
	MaxScore    float64    `json:"maxScore"`
	Answers     []Answer   `json:"answers"`
}

func (a Attempt) Submitted() bool { return a.Status == StatusSubmitted }

// Deadline is startedAt + duration; saves are accepted for a grace period after it.
func (a Attempt) Deadline() time.Time {
	return a.StartedAt.Add(time.Duration(a.DurationSec) * time.Second)
}

type TestSummary struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	DurationMin int    `json:"duration"`
	Questions   int    `json:"questionCount"`
	CreatedAt   int64  `json:"createdAt,omitempty"`
}

type ListOpts struct {
	Q      string
	Limit  int
	Offset int
}

type AttemptListOpts struct {
	TestID string
	UserID string
	Status string // optional: in_progress|submitted
	Limit  int
	Offset int
}
