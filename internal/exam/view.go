package exam

import (
	"log"

	"github.com/mind-engage/examportal/pkg/attempt"
)

// URLResolver turns a blob key into a URL the browser can load.
type URLResolver interface {
	SignedURL(key string) (string, error)
}

// StudentView strips answer keys and resolves question images.
func StudentView(t Test, urls URLResolver) attempt.Test {
	out := attempt.Test{ID: t.ID, Name: t.Name, DurationMin: t.DurationMin}
	for _, s := range t.Sections {
		sec := attempt.Section{ID: s.ID, Name: s.Name, Questions: make([]attempt.QuestionEntry, 0, len(s.Questions))}
		for _, q := range s.Questions {
			sec.Questions = append(sec.Questions, attempt.QuestionEntry{
				Question: attempt.Question{
					ID:       q.Question.ID,
					Type:     attempt.QuestionType(q.Question.Type),
					ImageURL: imageURL(urls, q.Question.ImageKey),
				},
				PositiveMarks: q.PositiveMarks,
				NegativeMarks: q.NegativeMarks,
			})
		}
		out.Sections = append(out.Sections, sec)
	}
	return out
}

func imageURL(urls URLResolver, key string) string {
	if key == "" || urls == nil {
		return key
	}
	u, err := urls.SignedURL(key)
	if err != nil {
		log.Printf("exam: resolve image %q: %v", key, err)
		return ""
	}
	return u
}

// AttemptView is what the engine resumes from.
func AttemptView(a Attempt) attempt.Attempt {
	out := attempt.Attempt{
		ID:          a.ID,
		TestID:      a.TestID,
		UserID:      a.UserID,
		StartedAt:   a.StartedAt,
		DurationSec: a.DurationSec,
		SubmittedAt: a.SubmittedAt,
		Answers:     make([]attempt.AnswerRecord, 0, len(a.Answers)),
	}
	for _, ans := range a.Answers {
		out.Answers = append(out.Answers, record(ans))
	}
	return out
}

// ResultView is the graded attempt for the results page.
func ResultView(t Test, a Attempt, urls URLResolver) attempt.Result {
	res := attempt.Result{
		Attempt:    AttemptView(a),
		Test:       StudentView(t, urls),
		TotalScore: a.Score,
		MaxScore:   a.MaxScore,
		Answers:    make([]attempt.GradedAnswer, 0, len(a.Answers)),
	}
	for _, ans := range a.Answers {
		if !ans.HasAnswer() {
			continue
		}
		res.Answers = append(res.Answers, attempt.GradedAnswer{
			AnswerRecord: record(ans),
			IsCorrect:    ans.IsCorrect,
			MarksAwarded: ans.MarksAwarded,
		})
	}
	return res
}

func record(ans Answer) attempt.AnswerRecord {
	return attempt.AnswerRecord{
		SectionID:       ans.SectionID,
		QuestionID:      ans.QuestionID,
		SelectedOption:  ans.SelectedOption,
		NumericalAnswer: ans.NumericalAnswer,
		Seq:             ans.Seq,
	}
}
