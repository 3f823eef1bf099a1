package exam

import (
	"context"
	"log"

	"github.com/mind-engage/examportal/internal/grading"
)

// gradeAttempt marks every answer in place and totals the score.
func gradeAttempt(ctx context.Context, g grading.Grader, t Test, a Attempt) Attempt {
	a.Score = 0
	a.MaxScore = t.MaxScore()
	for i := range a.Answers {
		ans := &a.Answers[i]
		ans.IsCorrect, ans.MarksAwarded = false, 0
		q, ok := t.Lookup(ans.SectionID, ans.QuestionID)
		if !ok || !ans.HasAnswer() {
			continue
		}
		res, err := g.Grade(ctx, grading.Q{
			Type:             q.Question.Type,
			PositiveMarks:    q.PositiveMarks,
			NegativeMarks:    q.NegativeMarks,
			CorrectOption:    q.Question.CorrectOption,
			CorrectNumerical: q.Question.CorrectNumerical,
			Tolerance:        q.Question.Tolerance,
		}, grading.Response{Option: ans.SelectedOption, Number: ans.NumericalAnswer})
		if err != nil {
			log.Printf("grade attempt %s %s/%s: %v", a.ID, ans.SectionID, ans.QuestionID, err)
			continue
		}
		ans.IsCorrect = res.Correct
		ans.MarksAwarded = res.Marks
		a.Score += res.Marks
	}
	return a
}
