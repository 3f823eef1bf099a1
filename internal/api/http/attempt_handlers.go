package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/examportal/internal/auth/middleware"
	"github.com/mind-engage/examportal/internal/exam"
)

// POST /tests/{testID}/start -> {test, attempt}
func StartAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, a, err := svc.StartAttempt(r.Context(), chi.URLParam(r, "testID"), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"test": t, "attempt": a})
	}
}

type saveAnswerReq struct {
	SectionID       string   `json:"sectionId" validate:"required"`
	QuestionID      string   `json:"questionId" validate:"required"`
	SelectedOption  *string  `json:"selectedOption" validate:"omitempty,len=1"`
	NumericalAnswer *float64 `json:"numericalAnswer"`
	Seq             int64    `json:"seq" validate:"gte=0"`
}

// POST /tests/{testID}/answer {sectionId, questionId, selectedOption|numericalAnswer, seq}
func SaveAnswerHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveAnswerReq
		if !decodeJSON(w, r, &req) {
			return
		}
		err := svc.SaveAnswer(r.Context(), chi.URLParam(r, "testID"), auth.SubjectFromContext(r.Context()), exam.Answer{
			SectionID:       req.SectionID,
			QuestionID:      req.QuestionID,
			SelectedOption:  req.SelectedOption,
			NumericalAnswer: req.NumericalAnswer,
			Seq:             req.Seq,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMessage(w, http.StatusOK, "Answer saved")
	}
}

// POST /tests/{testID}/submit
func SubmitAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.SubmitAttempt(r.Context(), chi.URLParam(r, "testID"), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":    "Test submitted",
			"attemptId":  a.ID,
			"totalScore": a.Score,
			"maxScore":   a.MaxScore,
		})
	}
}

// GET /tests/{testID}/my-result
func MyResultHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Result(r.Context(), chi.URLParam(r, "testID"), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
