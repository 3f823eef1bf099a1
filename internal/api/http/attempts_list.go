package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/examportal/internal/exam"
)

// GET /tests/{testID}/attempts?user_id=...&status=...&limit=50&offset=0
// Graded attempts for a teacher's review table.
func ListAttemptsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		if status != "" && status != exam.StatusInProgress && status != exam.StatusSubmitted {
			writeMessage(w, http.StatusBadRequest, "status must be in_progress or submitted")
			return
		}
		list, err := svc.ListAttempts(r.Context(), exam.AttemptListOpts{
			TestID: chi.URLParam(r, "testID"),
			UserID: strings.TrimSpace(r.URL.Query().Get("user_id")),
			Status: status,
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
