package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/examportal/internal/exam"
	"github.com/mind-engage/examportal/internal/storage"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON reads and validates the body into v; on failure it has already
// written a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "bad json")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeMessage(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return err.Error()
	}
	fe := ve[0]
	if fe.Tag() == "required" {
		return fe.Field() + " is required"
	}
	return fe.Field() + " failed " + fe.Tag()
}

// messageAlreadySubmitted is matched verbatim by the browser client.
const messageAlreadySubmitted = "You have already submitted this test"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

// writeError maps service errors onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, exam.ErrAlreadySubmitted):
		writeMessage(w, http.StatusConflict, messageAlreadySubmitted)
	case errors.Is(err, exam.ErrSubmitInProgress):
		writeMessage(w, http.StatusLocked, err.Error())
	case errors.Is(err, exam.ErrDeadlinePassed):
		writeMessage(w, http.StatusGone, err.Error())
	case errors.Is(err, exam.ErrNotSubmitted):
		writeMessage(w, http.StatusForbidden, "Results are available after submission")
	case errors.Is(err, exam.ErrUnknownQuestion),
		errors.Is(err, exam.ErrInvalidAnswer),
		errors.Is(err, exam.ErrInvalidTest),
		errors.Is(err, storage.ErrBadKey):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("http: %s %s: %v", r.Method, r.URL.Path, err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
