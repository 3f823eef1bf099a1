// internal/api/http/user_password.go
package http

import (
	"errors"
	"net/http"

	auth "github.com/mind-engage/examportal/internal/auth/middleware"
)

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" validate:"required,min=4"`
}

func ChangePasswordHandler(users auth.UserAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := auth.SubjectFromContext(r.Context())
		if username == "" {
			writeMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req changePasswordReq
		if !decodeJSON(w, r, &req) {
			return
		}

		u, err := users.FindUser(r.Context(), username)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				writeMessage(w, http.StatusNotFound, "user not found")
				return
			}
			writeError(w, r, err)
			return
		}
		if !auth.CheckPassword(u.PasswordHash, req.OldPassword) {
			writeMessage(w, http.StatusForbidden, "incorrect old password")
			return
		}
		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := users.SetPassword(r.Context(), u.Username, hash); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
