package http

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	auth "github.com/mind-engage/examportal/internal/auth/middleware"
	"github.com/mind-engage/examportal/internal/rbac"
)

type userRow struct {
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=student teacher admin"` // default student
	Password string `json:"password,omitempty"`                                     // plaintext, hashed here
}

var errBadUsers = errors.New("bad user list")

// POST /users  JSON array or multipart file= (CSV with username,role[,password] or JSON)
func BulkUpsertUsersHandler(users auth.UserAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []userRow
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				writeMessage(w, http.StatusBadRequest, "file required")
				return
			}
			defer f.Close()
			if rows, err = decodeUserFile(f); err != nil {
				writeMessage(w, http.StatusBadRequest, err.Error())
				return
			}
		} else if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			writeMessage(w, http.StatusBadRequest, "expected JSON array or multipart file")
			return
		}

		ins, upd, err := upsertUsers(r.Context(), users, rows, rbac.RoleFromContext(r.Context()))
		if err != nil {
			if errors.Is(err, errBadUsers) {
				writeMessage(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"inserted": ins, "updated": upd})
	}
}

// GET /users?role=student
func ListUsersHandler(users auth.UserAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := users.ListUsers(r.Context(), strings.TrimSpace(r.URL.Query().Get("role")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]map[string]string, 0, len(list))
		for _, u := range list {
			out = append(out, map[string]string{"id": u.ID, "username": u.Username, "role": u.Role})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// decodeUserFile sniffs JSON vs CSV by the first non-space byte.
func decodeUserFile(r io.Reader) ([]userRow, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil {
			return nil, fmt.Errorf("%w: empty file", errBadUsers)
		}
		if b[0] == ' ' || b[0] == '\n' || b[0] == '\r' || b[0] == '\t' {
			_, _ = br.ReadByte()
			continue
		}
		if b[0] == '[' {
			var rows []userRow
			if err := json.NewDecoder(br).Decode(&rows); err != nil {
				return nil, fmt.Errorf("%w: bad json", errBadUsers)
			}
			return rows, nil
		}
		return parseCSV(br)
	}
}

func parseCSV(r io.Reader) ([]userRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadUsers, err)
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"username", "role"} {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", errBadUsers, k)
		}
	}
	var rows []userRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadUsers, err)
		}
		row := userRow{
			Username: strings.TrimSpace(rec[idx["username"]]),
			Role:     strings.ToLower(strings.TrimSpace(rec[idx["role"]])),
		}
		if i, ok := idx["password"]; ok {
			row.Password = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// upsertUsers keeps the stored hash for existing users listed without a password.
// Only admins may grant the admin role.
func upsertUsers(ctx context.Context, users auth.UserAdmin, rows []userRow, callerRole string) (inserted, updated int, err error) {
	for _, r := range rows {
		if err := validate.Struct(r); err != nil {
			return inserted, updated, fmt.Errorf("%w: %q: %s", errBadUsers, r.Username, validationMessage(err))
		}
		if r.Role == "admin" && callerRole != "admin" {
			return inserted, updated, fmt.Errorf("%w: only admins may create admins (%s)", errBadUsers, r.Username)
		}
		if r.Role == "" {
			r.Role = "student"
		}
		cur, err := users.FindUser(ctx, r.Username)
		exists := err == nil
		if err != nil && !errors.Is(err, auth.ErrUserNotFound) {
			return inserted, updated, err
		}
		hash := cur.PasswordHash
		if r.Password != "" {
			if hash, err = auth.HashPassword(r.Password); err != nil {
				return inserted, updated, err
			}
		} else if !exists {
			return inserted, updated, fmt.Errorf("%w: password required for new user %s", errBadUsers, r.Username)
		}
		if err := users.UpsertUser(ctx, auth.User{ID: cur.ID, Username: r.Username, PasswordHash: hash, Role: r.Role}); err != nil {
			return inserted, updated, err
		}
		if exists {
			updated++
		} else {
			inserted++
		}
	}
	return inserted, updated, nil
}
