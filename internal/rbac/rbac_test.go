package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckerDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"student", PermAttemptSubmit, true},
		{"student", PermTestWrite, false},
		{"student", PermAttemptList, false},
		{"teacher", PermTestWrite, true},
		{"teacher", PermTestRead, true}, // via test:*
		{"teacher", PermAttemptStart, false},
		{"admin", "anything:at-all", true},
		{"guest", PermTestList, false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
	if !c.Any("teacher", PermAttemptStart, PermAttemptList) {
		t.Error("Any should match attempt:list for teacher")
	}
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require(PermTestWrite)(ok)

	for role, want := range map[string]int{
		"":        http.StatusForbidden,
		"student": http.StatusForbidden,
		"teacher": http.StatusNoContent,
	} {
		req := httptest.NewRequest(http.MethodPost, "/tests", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("role %q: code = %d, want %d", role, rec.Code, want)
		}
	}
}
