// internal/auth/middleware/attach_role.go
package auth

import (
	"errors"
	"log"
	"net/http"

	"github.com/mind-engage/examportal/internal/rbac"
)

// AttachRole replaces the token's role with the one stored for the subject,
// so demotions apply before the token expires. allowClaimFallback=true in
// offline mode keeps the claim role when the user is unknown to the store.
func AttachRole(users UserStore, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx) // set by JWTMiddleware

			u, err := users.FindUser(ctx, sub)
			switch {
			case err == nil && u.Role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, u.Role)))
			case errors.Is(err, ErrUserNotFound) && allowClaimFallback && claimRole != "":
				next.ServeHTTP(w, r)
			case err != nil && !errors.Is(err, ErrUserNotFound):
				log.Printf("auth: role lookup for %q: %v", sub, err)
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
