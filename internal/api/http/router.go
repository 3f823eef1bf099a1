package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	auth "github.com/mind-engage/examportal/internal/auth/middleware"
	"github.com/mind-engage/examportal/internal/exam"
	"github.com/mind-engage/examportal/internal/metrics"
	"github.com/mind-engage/examportal/internal/rbac"
	"github.com/mind-engage/examportal/internal/storage"
)

type Deps struct {
	Service *exam.Service
	Auth    *auth.AuthService
	Users   auth.UserStore
	Blobs   storage.BlobStore
	Metrics *metrics.Metrics

	// UserAdmin backs /users; nil leaves those routes unmounted.
	UserAdmin auth.UserAdmin

	CORSOrigins    []string
	AllowClaimRole bool

	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error

	// Quiet drops the per-request access log.
	Quiet bool
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	if !d.Quiet {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(countRequests(d.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Users))

	if d.Blobs != nil {
		r.Route("/assets", func(ar chi.Router) {
			MountAssets(ar, d.Blobs)
		})
	}

	// Protected API (JWT -> stored role -> RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))
		pr.Use(auth.AttachRole(d.Users, d.AllowClaimRole))

		pr.With(rbac.RequireAny(rbac.PermTestList, rbac.PermTestRead)).
			Get("/tests", ListTestsHandler(d.Service))
		pr.With(rbac.Require(rbac.PermTestWrite)).
			Post("/tests", UploadTestHandler(d.Service))
		pr.With(rbac.Require(rbac.PermTestRead)).
			Get("/tests/{testID}", GetTestHandler(d.Service))
		pr.With(rbac.Require(rbac.PermAttemptList)).
			Get("/tests/{testID}/attempts", ListAttemptsHandler(d.Service))

		// Student flow
		pr.With(rbac.Require(rbac.PermAttemptStart)).
			Post("/tests/{testID}/start", StartAttemptHandler(d.Service))
		pr.With(rbac.Require(rbac.PermAttemptAnswer)).
			Post("/tests/{testID}/answer", SaveAnswerHandler(d.Service))
		pr.With(rbac.Require(rbac.PermAttemptSubmit)).
			Post("/tests/{testID}/submit", SubmitAttemptHandler(d.Service))
		pr.With(rbac.Require(rbac.PermAttemptResult)).
			Get("/tests/{testID}/my-result", MyResultHandler(d.Service))

		if d.UserAdmin != nil {
			pr.With(rbac.Require(rbac.PermUserWrite)).
				Post("/users", BulkUpsertUsersHandler(d.UserAdmin))
			pr.With(rbac.Require(rbac.PermUserList)).
				Get("/users", ListUsersHandler(d.UserAdmin))
			pr.With(rbac.Require(rbac.PermUserPassword)).
				Post("/users/change-password", ChangePasswordHandler(d.UserAdmin))
		}
		if d.Blobs != nil {
			pr.With(rbac.Require(rbac.PermAssetWrite)).
				Post("/tests/{testID}/assets", UploadAssetHandler(d.Blobs))
		}
	})

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// countRequests labels by route pattern so path ids don't explode cardinality.
func countRequests(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = r.Method + " " + rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.Request(route, status)
		})
	}
}
