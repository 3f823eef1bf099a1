package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	api "github.com/mind-engage/examportal/internal/api/http"
	auth "github.com/mind-engage/examportal/internal/auth/middleware"
	"github.com/mind-engage/examportal/internal/config"
	"github.com/mind-engage/examportal/internal/db"
	"github.com/mind-engage/examportal/internal/exam"
	"github.com/mind-engage/examportal/internal/grading"
	"github.com/mind-engage/examportal/internal/metrics"
	"github.com/mind-engage/examportal/internal/seed"
	storage "github.com/mind-engage/examportal/internal/storage"
	syncx "github.com/mind-engage/examportal/internal/sync"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grader := grading.NewDefaultGrader()
	m := metrics.New()

	// --- Store + users ---
	var (
		store     exam.Store
		userAdmin auth.UserAdmin
		dbh       *sql.DB
		sinks     syncx.Multi
	)
	if cfg.DBDriver == "memory" {
		store = exam.NewInMemoryStore(grader)
		userAdmin = auth.StaticUsers{}
	} else {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		h, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		cancel()
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		dbh = h
		defer dbh.Close()
		store = exam.NewSQLStore(dbh, cfg.DBDriver, grader)
		userAdmin = auth.NewSQLUsers(dbh)
		sinks = append(sinks, syncx.NewEventRepo(dbh))
	}
	admin := auth.StaticUsers{cfg.AdminUser: {ID: cfg.AdminUser, Username: cfg.AdminUser, PasswordHash: cfg.AdminPassHash, Role: "admin"}}
	users := auth.Chain{admin, userAdmin}

	// --- Events ---
	pub, err := syncx.NewPublisher(cfg.RabbitMQURL, cfg.EventsExchange)
	if err != nil {
		log.Printf("event publisher unavailable, continuing without it: %v", err)
	} else {
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	// --- Submit guard ---
	guard := exam.NewMemoryGuard()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Printf("redis %s unreachable, submit guard is process-local: %v", cfg.RedisAddr, err)
		} else {
			guard = exam.NewRedisGuard(rdb, "")
			defer rdb.Close()
		}
		cancel()
	}

	// --- Blobs ---
	bs, err := storage.NewFSStore(cfg.BlobBasePath, cfg.PublicURL)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	svc := exam.NewService(store,
		exam.WithEvents(sinks),
		exam.WithGuard(guard),
		exam.WithMetrics(m),
		exam.WithURLResolver(bs),
		exam.WithAnswerGrace(cfg.AnswerGrace),
	)

	if cfg.SeedFile != "" {
		f, err := seed.LoadFile(cfg.SeedFile)
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		if err := seed.Apply(ctx, f, svc, userAdmin); err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.Printf("seeded %d tests and %d users from %s", len(f.Tests), len(f.Users), cfg.SeedFile)
	}

	router := api.NewRouter(api.Deps{
		Service:        svc,
		Auth:           auth.NewAuthService(cfg.AuthHMACSecret),
		Users:          users,
		UserAdmin:      userAdmin,
		Blobs:          bs,
		Metrics:        m,
		CORSOrigins:    cfg.CORSOrigins(),
		AllowClaimRole: cfg.AllowClaimRole,
		Ready: func(ctx context.Context) error {
			if dbh == nil {
				return nil
			}
			return dbh.PingContext(ctx)
		},
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
