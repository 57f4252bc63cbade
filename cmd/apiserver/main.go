package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	api "github.com/quizdesk/quizdesk/internal/api/http"
	auth "github.com/quizdesk/quizdesk/internal/auth/middleware"
	"github.com/quizdesk/quizdesk/internal/config"
	"github.com/quizdesk/quizdesk/internal/db"
	"github.com/quizdesk/quizdesk/internal/grading"
	"github.com/quizdesk/quizdesk/internal/quiz"
	"github.com/quizdesk/quizdesk/internal/rbac"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	if err := seedAdmin(ctx, dbh, cfg); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	store := quiz.NewSQLStore(dbh, grading.NewDefaultGrader())
	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Protected API (JWT → subject+role in context → role refreshed from DB → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, cfg.AllowClaimRoleFallback))

		// Authoring (teacher/admin)
		pr.With(rbac.Require("quizset:create")).
			Post("/question-sets", api.UploadQuestionSetHandler(store))
		pr.With(rbac.Require("quizset:view")).
			Get("/question-sets", api.ListQuestionSetsHandler(store))
		pr.With(rbac.Require("quizset:view")).
			Get("/question-sets/{setID}", api.GetQuestionSetHandler(store))

		// Student attempt flow
		pr.With(rbac.Require("attempt:create")).
			Post("/attempts", api.StartAttemptHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(store))
		pr.With(rbac.Require("attempt:answer")).
			Post("/attempts/{attemptID}/answers", api.SubmitAnswerHandler(store))
		pr.With(rbac.Require("attempt:finish")).
			Post("/attempts/{attemptID}/finish", api.FinishAttemptHandler(store))
		pr.With(rbac.RequireAny("result:view-own", "result:view-all")).
			Get("/attempts/{attemptID}/result", api.GetResultHandler(store))

		// Reviewer flow: stage marks, then one check commit
		pr.With(rbac.Require("attempt:mark")).
			Post("/question-attempts/{questionAttemptID}/mark", api.MarkQuestionHandler(store))
		pr.With(rbac.Require("attempt:check")).
			Post("/attempts/{attemptID}/check", api.CheckAttemptHandler(store))

		// Users (teacher/admin)
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))
		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", api.ChangePasswordHandler(dbh))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	// Server-side backstop for clients that never deliver their expiry.
	if cfg.EnableSweeper {
		sweeper := quiz.NewSweeper(store)
		if err := sweeper.Start(cfg.SweepSpec); err != nil {
			log.Fatalf("sweeper: %v", err)
		}
		defer sweeper.Stop()
	}

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

// seedAdmin inserts the bootstrap admin user when configured and absent.
func seedAdmin(ctx context.Context, dbh *sql.DB, cfg config.Config) error {
	if cfg.AdminUser == "" || cfg.AdminPassHash == "" {
		return nil
	}
	var exists int
	err := dbh.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username=$1`, cfg.AdminUser).Scan(&exists)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}
	_, err = dbh.ExecContext(ctx,
		`INSERT INTO users (id,username,password_hash,role,created_at) VALUES ($1,$2,$3,'admin',$4)`,
		uuid.NewString(), cfg.AdminUser, cfg.AdminPassHash, time.Now().Unix())
	return err
}
