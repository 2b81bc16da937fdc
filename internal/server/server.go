// Package server wires the application together: database, catalog,
// services, handlers, middleware, and routes. It is the composition root —
// every dependency is constructed and connected here, and main.go only
// supplies configuration.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/campushq/handbook/internal/auth"
	"github.com/campushq/handbook/internal/catalog"
	"github.com/campushq/handbook/internal/handler"
	"github.com/campushq/handbook/internal/middleware"
	sqliteRepo "github.com/campushq/handbook/internal/repository/sqlite"
	"github.com/campushq/handbook/internal/service"
)

// Config holds everything the server needs that the caller decides.
type Config struct {
	Port        int
	DBPath      string
	JWTSecret   string
	CatalogDir  string // directory holding courses.json and programs.json
	EmailDomain string // institutional mail domain; empty means the default
	CORSOrigins []string
}

// Server is the HTTP server with its owned resources.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB // closed on shutdown
}

// New builds the full dependency graph and registers all routes.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes assembles middleware, services and handlers.
//
// Middleware order: RequestID first so the logger can tag lines with it,
// Recoverer before anything that might panic, CORS ahead of the routes it
// protects.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	cat, err := catalog.Load(s.config.CatalogDir)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	// Services receive repository interfaces; s.db satisfies all three.
	authSvc := service.NewAuthService(s.db, s.db, tokens, auth.NewPasswordService(),
		s.config.EmailDomain, s.logger)
	userSvc := service.NewUserService(s.db, cat, s.logger)
	courseSvc := service.NewCourseService(s.db, cat, s.logger)

	authHandler := handler.NewAuthHandler(authSvc, s.logger)
	userHandler := handler.NewUserHandler(userSvc, s.logger)
	courseHandler := handler.NewCourseHandler(courseSvc, s.logger)

	requireAuth := auth.RequireAuth(tokens)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/requestCode", authHandler.HandleRequestCode)
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		// Authenticated by the refresh token itself, not the middleware.
		r.Post("/refreshToken", authHandler.HandleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/submitNickname", authHandler.HandleSubmitNickname)
		})
	})

	s.router.Route("/users", func(r chi.Router) {
		r.Get("/{username}/courseslist", userHandler.HandleListCourses)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", userHandler.HandleMe)
			r.Put("/profile", userHandler.HandleUpdateProfile)
			r.Post("/{username}/courseslist", userHandler.HandleAddCourses)
			r.Put("/{username}/courseslist", userHandler.HandleReplaceCourses)
			r.Delete("/{username}/courseslist", userHandler.HandleRemoveCourses)
		})
	})

	s.router.Route("/course", func(r chi.Router) {
		// "recommend" must be registered before "{code}" so chi does not
		// treat it as a course code.
		r.Get("/recommend", courseHandler.HandleRecommend)
		r.Get("/{code}", courseHandler.HandleInfo)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/comment", courseHandler.HandleCreateComment)
			r.Delete("/comment/{id}", courseHandler.HandleDeleteComment)
		})
	})

	s.router.Route("/program", func(r chi.Router) {
		r.Get("/{code}", courseHandler.HandleProgram)
		r.Get("/{code}/courses", courseHandler.HandleProgramCourses)
	})

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then drains in-flight
// requests and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("catalog", s.config.CatalogDir),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
