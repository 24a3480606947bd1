// Package server is the composition root: it builds every dependency from
// the configuration, wires handlers to routes and runs the HTTP server.
//
// DEPENDENCY FLOW:
//
//	config → sqlite.DB ─┐
//	         object store → imaging.Pipeline ─┐
//	         mailer ──────────────────────────┼→ services → handlers → chi routes
//	         metrics ─────────────────────────┘
//
// Handlers only see services; services only see repository interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/tripsync/internal/auth"
	"github.com/sakif/tripsync/internal/config"
	"github.com/sakif/tripsync/internal/handler"
	"github.com/sakif/tripsync/internal/imaging"
	"github.com/sakif/tripsync/internal/mail"
	"github.com/sakif/tripsync/internal/metrics"
	"github.com/sakif/tripsync/internal/middleware"
	sqliteRepo "github.com/sakif/tripsync/internal/repository/sqlite"
	"github.com/sakif/tripsync/internal/service"
	"github.com/sakif/tripsync/internal/storage"
	"github.com/sakif/tripsync/internal/storage/memstore"
	"github.com/sakif/tripsync/internal/storage/minio"
)

// Deps are the outside-world dependencies. New fills the zero fields from
// the configuration; tests pass their own.
type Deps struct {
	Store  storage.ObjectStore
	Mailer mail.Mailer
	GitHub handler.GitHubAuth
}

// Server owns the router and the database handle.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *metrics.Metrics
}

// New opens the database and builds the full handler tree.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps Deps) (*Server, error) {
	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := fillDeps(ctx, cfg, logger, &deps); err != nil {
		db.Close()
		return nil, err
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}
	if err := s.setupRoutes(deps); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// fillDeps picks the MinIO bucket or the in-memory store, SMTP or the
// logging mailer, and the GitHub provider when it is configured.
func fillDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Deps) error {
	if deps.Store == nil {
		if cfg.MinIOEnabled() {
			store, err := minio.New(ctx, minio.Config{
				Endpoint:  cfg.MinIO.Endpoint,
				AccessKey: cfg.MinIO.AccessKey,
				SecretKey: cfg.MinIO.SecretKey,
				Bucket:    cfg.MinIO.Bucket,
				UseSSL:    cfg.MinIO.UseSSL,
				PublicURL: cfg.MinIO.PublicURL,
			}, logger)
			if err != nil {
				return fmt.Errorf("connecting object store: %w", err)
			}
			deps.Store = store
		} else {
			logger.Warn("MINIO_ENDPOINT not set: images are kept in memory and lost on restart")
			deps.Store = memstore.New(cfg.BaseURL + "/objects")
		}
	}

	if deps.Mailer == nil {
		if cfg.SMTPEnabled() {
			deps.Mailer = mail.NewSMTP(mail.SMTPConfig{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
				From:     cfg.SMTP.From,
			}, logger)
		} else {
			logger.Warn("SMTP_HOST not set: password reset emails are logged, not sent")
			deps.Mailer = mail.NewLogMailer(logger)
		}
	}

	if deps.GitHub == nil && cfg.GitHubEnabled() {
		deps.GitHub = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	}
	return nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes wires middleware and routes.
//
// MIDDLEWARE ORDER:
//  1. RequestID, RealIP: request metadata for the logs
//  2. Logger: one line per request
//  3. Recoverer: a panic becomes a 500
//  4. MethodOverride: must run before chi matches the route
//  5. Identify: every handler can see who is calling
func (s *Server) setupRoutes(deps Deps) error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return err
	}

	stores := service.Stores{Users: s.db.Users(), Folders: s.db.Folders(), Files: s.db.Files(), Tx: s.db}
	images := imaging.New(deps.Store, imaging.Config{
		Quality:      s.config.ImageQuality,
		MaxDimension: s.config.ImageMaxDimension,
	}, s.logger, s.metrics)
	gate := auth.NewGate(tokens, s.db.Users())

	accounts := service.NewAccountService(stores, images, auth.NewPasswordService(), tokens, deps.Mailer, s.config.BaseURL, s.metrics, s.logger)
	folders := service.NewFolderService(stores, images, s.metrics, s.logger)
	files := service.NewFileService(stores, images, s.metrics, s.logger)
	sharing := service.NewSharingService(stores, s.metrics, s.logger)
	notifications := service.NewNotificationService(stores, s.logger)

	render := handler.JSONRenderer{}
	users := handler.NewUserHandler(accounts, gate, deps.GitHub, render, s.logger)
	folderH := handler.NewFolderHandler(folders, sharing, render, s.logger)
	fileH := handler.NewFileHandler(files, s.logger)
	activity := handler.NewActivityHandler(notifications, sharing, render, s.logger)

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.MethodOverride)
	r.Use(auth.Identify(gate))

	r.Get("/", users.HandleLanding)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/healthz", s.handleHealth)

	r.Route("/users", func(r chi.Router) {
		r.Get("/login", users.HandleLoginPage)
		r.Post("/login", users.HandleLogin)
		r.Get("/register", users.HandleRegisterPage)
		r.Post("/register", users.HandleRegister)
		r.Get("/logout", users.HandleLogout)
		r.Get("/forgotPassword", users.HandleForgotPage)
		r.Post("/sendPasswordResetEmail", users.HandleSendReset)
		r.Get("/resetPassword", users.HandleResetPage)
		r.Put("/resetPassword", users.HandleReset)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Get("/", users.HandleSearch)
			r.Get("/settings", users.HandleSettingsPage)
			r.Put("/settings", users.HandleSettings)
			r.Get("/delete", users.HandleDeletePage)
			r.Delete("/delete", users.HandleDelete)
		})
	})

	r.Get("/auth/github/login", users.HandleGitHubLogin)
	r.Get("/auth/github/callback", users.HandleGitHubCallback)

	r.Route("/tripFolders", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/", folderH.HandleList)
		r.Post("/", folderH.HandleCreate)
		r.Route("/{folderID}", func(r chi.Router) {
			r.Get("/", folderH.HandleShow)
			r.Put("/", folderH.HandleUpdate)
			r.Delete("/", folderH.HandleDelete)
			r.Put("/leave", folderH.HandleLeave)
			r.Post("/invite", folderH.HandleInvite)
			r.Post("/files", fileH.HandleUpload)
			r.Put("/files/{fileID}", fileH.HandleEdit)
			r.Delete("/files/{fileID}", fileH.HandleDelete)
			r.Get("/files/{fileID}/download", fileH.HandleDownload)
		})
	})

	r.Route("/activityCenter", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/", activity.HandleShow)
		r.Put("/deleteNotification", activity.HandleDeleteNotification)
		r.Put("/{tripID}/{userID}/acceptIncomingRequest", activity.HandleAccept)
		r.Put("/{tripID}/{userID}/declineIncomingRequest", activity.HandleDecline)
		r.Put("/{tripID}/{userID}/cancelOutgoingRequest", activity.HandleCancel)
	})

	// The in-memory store has no server of its own; expose it so image
	// URLs resolve in development.
	if mem, ok := deps.Store.(*memstore.Store); ok {
		r.Get("/objects/{key}", objectHandler(mem))
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second, // large downloads
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.BaseURL),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
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
