// Package server is a reference implementation of the notification API the
// client syncs against, backed by SQLite.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/nhle/pmnotify/internal/broker"
	"github.com/nhle/pmnotify/internal/store"
)

const shutdownTimeout = 30 * time.Second

// HintPublisher sends refresh hints to connected clients.
type HintPublisher interface {
	Publish(ctx context.Context, h broker.Hint) error
}

// Options configures a Server.
type Options struct {
	Store  store.Store
	Secret []byte

	// Hints is optional. When set, every created notification is
	// followed by a refresh hint for its recipient.
	Hints HintPublisher

	Logger zerolog.Logger
}

// Server serves the notification and related-entity endpoints.
type Server struct {
	store  store.Store
	secret []byte
	hints  HintPublisher
	logger zerolog.Logger
	router *mux.Router
}

// New creates a Server with all routes registered.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("server: jwt secret is required")
	}

	s := &Server{
		store:  opts.Store,
		secret: opts.Secret,
		hints:  opts.Hints,
		logger: opts.Logger,
		router: mux.NewRouter(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.middlewareAuth)

	getRouter := api.Methods(http.MethodGet).Subrouter()
	getRouter.HandleFunc("/notifications", s.listNotifications)
	getRouter.HandleFunc("/tasks/{id}", s.getTask)
	getRouter.HandleFunc("/comments/{id}", s.getComment)
	getRouter.HandleFunc("/documents/{id}", s.getDocument)

	putRouter := api.Methods(http.MethodPut).Subrouter()
	putRouter.HandleFunc("/notifications/mark-all-read", s.markAllRead)
	putRouter.HandleFunc("/notifications/{id}/read", s.markRead)

	postRouter := api.Methods(http.MethodPost).Subrouter()
	postRouter.HandleFunc("/notifications", s.createNotification)
	postRouter.HandleFunc("/projects", s.createProject)
	postRouter.HandleFunc("/tasks", s.createTask)
	postRouter.HandleFunc("/comments", s.createComment)
	postRouter.HandleFunc("/documents", s.createDocument)

	deleteRouter := api.Methods(http.MethodDelete).Subrouter()
	deleteRouter.HandleFunc("/notifications/{id}", s.deleteNotification)
}

// Handler returns the router wrapped in CORS, recovery and request
// logging.
func (s *Server) Handler() http.Handler {
	cors := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	recovery := gorillaHandlers.RecoveryHandler(
		gorillaHandlers.RecoveryLogger(recoveryLogger{s.logger}),
		gorillaHandlers.PrintRecoveryStack(true),
	)
	logged := gorillaHandlers.CustomLoggingHandler(io.Discard, s.router, s.logRequest)
	return cors(recovery(logged))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("notification server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listening on %s: %w", addr, err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down notification server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func (s *Server) logRequest(_ io.Writer, p gorillaHandlers.LogFormatterParams) {
	s.logger.Debug().
		Str("method", p.Request.Method).
		Str("path", p.URL.Path).
		Int("status", p.StatusCode).
		Int("size", p.Size).
		Dur("elapsed", time.Since(p.TimeStamp)).
		Msg("request")
}

// recoveryLogger adapts zerolog to the recovery handler's Println logger.
type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Msg(fmt.Sprint(v...))
}
