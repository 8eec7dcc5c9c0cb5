package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-crabs/internal/config"
	"github.com/npezzotti/go-crabs/internal/database"
	"github.com/npezzotti/go-crabs/internal/server"
	"github.com/npezzotti/go-crabs/internal/stats"
	"go.uber.org/zap"
)

// Messenger is the messaging surface the HTTP API needs on top of what the
// realtime hub uses.
type Messenger interface {
	server.Messenger
	SweepExpired(ctx context.Context) (int64, error)
}

type CrabApp struct {
	log            *zap.SugaredLogger
	db             database.CrabRepository
	srv            *http.Server
	cs             *server.CrabServer
	presence       server.Presence
	messages       Messenger
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
}

func NewCrabApp(mux *http.ServeMux, logger *zap.SugaredLogger, cs *server.CrabServer, db database.CrabRepository,
	p server.Presence, m Messenger, sp stats.StatsProvider, cfg *config.Config) *CrabApp {
	s := &CrabApp{
		log:            logger,
		db:             db,
		cs:             cs,
		presence:       p,
		messages:       m,
		stats:          sp,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("POST /api/sessions", s.createSession)
	mux.HandleFunc("POST /api/avatars", s.optionalAuth(s.getOrCreateAvatar))
	mux.HandleFunc("GET /api/avatars", s.listAvatars)
	mux.HandleFunc("PUT /api/avatars/position", s.moveAvatar)
	mux.HandleFunc("POST /api/messages", s.postMessage)
	mux.HandleFunc("GET /api/messages", s.listMessages)
	mux.HandleFunc("POST /api/messages/sweep", s.sweepMessages)
	mux.HandleFunc("GET /ws", s.optionalAuth(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *CrabApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *CrabApp) Start() error {
	s.log.Infow("starting server", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *CrabApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
