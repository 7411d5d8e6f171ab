// Package api wires the REST endpoints and the websocket push channel of
// the pairlink server.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/cors"
	"github.com/pairloop/pairlink/internal/auth"
	"github.com/pairloop/pairlink/internal/hub"
	"github.com/pairloop/pairlink/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	TokenOptions   auth.TokenOptions
	AllowedOrigins []string
}

type Api struct {
	db     *sql.DB
	mux    *Mux
	hub    *hub.Hub
	config Config
	logger *slog.Logger
}

func New(ctx context.Context, db *sql.DB, config Config, logger *slog.Logger) *Api {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Api{
		db:     db,
		mux:    NewMux(),
		hub:    hub.New(hub.WithBaseContext(ctx), hub.WithLogger(logger)),
		config: config,
		logger: logger,
	}
	a.mountHandlers()
	return a
}

func (a *Api) Mux() http.Handler {
	return a.mux
}

// Hub returns the push channel hub so the caller can start and close it
// with the server lifecycle.
func (a *Api) Hub() *hub.Hub {
	return a.hub
}

func (a *Api) mountHandlers() {
	st := store.NewSQLiteStore(a.db)

	userHandler := NewUserHandler(st, a.config.TokenOptions)
	coupleHandler := NewCoupleHandler(st, st, a.config.TokenOptions)
	chatHandler := NewChatHandler(st, st)
	wsHandler := NewWSHandler(a.hub, st, st, st, a.config.TokenOptions.Secret, a.logger)

	origins := a.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	a.mux.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
	}))

	authed := auth.Middleware(a.config.TokenOptions.Secret)

	a.mux.Route("/users", func(r *Mux) {
		r.Post("/signup", userHandler.SignupHandler)
		r.Post("/signin", userHandler.SigninHandler)
		r.With(authed).Get("/me", userHandler.MeHandler)
	})

	a.mux.Route("/couple", func(r *Mux) {
		r.With(authed).Post("/invite", coupleHandler.InviteHandler)
		r.With(authed).Post("/join", coupleHandler.JoinHandler)
	})

	a.mux.With(authed).Get("/chat", chatHandler.GetHistoryHandler)

	a.mux.Router.Get("/ws", wsHandler.ServeHTTP)

	a.mux.Router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, map[string]string{"status": "ok"})
	})
	a.mux.Router.Handle("/metrics", promhttp.Handler())
}
