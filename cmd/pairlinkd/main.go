package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/pairloop/pairlink/internal/api"
	"github.com/pairloop/pairlink/internal/auth"
	"github.com/pairloop/pairlink/internal/config"
	"github.com/pairloop/pairlink/pkg/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	serverCtx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	db, err := sql.Open("sqlite3", "file:"+cfg.SQLite.File)
	if err != nil {
		logger.Error("open db", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	goose.SetBaseFS(os.DirFS(cfg.SQLite.Migrations))
	if err := goose.SetDialect("sqlite3"); err != nil {
		logger.Error("goose dialect", slog.String("err", err.Error()))
		os.Exit(1)
	}
	if err := goose.Up(db, "."); err != nil {
		logger.Error("migrate up", slog.String("err", err.Error()))
		os.Exit(1)
	}

	a := api.New(serverCtx, db, api.Config{
		TokenOptions: auth.TokenOptions{
			Secret: cfg.Auth.Secret,
			Exp:    cfg.Auth.TokenTTL,
		},
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)

	a.Hub().Start()

	srv := server.Server{
		Server: &http.Server{
			Handler: a.Mux(),
			Addr:    fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port),
		},
		Logger: logger,
		CleanUpFuncs: []func(ctx context.Context){
			func(ctx context.Context) {
				a.Hub().Close()
			},
		},
	}

	srv.Start(serverCtx)
}
