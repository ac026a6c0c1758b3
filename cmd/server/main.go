package main

import (
	"net/http"

	"trivia-night/internal/config"
	"trivia-night/internal/db"
	"trivia-night/internal/server"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Warnw("load .env", "error", err)
	}
	cfg := config.Load()

	conn, err := db.Open(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalw("open database", "error", err)
	}
	if err := db.Migrate(conn); err != nil {
		log.Fatalw("migrate database", "error", err)
	}

	srv := server.New(conn, cfg, log)
	addr := ":" + cfg.Port
	log.Infow("trivia-night server listening", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
}
