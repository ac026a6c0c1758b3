package server

import (
	"net/http"

	"trivia-night/internal/config"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server owns the in-memory room state, live websocket connections and
// the durable mirror. All game state lives in the store; the database
// handle may be nil, in which case persistence is skipped entirely.
type Server struct {
	store     *Store
	registry  *sessionRegistry
	hub       *wsHub
	db        *gorm.DB
	cfg       config.Config
	log       *zap.SugaredLogger
	questions questionSource
}

func New(conn *gorm.DB, cfg config.Config, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		store:     NewStore(),
		registry:  newSessionRegistry(),
		hub:       newWSHub(),
		db:        conn,
		cfg:       cfg,
		log:       log,
		questions: newOpenAIQuestions(cfg.OpenAIAPIKey, cfg.OpenAIModel, log),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleHealth)
	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	return mux
}
