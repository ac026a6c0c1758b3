package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	SQLitePath  string
	JWTSecret   string

	OpenAIAPIKey string
	OpenAIModel  string

	QuestionTime     time.Duration
	RevealDelay      time.Duration
	StartingDelay    time.Duration
	RoundOverDelay   time.Duration
	TopicChosenDelay time.Duration
}

func Default() Config {
	return Config{
		Port:             "3001",
		SQLitePath:       "trivia.db",
		JWTSecret:        "dev-secret-change-in-production",
		OpenAIModel:      "gpt-4o-mini",
		QuestionTime:     30 * time.Second,
		RevealDelay:      5 * time.Second,
		StartingDelay:    3 * time.Second,
		RoundOverDelay:   10 * time.Second,
		TopicChosenDelay: 2 * time.Second,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Port = raw
	}
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		cfg.DatabaseURL = raw
	}
	if raw := os.Getenv("SQLITE_PATH"); raw != "" {
		cfg.SQLitePath = raw
	}
	if raw := os.Getenv("JWT_SECRET"); raw != "" {
		cfg.JWTSecret = raw
	}
	if raw := os.Getenv("OPENAI_API_KEY"); raw != "" {
		cfg.OpenAIAPIKey = raw
	}
	if raw := os.Getenv("OPENAI_MODEL"); raw != "" {
		cfg.OpenAIModel = raw
	}
	if d, ok := secondsEnv("QUESTION_SECONDS"); ok {
		cfg.QuestionTime = d
	}
	if d, ok := secondsEnv("REVEAL_SECONDS"); ok {
		cfg.RevealDelay = d
	}
	if d, ok := secondsEnv("STARTING_SECONDS"); ok {
		cfg.StartingDelay = d
	}
	if d, ok := secondsEnv("ROUND_OVER_SECONDS"); ok {
		cfg.RoundOverDelay = d
	}
	return cfg
}

func secondsEnv(key string) (time.Duration, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, false
	}
	return time.Duration(value) * time.Second, true
}
