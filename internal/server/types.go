package server

import "time"

const (
	phaseLobby          = "LOBBY"
	phaseStarting       = "STARTING"
	phaseTopicSelection = "TOPIC_SELECTION"
	phaseQuestion       = "QUESTION"
	phaseReveal         = "REVEAL"
	phaseRoundOver      = "ROUND_OVER"
	phaseGameOver       = "GAME_OVER"
)

const (
	questionMultipleChoice = "multiple_choice"
	questionFreeText       = "free_text"
)

var allowedDifficulties = []string{"Easy", "Medium", "Hard", "Mixed"}

const defaultDifficulty = "Mixed"

type Room struct {
	Code              string
	DBID              uint
	HostConnID        string
	Phase             string
	MaxPlayers        int
	RoundsPerPlayer   int
	QuestionsPerRound int
	Difficulty        string
	CurrentRound      int
	Players           []Player
}

type Player struct {
	ID       int
	ConnID   string
	Name     string
	UserID   uint
	Score    int
	IsHost   bool
	JoinedAt time.Time
}

// Connected reports whether the player currently has a live connection.
func (p Player) Connected() bool {
	return p.ConnID != ""
}

type Question struct {
	Type                 string
	Text                 string
	Options              []string
	Correct              int
	AcceptedAnswers      []string
	CorrectAnswerDisplay string
}

// RoundContent is a themed set of questions for one round.
type RoundContent struct {
	Title     string
	Questions []Question
}

type playerInfo struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	IsHost   bool   `json:"isHost"`
}

type scoreEntry struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

type revealScoreEntry struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	Points   int    `json:"points"`
}

type rankedEntry struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}
