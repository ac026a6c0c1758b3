package server

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// The gateway translates inbound events into engine calls and engine
// results into room-scoped broadcasts. Every failure becomes a
// sender-only error event; nothing escapes a handler.

func (s *Server) dispatch(c *client, env envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("event handler panicked", "event", env.Event, "conn_id", c.id, "panic", r)
			c.sendError("Internal server error")
		}
	}()

	switch env.Event {
	case "create_game":
		s.handleCreateGame(c, env.Data)
	case "join_game":
		s.handleJoinGame(c, env.Data)
	case "reconnect_host":
		s.handleReconnectHost(c, env.Data)
	case "request_player_list":
		s.handleRequestPlayerList(c, env.Data)
	case "submit_topic":
		s.handleSubmitTopic(c, env.Data)
	case "submit_answer":
		s.handleSubmitAnswer(c, env.Data)
	default:
		c.sendError("Unknown event: " + env.Event)
	}
}

type createGameRequest struct {
	MaxPlayers        any `json:"maxPlayers"`
	RoundsPerPlayer   any `json:"roundsPerPlayer"`
	QuestionsPerRound any `json:"questionsPerRound"`
	Difficulty        any `json:"difficulty"`
}

func (s *Server) handleCreateGame(c *client, data json.RawMessage) {
	var req createGameRequest
	_ = json.Unmarshal(data, &req)

	maxPlayers := clampInt(req.MaxPlayers, 2, 8, 3)
	roundsPerPlayer := clampInt(req.RoundsPerPlayer, 1, 5, 2)
	questionsPerRound := clampInt(req.QuestionsPerRound, 3, 10, 5)
	difficulty := clampDifficulty(req.Difficulty)

	room, err := s.store.CreateRoom(maxPlayers, roundsPerPlayer, questionsPerRound, difficulty, c.id)
	if err != nil {
		s.log.Errorw("create game failed", "conn_id", c.id, "error", err)
		c.sendError("Unable to create game")
		return
	}
	if err := s.persistRoom(room); err != nil {
		s.log.Errorw("persist room failed", "code", room.Code, "error", err)
		c.sendError("Unable to create game")
		return
	}

	s.hub.Join(room.Code, c)
	c.send("game_created", map[string]any{
		"gameCode":          room.Code,
		"maxPlayers":        maxPlayers,
		"roundsPerPlayer":   roundsPerPlayer,
		"questionsPerRound": questionsPerRound,
		"difficulty":        difficulty,
	})
	s.broadcastPlayerList(room.Code)
	s.log.Infow("game created", "code", room.Code, "max_players", maxPlayers, "rounds_per_player", roundsPerPlayer, "questions_per_round", questionsPerRound, "difficulty", difficulty)
}

type joinGameRequest struct {
	Username string `json:"username"`
	GameCode string `json:"gameCode"`
}

func (s *Server) handleJoinGame(c *client, data json.RawMessage) {
	var req joinGameRequest
	_ = json.Unmarshal(data, &req)

	username := strings.TrimSpace(req.Username)
	code, ok := normalizeCode(req.GameCode)
	if username == "" || !ok {
		c.sendError("Invalid join payload")
		return
	}

	room, found := s.store.GetRoom(code)
	if !found {
		c.sendError("Game not found")
		return
	}

	s.hub.Join(code, c)
	player, rejoined, err := s.store.UpsertPlayer(code, username, c.userID, c.id)
	if err != nil {
		s.hub.Leave(code, c)
		c.sendError(err.Error())
		return
	}
	if err := s.persistPlayer(room, player); err != nil {
		// The seat is held in memory; a retry rejoins the same row and
		// re-attempts the mirror write.
		s.log.Errorw("persist player failed", "code", code, "player", username, "error", err)
		c.sendError("Unable to join game")
		return
	}

	count := s.store.PlayerCount(code)
	if room.Phase == phaseLobby && count == room.MaxPlayers {
		s.setPhase(code, phaseStarting, -1)
		s.hub.Broadcast(code, "game_started", nil)
		sess := s.registry.GetOrCreate(code)
		sess.mu.Lock()
		s.armNextTimer(sess, s.cfg.StartingDelay, func() { s.startTopicSelection(code) })
		sess.mu.Unlock()
		s.log.Infow("game starting", "code", code, "players", count)
	} else if rejoined && room.Phase != phaseLobby {
		c.send("game_started", nil)
		if room.Phase == phaseQuestion {
			s.replayQuestion(c, code, room)
		}
	}
	s.broadcastPlayerList(code)
	s.log.Infow("player joined", "code", code, "player", username, "rejoined", rejoined)
}

// replayQuestion rebuilds a question payload for a mid-question rejoin.
// It reads the static bank by raw cyclic index, not the round's generated
// content, and reports the running question index as the round number.
func (s *Server) replayQuestion(c *client, code string, room Room) {
	sess, ok := s.registry.Get(code)
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	players := s.store.ActivePlayers(code)
	question := fallbackBank[sess.questionIndex%len(fallbackBank)]
	c.send("question_start", map[string]any{
		"text":        question.Text,
		"options":     question.Options,
		"round":       sess.questionIndex + 1,
		"totalRounds": room.RoundsPerPlayer * len(players),
		"timeLimit":   int(s.cfg.QuestionTime / time.Second),
	})
}

type roomCodeRequest struct {
	GameCode string `json:"gameCode"`
}

func (s *Server) handleReconnectHost(c *client, data json.RawMessage) {
	var req roomCodeRequest
	_ = json.Unmarshal(data, &req)

	code, ok := normalizeCode(req.GameCode)
	if !ok {
		c.sendError("Invalid game code")
		return
	}
	room, err := s.store.UpdateRoom(code, func(r *Room) error {
		r.HostConnID = c.id
		return nil
	})
	if err != nil {
		c.sendError("Game not found")
		return
	}
	if err := s.persistHostConn(room); err != nil {
		s.log.Errorw("persist host connection failed", "code", code, "error", err)
		c.sendError("Unable to reconnect host")
		return
	}

	s.hub.Join(code, c)
	c.send("host_reconnected", map[string]any{
		"gameCode":          room.Code,
		"gameState":         room.Phase,
		"maxPlayers":        room.MaxPlayers,
		"roundsPerPlayer":   room.RoundsPerPlayer,
		"questionsPerRound": room.QuestionsPerRound,
		"currentRound":      room.CurrentRound,
		"difficulty":        room.Difficulty,
	})
	s.broadcastPlayerList(code)
	s.log.Infow("host reconnected", "code", code, "conn_id", c.id)
}

func (s *Server) handleRequestPlayerList(c *client, data json.RawMessage) {
	var req roomCodeRequest
	_ = json.Unmarshal(data, &req)

	code, ok := normalizeCode(req.GameCode)
	if !ok {
		c.sendError("Invalid game code")
		return
	}
	c.send("update_player_list", playerList(s.store.ActivePlayers(code)))
}

type submitTopicRequest struct {
	GameCode string `json:"gameCode"`
	Topic    string `json:"topic"`
}

func (s *Server) handleSubmitTopic(c *client, data json.RawMessage) {
	var req submitTopicRequest
	_ = json.Unmarshal(data, &req)

	topic := strings.TrimSpace(req.Topic)
	code, ok := normalizeCode(req.GameCode)
	if topic == "" || !ok {
		c.sendError("Invalid topic payload")
		return
	}
	if err := s.handleTopicSubmission(code, topic, c.id); err != nil {
		c.sendError(err.Error())
	}
}

type submitAnswerRequest struct {
	GameCode    string   `json:"gameCode"`
	AnswerIndex *float64 `json:"answerIndex"`
	Answer      *string  `json:"answer"`
}

func (s *Server) handleSubmitAnswer(c *client, data json.RawMessage) {
	var req submitAnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("Invalid answer payload")
		return
	}
	code, ok := normalizeCode(req.GameCode)
	if !ok {
		c.sendError("Invalid answer payload")
		return
	}
	if req.AnswerIndex == nil && req.Answer == nil {
		c.sendError("Invalid answer payload: must provide answerIndex or answer")
		return
	}

	var rec answerRecord
	if req.AnswerIndex != nil {
		index := int(*req.AnswerIndex)
		if index < 0 || index > 3 {
			c.sendError("Invalid answer index")
			return
		}
		rec.choice = index
		rec.hasChoice = true
	}
	if req.Answer != nil {
		rec.text = *req.Answer
		rec.hasText = true
	}

	if err := s.recordAnswer(code, c.id, rec); err != nil {
		if errors.Is(err, errRoomNotFound) {
			err = errNotAccepting
		}
		c.sendError(err.Error())
	}
}

// handleDisconnect detaches the connection from every room membership it
// holds (scores persist) and notifies the affected rooms.
func (s *Server) handleDisconnect(c *client) {
	affected := s.store.DetachConnection(c.id)
	if err := s.persistDisconnect(c.id); err != nil {
		s.log.Errorw("persist disconnect failed", "conn_id", c.id, "error", err)
	}
	for _, code := range affected {
		s.broadcastPlayerList(code)
	}
	s.hub.RemoveClient(c)
}

func (s *Server) broadcastPlayerList(code string) {
	s.hub.Broadcast(code, "update_player_list", playerList(s.store.ActivePlayers(code)))
}

func playerList(players []Player) []playerInfo {
	list := make([]playerInfo, 0, len(players))
	for _, p := range players {
		list = append(list, playerInfo{ID: p.ID, Username: p.Name, Score: p.Score, IsHost: p.IsHost})
	}
	return list
}
