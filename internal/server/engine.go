package server

import (
	"context"
	"math"
	"sort"
	"time"
)

// The round/phase engine. Transitions are triggered either by a gateway
// event or by an armed timer firing; all transitions for one room
// serialize on the session lock, so exactly one reveal executes per
// question no matter which trigger wins.

func (s *Server) startTopicSelection(code string) {
	sess := s.registry.GetOrCreate(code)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.startTopicSelectionLocked(code, sess)
}

func (s *Server) startTopicSelectionLocked(code string, sess *session) {
	room, ok := s.store.GetRoom(code)
	if !ok {
		return
	}
	players := s.store.ActivePlayers(code)
	if len(players) == 0 {
		return
	}
	totalRounds := room.RoundsPerPlayer * len(players)
	if sess.round >= totalRounds {
		s.endGameLocked(code, sess)
		return
	}

	sess.round++
	sess.questionIndex = (sess.round - 1) * room.QuestionsPerRound
	sess.topic = ""
	sess.roundTitle = ""
	sess.roundQuestions = nil

	picker := players[sess.pickerIndex%len(players)]
	sess.pickerIndex++

	s.setPhase(code, phaseTopicSelection, sess.round)

	if picker.ConnID != "" {
		s.hub.SendTo(picker.ConnID, "topic_request", map[string]any{
			"round":       sess.round,
			"totalRounds": totalRounds,
		})
	}
	s.hub.Broadcast(code, "topic_waiting", map[string]any{
		"pickerUsername": picker.Name,
		"round":          sess.round,
		"totalRounds":    totalRounds,
	})
	s.log.Infow("topic selection started", "code", code, "round", sess.round, "total_rounds", totalRounds, "picker", picker.Name)
}

// handleTopicSubmission validates the submitter, announces the topic and
// generates the round's content before the first question is scheduled:
// players must never see a question screen before content exists.
func (s *Server) handleTopicSubmission(code, topic, connID string) error {
	sess, ok := s.registry.Get(code)
	if !ok {
		return errSessionNotFound
	}

	sess.mu.Lock()
	room, ok := s.store.GetRoom(code)
	if !ok || room.Phase != phaseTopicSelection {
		sess.mu.Unlock()
		return errWrongPhase
	}
	players := s.store.ActivePlayers(code)
	if len(players) == 0 || sess.pickerIndex == 0 {
		sess.mu.Unlock()
		return errWrongPhase
	}
	expected := players[(sess.pickerIndex-1)%len(players)]
	submitter, ok := s.store.PlayerByConn(code, connID)
	if !ok || submitter.ID != expected.ID {
		sess.mu.Unlock()
		return errNotPicker
	}
	sess.topic = topic
	round := sess.round
	count := room.QuestionsPerRound
	difficulty := room.Difficulty
	sess.mu.Unlock()

	s.hub.Broadcast(code, "topic_chosen", map[string]any{
		"topic":          topic,
		"pickerUsername": expected.Name,
	})

	content := s.questions.RoundContent(context.Background(), topic, count, difficulty)
	if err := validateRoundContent(content); err != nil {
		// A misbehaving source degrades to the raw topic as title; the
		// empty question list falls through to the built-in bank.
		s.log.Warnw("generated content rejected", "code", code, "topic", topic, "error", err)
		content = RoundContent{Title: topic}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.round != round || sess.topic != topic {
		return nil
	}
	sess.roundTitle = content.Title
	sess.roundQuestions = content.Questions
	s.armNextTimer(sess, s.cfg.TopicChosenDelay, func() { s.startQuestion(code) })
	s.log.Infow("topic chosen", "code", code, "round", round, "topic", topic, "questions", len(content.Questions))
	return nil
}

func (s *Server) startQuestion(code string) {
	sess, ok := s.registry.Get(code)
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	room, ok := s.store.GetRoom(code)
	if !ok {
		sess.clearTimers()
		return
	}
	players := s.store.ActivePlayers(code)

	s.setPhase(code, phaseQuestion, -1)
	sess.answers = make(map[int]answerRecord)
	sess.questionStartedAt = time.Now()
	sess.revealing = false

	question := currentQuestion(sess, room)
	questionNumber := sess.questionIndex - (sess.round-1)*room.QuestionsPerRound + 1

	payload := map[string]any{
		"type":              question.Type,
		"text":              question.Text,
		"round":             sess.round,
		"totalRounds":       room.RoundsPerPlayer * len(players),
		"questionNumber":    questionNumber,
		"questionsPerRound": room.QuestionsPerRound,
		"topic":             sess.topic,
		"title":             sess.roundTitle,
		"timeLimit":         int(s.cfg.QuestionTime / time.Second),
	}
	if question.Type == questionMultipleChoice {
		payload["options"] = question.Options
	}
	s.hub.Broadcast(code, "question_start", payload)

	s.armQuestionTimer(sess, code)
}

// currentQuestion selects the question for the session's running index:
// the generated set when the round has one, else the built-in bank cycled
// by the raw index.
func currentQuestion(sess *session, room Room) Question {
	offset := sess.questionIndex - (sess.round-1)*room.QuestionsPerRound
	if offset >= 0 && offset < len(sess.roundQuestions) {
		return sess.roundQuestions[offset]
	}
	return fallbackBank[sess.questionIndex%len(fallbackBank)]
}

// recordAnswer stores one answer per player per question; a second
// submission is silently ignored. When the last connected player answers,
// the pending timeout is cancelled and the reveal runs on this path.
func (s *Server) recordAnswer(code, connID string, rec answerRecord) error {
	sess, ok := s.registry.Get(code)
	if !ok {
		return errSessionNotFound
	}
	player, ok := s.store.PlayerByConn(code, connID)
	if !ok {
		return errPlayerNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	room, ok := s.store.GetRoom(code)
	if !ok || room.Phase != phaseQuestion {
		return errNotAccepting
	}
	if _, exists := sess.answers[player.ID]; exists {
		return nil
	}
	rec.submittedAt = time.Now()
	sess.answers[player.ID] = rec

	if room.HostConnID != "" {
		s.hub.SendTo(room.HostConnID, "player_answered", map[string]any{
			"playerId": player.ID,
			"username": player.Name,
		})
	}

	for _, p := range s.store.ActivePlayers(code) {
		if _, answered := sess.answers[p.ID]; !answered {
			return nil
		}
	}
	stopTimer(&sess.questionTimer)
	s.revealAnswerLocked(code, sess)
	return nil
}

// revealAnswer is the question-timeout path.
func (s *Server) revealAnswer(code string) {
	sess, ok := s.registry.Get(code)
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.revealAnswerLocked(code, sess)
}

func (s *Server) revealAnswerLocked(code string, sess *session) {
	if sess.revealing {
		return
	}
	room, ok := s.store.GetRoom(code)
	if !ok || room.Phase != phaseQuestion {
		return
	}
	sess.revealing = true
	stopTimer(&sess.questionTimer)

	question := currentQuestion(sess, room)

	// Close the submission window before scoring.
	s.setPhase(code, phaseReveal, -1)

	earned := make(map[int]int)
	for _, player := range s.store.ActivePlayers(code) {
		rec, answered := sess.answers[player.ID]
		if !answered || !answerCorrect(question, rec) {
			continue
		}
		points := scorePoints(rec.submittedAt.Sub(sess.questionStartedAt), s.cfg.QuestionTime)
		earned[player.ID] = points
		if score, ok := s.store.AddScore(code, player.ID, points); ok {
			if err := s.persistScore(room, player.Name, score); err != nil {
				s.log.Errorw("persist score failed", "code", code, "player", player.Name, "error", err)
			}
		}
	}

	updated := s.store.ActivePlayers(code)
	scores := make([]revealScoreEntry, 0, len(updated))
	for _, p := range updated {
		scores = append(scores, revealScoreEntry{ID: p.ID, Username: p.Name, Score: p.Score, Points: earned[p.ID]})
	}
	payload := map[string]any{"scores": scores}
	if question.Type == questionFreeText {
		payload["correctAnswer"] = question.CorrectAnswerDisplay
	} else {
		payload["correctIndex"] = question.Correct
	}
	s.hub.Broadcast(code, "round_reveal", payload)

	sess.questionIndex++
	answeredInRound := sess.questionIndex - (sess.round-1)*room.QuestionsPerRound
	if answeredInRound >= room.QuestionsPerRound {
		s.armNextTimer(sess, s.cfg.RevealDelay, func() { s.startRoundOver(code) })
	} else {
		s.armNextTimer(sess, s.cfg.RevealDelay, func() { s.startQuestion(code) })
	}
}

func answerCorrect(question Question, rec answerRecord) bool {
	switch question.Type {
	case questionFreeText:
		return rec.hasText && matchesAnswer(rec.text, question.AcceptedAnswers)
	default:
		return rec.hasChoice && rec.choice == question.Correct
	}
}

// scorePoints decays linearly from 100 for an instant answer down to a
// floor of 10 at or beyond the time limit.
func scorePoints(elapsed, limit time.Duration) int {
	ratio := 1.0
	if limit > 0 {
		ratio = float64(elapsed) / float64(limit)
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	points := int(math.Round(100 - 90*ratio))
	if points < 10 {
		points = 10
	}
	if points > 100 {
		points = 100
	}
	return points
}

func (s *Server) startRoundOver(code string) {
	sess, ok := s.registry.Get(code)
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	room, ok := s.store.GetRoom(code)
	if !ok {
		sess.clearTimers()
		return
	}

	s.setPhase(code, phaseRoundOver, -1)

	players := s.store.ActivePlayers(code)
	totalRounds := room.RoundsPerPlayer * len(players)
	scores := sortedScores(players)
	s.hub.Broadcast(code, "round_over", map[string]any{
		"scores":      scores,
		"round":       sess.round,
		"totalRounds": totalRounds,
	})

	lastRound := sess.round >= totalRounds
	s.armRoundOverTimer(sess, s.cfg.RoundOverDelay, func() {
		if lastRound {
			s.endGame(code)
		} else {
			s.startTopicSelection(code)
		}
	})
}

func (s *Server) endGame(code string) {
	sess, ok := s.registry.Get(code)
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.endGameLocked(code, sess)
}

// endGameLocked is the sole terminal transition: final ranking, result
// rows, membership cleanup and session teardown. The room row stays with
// phase GAME_OVER so its code is not reused while it exists.
func (s *Server) endGameLocked(code string, sess *session) {
	room, ok := s.store.GetRoom(code)
	if !ok {
		sess.clearTimers()
		s.registry.Delete(code)
		return
	}
	sess.clearTimers()
	s.setPhase(code, phaseGameOver, -1)

	ranked := rankPlayers(s.store.ActivePlayers(code))
	s.hub.Broadcast(code, "game_over", map[string]any{"scores": ranked})

	if err := s.persistResults(room, ranked); err != nil {
		s.log.Errorw("persist results failed", "code", code, "error", err)
	}
	s.store.DeletePlayers(code)
	if err := s.deletePlayerRows(room); err != nil {
		s.log.Errorw("delete player rows failed", "code", code, "error", err)
	}
	s.registry.Delete(code)
	s.log.Infow("game over", "code", code, "players", len(ranked))
}

func sortedScores(players []Player) []scoreEntry {
	scores := make([]scoreEntry, 0, len(players))
	for _, p := range players {
		scores = append(scores, scoreEntry{ID: p.ID, Username: p.Name, Score: p.Score})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	return scores
}

// rankPlayers orders descending by score; ties keep join order.
func rankPlayers(players []Player) []rankedEntry {
	ordered := make([]Player, len(players))
	copy(ordered, players)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})
	ranked := make([]rankedEntry, 0, len(ordered))
	for i, p := range ordered {
		ranked = append(ranked, rankedEntry{ID: p.ID, Username: p.Name, Score: p.Score, Rank: i + 1})
	}
	return ranked
}

// setPhase updates the room's phase (and round counter when >= 0) and
// mirrors the change durably.
func (s *Server) setPhase(code, phase string, round int) {
	room, err := s.store.UpdateRoom(code, func(r *Room) error {
		r.Phase = phase
		if round >= 0 {
			r.CurrentRound = round
		}
		return nil
	})
	if err != nil {
		return
	}
	if err := s.persistPhase(room); err != nil {
		s.log.Errorw("persist phase failed", "code", code, "phase", phase, "error", err)
	}
}
