package server

import "time"

// Timer helpers. Callers hold the session lock; at most one timer of
// each kind is armed at a time.

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (sess *session) clearTimers() {
	stopTimer(&sess.questionTimer)
	stopTimer(&sess.nextTimer)
	stopTimer(&sess.roundOverTimer)
}

func (s *Server) armQuestionTimer(sess *session, code string) {
	stopTimer(&sess.questionTimer)
	sess.questionTimer = time.AfterFunc(s.cfg.QuestionTime, func() {
		s.revealAnswer(code)
	})
}

func (s *Server) armNextTimer(sess *session, d time.Duration, fn func()) {
	stopTimer(&sess.nextTimer)
	sess.nextTimer = time.AfterFunc(d, fn)
}

func (s *Server) armRoundOverTimer(sess *session, d time.Duration, fn func()) {
	stopTimer(&sess.roundOverTimer)
	sess.roundOverTimer = time.AfterFunc(d, fn)
}
