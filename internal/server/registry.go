package server

import (
	"sync"
	"time"
)

// session holds the transient, non-durable state of one active room.
// All phase transitions for the room serialize on mu; the timers are the
// only things that reach a session from outside a gateway event.
type session struct {
	mu sync.Mutex

	round         int
	questionIndex int
	pickerIndex   int

	topic          string
	roundTitle     string
	roundQuestions []Question

	answers           map[int]answerRecord
	questionStartedAt time.Time

	questionTimer  *time.Timer
	nextTimer      *time.Timer
	roundOverTimer *time.Timer

	// revealing guards the timeout-vs-all-answered race: whichever path
	// loses must become a no-op.
	revealing bool
}

type answerRecord struct {
	choice      int
	hasChoice   bool
	text        string
	hasText     bool
	submittedAt time.Time
}

// sessionRegistry maps room codes to live sessions. Rooms are independent
// units of concurrency; no operation ever touches two sessions at once.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session)}
}

func (r *sessionRegistry) Get(code string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[code]
	return sess, ok
}

func (r *sessionRegistry) GetOrCreate(code string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[code]; ok {
		return sess
	}
	sess := &session{answers: make(map[int]answerRecord)}
	r.sessions[code] = sess
	return sess
}

// Delete drops a session. Timers must already be cancelled by the caller
// while holding the session lock.
func (r *sessionRegistry) Delete(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, code)
}
