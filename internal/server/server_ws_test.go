package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trivia-night/internal/config"
	"trivia-night/internal/db"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Skipf("skipping test; websocket dial unavailable: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write event: %v", err)
	}
}

type wsEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readUntil reads events off the connection until it sees the named one,
// skipping unrelated broadcasts along the way.
func readUntil(t *testing.T, conn *websocket.Conn, event string) wsEvent {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read websocket message waiting for %q: %v", event, err)
		}
		var msg wsEvent
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("unmarshal websocket message: %v", err)
		}
		if msg.Event == event {
			return msg
		}
	}
	t.Fatalf("never received %q", event)
	return wsEvent{}
}

func createGameOverWS(t *testing.T, conn *websocket.Conn, settings map[string]any) string {
	t.Helper()
	sendEvent(t, conn, "create_game", settings)
	msg := readUntil(t, conn, "game_created")
	var created struct {
		GameCode string `json:"gameCode"`
	}
	if err := json.Unmarshal(msg.Data, &created); err != nil {
		t.Fatalf("unmarshal game_created: %v", err)
	}
	if len(created.GameCode) != 4 {
		t.Fatalf("unexpected game code %q", created.GameCode)
	}
	return created.GameCode
}

func TestWSCreateGame(t *testing.T) {
	srv := New(nil, config.Default(), nil)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	host := dialWS(t, ts)
	sendEvent(t, host, "create_game", map[string]any{
		"maxPlayers":        4,
		"roundsPerPlayer":   1,
		"questionsPerRound": 3,
		"difficulty":        "Hard",
	})
	msg := readUntil(t, host, "game_created")

	var created struct {
		GameCode          string `json:"gameCode"`
		MaxPlayers        int    `json:"maxPlayers"`
		RoundsPerPlayer   int    `json:"roundsPerPlayer"`
		QuestionsPerRound int    `json:"questionsPerRound"`
		Difficulty        string `json:"difficulty"`
	}
	if err := json.Unmarshal(msg.Data, &created); err != nil {
		t.Fatalf("unmarshal game_created: %v", err)
	}
	if created.MaxPlayers != 4 || created.RoundsPerPlayer != 1 || created.QuestionsPerRound != 3 || created.Difficulty != "Hard" {
		t.Fatalf("unexpected settings: %+v", created)
	}

	room, ok := srv.store.GetRoom(created.GameCode)
	if !ok {
		t.Fatal("room missing from store")
	}
	if room.Phase != phaseLobby {
		t.Fatalf("expected new room in %s, got %s", phaseLobby, room.Phase)
	}
}

func TestWSCreateGameClampsSettings(t *testing.T) {
	srv := New(nil, config.Default(), nil)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	host := dialWS(t, ts)
	sendEvent(t, host, "create_game", map[string]any{
		"maxPlayers":        50,
		"roundsPerPlayer":   "not a number",
		"questionsPerRound": nil,
		"difficulty":        "Impossible",
	})
	msg := readUntil(t, host, "game_created")

	var created struct {
		MaxPlayers        int    `json:"maxPlayers"`
		RoundsPerPlayer   int    `json:"roundsPerPlayer"`
		QuestionsPerRound int    `json:"questionsPerRound"`
		Difficulty        string `json:"difficulty"`
	}
	if err := json.Unmarshal(msg.Data, &created); err != nil {
		t.Fatalf("unmarshal game_created: %v", err)
	}
	if created.MaxPlayers != 3 || created.RoundsPerPlayer != 2 || created.QuestionsPerRound != 5 || created.Difficulty != "Mixed" {
		t.Fatalf("expected defaults for bad settings, got %+v", created)
	}
}

func TestWSJoinGame(t *testing.T) {
	srv := New(nil, config.Default(), nil)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	host := dialWS(t, ts)
	code := createGameOverWS(t, host, map[string]any{"maxPlayers": 4})

	player := dialWS(t, ts)
	sendEvent(t, player, "join_game", map[string]any{"username": "Ada", "gameCode": code})
	msg := readUntil(t, player, "update_player_list")

	var list []playerInfo
	if err := json.Unmarshal(msg.Data, &list); err != nil {
		t.Fatalf("unmarshal player list: %v", err)
	}
	if len(list) != 1 || list[0].Username != "Ada" {
		t.Fatalf("unexpected player list: %+v", list)
	}
}

func TestWSJoinGameLowercaseCode(t *testing.T) {
	srv := New(nil, config.Default(), nil)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	host := dialWS(t, ts)
	code := createGameOverWS(t, host, map[string]any{"maxPlayers": 4})

	player := dialWS(t, ts)
	sendEvent(t, player, "join_game", map[string]any{
		"username": "Ada",
		"gameCode": " " + strings.ToLower(code) + " ",
	})
	readUntil(t, player, "update_player_list")
}

func TestWSJoinUnknownGame(t *testing.T) {
	srv := New(nil, config.Default(), nil)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	player := dialWS(t, ts)
	sendEvent(t, player, "join_game", map[string]any{"username": "Ada", "gameCode": "ZZZZ"})
	msg := readUntil(t, player, "error")

	var reason string
	if err := json.Unmarshal(msg.Data, &reason); err != nil {
		t.Fatalf("unmarshal error reason: %v", err)
	}
	if reason != "Game not found" {
		t.Fatalf("unexpected error reason %q", reason)
	}
}

func TestWSGameAutoStartsWhenFull(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAIModel = "mock"
	cfg.StartingDelay = 10 * time.Millisecond
	srv := New(nil, cfg, nil)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	host := dialWS(t, ts)
	code := createGameOverWS(t, host, map[string]any{"maxPlayers": 2})

	first := dialWS(t, ts)
	sendEvent(t, first, "join_game", map[string]any{"username": "Ada", "gameCode": code})
	readUntil(t, first, "update_player_list")

	second := dialWS(t, ts)
	sendEvent(t, second, "join_game", map[string]any{"username": "Bo", "gameCode": code})
	readUntil(t, second, "game_started")

	// The first round's picker is the first player to join.
	readUntil(t, first, "topic_request")
	readUntil(t, second, "topic_waiting")
	waitForPhase(t, srv, code, phaseTopicSelection, time.Second)
}

// Two players run a full game over the wire: auto-start, one question per
// round, one round picked by each player, final ranking, membership cleanup.
func TestWSFullGame(t *testing.T) {
	cfg := fastConfig()
	// Long enough that the reveal is driven by the all-answered path, not
	// the timeout.
	cfg.QuestionTime = 2 * time.Second
	srv := New(nil, cfg, nil)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	host := dialWS(t, ts)
	code := createGameOverWS(t, host, map[string]any{
		"maxPlayers":        2,
		"roundsPerPlayer":   1,
		"questionsPerRound": 1,
	})

	ada := dialWS(t, ts)
	sendEvent(t, ada, "join_game", map[string]any{"username": "Ada", "gameCode": code})
	readUntil(t, ada, "update_player_list")

	bo := dialWS(t, ts)
	sendEvent(t, bo, "join_game", map[string]any{"username": "Bo", "gameCode": code})
	readUntil(t, bo, "game_started")

	answerBoth := func() {
		// The built-in bank's first question keys its correct option at 0.
		for _, conn := range []*websocket.Conn{ada, bo} {
			readUntil(t, conn, "question_start")
			sendEvent(t, conn, "submit_answer", map[string]any{"gameCode": code, "answerIndex": 0})
		}
	}

	// Round one: the first joiner picks.
	readUntil(t, ada, "topic_request")
	sendEvent(t, ada, "submit_topic", map[string]any{"gameCode": code, "topic": "Science"})
	answerBoth()

	// Live progress pings go to the host connection only, in answer order.
	ping := readUntil(t, host, "player_answered")
	var progress struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(ping.Data, &progress); err != nil {
		t.Fatalf("unmarshal player_answered: %v", err)
	}
	if progress.Username != "Ada" {
		t.Fatalf("expected first ping for Ada, got %q", progress.Username)
	}

	readUntil(t, ada, "round_reveal")
	readUntil(t, ada, "round_over")

	// Round two: the pick rotates to the second joiner.
	readUntil(t, bo, "topic_request")
	sendEvent(t, bo, "submit_topic", map[string]any{"gameCode": code, "topic": "History"})
	answerBoth()
	readUntil(t, ada, "round_reveal")

	msg := readUntil(t, ada, "game_over")
	var final struct {
		Scores []rankedEntry `json:"scores"`
	}
	if err := json.Unmarshal(msg.Data, &final); err != nil {
		t.Fatalf("unmarshal game_over: %v", err)
	}
	if len(final.Scores) != 2 {
		t.Fatalf("expected 2 ranked entries, got %d", len(final.Scores))
	}
	if final.Scores[0].Rank != 1 || final.Scores[1].Rank != 2 {
		t.Fatalf("unexpected ranking: %+v", final.Scores)
	}

	waitForPhase(t, srv, code, phaseGameOver, time.Second)
	if count := srv.store.PlayerCount(code); count != 0 {
		t.Fatalf("expected membership rows deleted, got %d", count)
	}
	if _, ok := srv.registry.Get(code); ok {
		t.Fatal("expected session teardown")
	}
}

func TestWSRoomFull(t *testing.T) {
	srv := New(nil, config.Default(), nil)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	host := dialWS(t, ts)
	code := createGameOverWS(t, host, map[string]any{"maxPlayers": 2, "roundsPerPlayer": 5})

	for _, name := range []string{"Ada", "Bo"} {
		conn := dialWS(t, ts)
		sendEvent(t, conn, "join_game", map[string]any{"username": name, "gameCode": code})
		readUntil(t, conn, "update_player_list")
	}

	late := dialWS(t, ts)
	sendEvent(t, late, "join_game", map[string]any{"username": "Cy", "gameCode": code})
	msg := readUntil(t, late, "error")
	var reason string
	if err := json.Unmarshal(msg.Data, &reason); err != nil {
		t.Fatalf("unmarshal error reason: %v", err)
	}
	if reason != "Room Full" {
		t.Fatalf("unexpected error reason %q", reason)
	}
}

// A failing durable mirror must answer the initiating connection with an
// "Unable to ..." error event instead of failing silently.
func TestWSPersistenceFailureSurfaces(t *testing.T) {
	conn, err := db.Open("", filepath.Join(t.TempDir(), "games.db"))
	if err != nil {
		t.Skipf("skipping test; sqlite unavailable: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Skipf("skipping test; sqlite migrate unavailable: %v", err)
	}
	srv := New(conn, config.Default(), nil)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	host := dialWS(t, ts)
	code := createGameOverWS(t, host, map[string]any{"maxPlayers": 4})

	// Kill the mirror out from under the running room.
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	_ = sqlDB.Close()

	player := dialWS(t, ts)
	sendEvent(t, player, "join_game", map[string]any{"username": "Ada", "gameCode": code})
	msg := readUntil(t, player, "error")
	var reason string
	if err := json.Unmarshal(msg.Data, &reason); err != nil {
		t.Fatalf("unmarshal error reason: %v", err)
	}
	if reason != "Unable to join game" {
		t.Fatalf("unexpected error reason %q", reason)
	}

	sendEvent(t, host, "reconnect_host", map[string]any{"gameCode": code})
	msg = readUntil(t, host, "error")
	if err := json.Unmarshal(msg.Data, &reason); err != nil {
		t.Fatalf("unmarshal error reason: %v", err)
	}
	if reason != "Unable to reconnect host" {
		t.Fatalf("unexpected error reason %q", reason)
	}
}

func TestWSInvalidMessage(t *testing.T) {
	srv := New(nil, config.Default(), nil)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readUntil(t, conn, "error")
	var reason string
	if err := json.Unmarshal(msg.Data, &reason); err != nil {
		t.Fatalf("unmarshal error reason: %v", err)
	}
	if reason != "Invalid message" {
		t.Fatalf("unexpected error reason %q", reason)
	}

	sendEvent(t, conn, "time_travel", nil)
	msg = readUntil(t, conn, "error")
	if err := json.Unmarshal(msg.Data, &reason); err != nil {
		t.Fatalf("unmarshal error reason: %v", err)
	}
	if !strings.HasPrefix(reason, "Unknown event") {
		t.Fatalf("unexpected error reason %q", reason)
	}
}

func TestWSHostReconnect(t *testing.T) {
	srv := New(nil, config.Default(), nil)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	host := dialWS(t, ts)
	code := createGameOverWS(t, host, map[string]any{"maxPlayers": 4})
	_ = host.Close()

	replacement := dialWS(t, ts)
	sendEvent(t, replacement, "reconnect_host", map[string]any{"gameCode": code})
	msg := readUntil(t, replacement, "host_reconnected")

	var snapshot struct {
		GameCode  string `json:"gameCode"`
		GameState string `json:"gameState"`
	}
	if err := json.Unmarshal(msg.Data, &snapshot); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snapshot.GameCode != code || snapshot.GameState != phaseLobby {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestWSSubmitAnswerValidation(t *testing.T) {
	srv := New(nil, config.Default(), nil)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts)
	sendEvent(t, conn, "submit_answer", map[string]any{"gameCode": "ABCD"})
	msg := readUntil(t, conn, "error")
	var reason string
	if err := json.Unmarshal(msg.Data, &reason); err != nil {
		t.Fatalf("unmarshal error reason: %v", err)
	}
	if !strings.HasPrefix(reason, "Invalid answer payload") {
		t.Fatalf("unexpected error reason %q", reason)
	}

	sendEvent(t, conn, "submit_answer", map[string]any{"gameCode": "ABCD", "answerIndex": 9})
	msg = readUntil(t, conn, "error")
	if err := json.Unmarshal(msg.Data, &reason); err != nil {
		t.Fatalf("unmarshal error reason: %v", err)
	}
	if reason != "Invalid answer index" {
		t.Fatalf("unexpected error reason %q", reason)
	}
}
