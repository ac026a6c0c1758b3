package server

import (
	"crypto/rand"
	"sync"
	"time"
)

const codeAttempts = 25

// Store is the authoritative record of rooms and membership, keyed by
// room code. Durable mirroring to the database happens in persistence.go;
// the store itself is process-local so tests can run without a database.
type Store struct {
	mu           sync.Mutex
	nextPlayerID int
	rooms        map[string]*Room
}

func NewStore() *Store {
	return &Store{
		nextPlayerID: 1,
		rooms:        make(map[string]*Room),
	}
}

func randomRoomCode() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "AAAA"
	}
	for i := range buf {
		buf[i] = letters[int(buf[i])%len(letters)]
	}
	return string(buf)
}

// CreateRoom allocates a unique code and registers the room in LOBBY.
// Code generation retries a bounded number of times and fails loudly
// when exhausted.
func (s *Store) CreateRoom(maxPlayers, roundsPerPlayer, questionsPerRound int, difficulty, hostConnID string) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := ""
	for attempt := 0; attempt < codeAttempts; attempt++ {
		candidate := randomRoomCode()
		if _, exists := s.rooms[candidate]; !exists {
			code = candidate
			break
		}
	}
	if code == "" {
		return Room{}, errCodeExhausted
	}

	room := &Room{
		Code:              code,
		HostConnID:        hostConnID,
		Phase:             phaseLobby,
		MaxPlayers:        maxPlayers,
		RoundsPerPlayer:   roundsPerPlayer,
		QuestionsPerRound: questionsPerRound,
		Difficulty:        difficulty,
	}
	s.rooms[code] = room
	return snapshotRoom(room), nil
}

// snapshotRoom copies the scalar fields; membership is read through
// ActivePlayers, which copies on its own.
func snapshotRoom(room *Room) Room {
	copied := *room
	copied.Players = nil
	return copied
}

// GetRoom returns a snapshot of the room. Mutations go through UpdateRoom.
func (s *Store) GetRoom(code string) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return Room{}, false
	}
	return snapshotRoom(room), true
}

// UpdateRoom applies a mutation under the store lock and returns the
// resulting snapshot.
func (s *Store) UpdateRoom(code string, update func(room *Room) error) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return Room{}, errRoomNotFound
	}
	if err := update(room); err != nil {
		return Room{}, err
	}
	return snapshotRoom(room), nil
}

// ActivePlayers returns the connected members of a room in join order.
func (s *Store) ActivePlayers(code string) []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return nil
	}
	players := make([]Player, 0, len(room.Players))
	for _, player := range room.Players {
		if player.Connected() {
			players = append(players, player)
		}
	}
	return players
}

func (s *Store) PlayerCount(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return 0
	}
	return len(room.Players)
}

// UpsertPlayer joins a connection to a room. A rejoin re-attaches the
// existing membership row, matched by linked user first, then by display
// name; scores survive the disconnect. New joins are rejected when the
// room is full or already started.
func (s *Store) UpsertPlayer(code, name string, userID uint, connID string) (Player, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return Player{}, false, errRoomNotFound
	}

	index := -1
	if userID != 0 {
		for i := range room.Players {
			if room.Players[i].UserID == userID {
				index = i
				break
			}
		}
	}
	if index == -1 {
		for i := range room.Players {
			if room.Players[i].Name == name {
				index = i
				break
			}
		}
	}

	if index >= 0 {
		room.Players[index].ConnID = connID
		if userID != 0 {
			room.Players[index].UserID = userID
		}
		return room.Players[index], true, nil
	}

	if len(room.Players) >= room.MaxPlayers {
		return Player{}, false, errRoomFull
	}
	if room.Phase != phaseLobby {
		return Player{}, false, errAlreadyStarted
	}

	player := Player{
		ID:       s.nextPlayerID,
		ConnID:   connID,
		Name:     name,
		UserID:   userID,
		JoinedAt: time.Now().UTC(),
	}
	s.nextPlayerID++
	room.Players = append(room.Players, player)
	return player, false, nil
}

// PlayerByConn finds the member of a room holding the given connection.
func (s *Store) PlayerByConn(code, connID string) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return Player{}, false
	}
	for _, player := range room.Players {
		if player.ConnID != "" && player.ConnID == connID {
			return player, true
		}
	}
	return Player{}, false
}

// DetachConnection nulls the connection on every membership and host slot
// it holds, without deleting rows. It returns the affected room codes.
func (s *Store) DetachConnection(connID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	affected := make([]string, 0, 1)
	for code, room := range s.rooms {
		touched := false
		for i := range room.Players {
			if room.Players[i].ConnID == connID {
				room.Players[i].ConnID = ""
				touched = true
			}
		}
		if room.HostConnID == connID {
			room.HostConnID = ""
			touched = true
		}
		if touched {
			affected = append(affected, code)
		}
	}
	return affected
}

// AddScore increments a member's score and returns the new total.
// Scores only ever grow; the engine is the sole caller.
func (s *Store) AddScore(code string, playerID, points int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return 0, false
	}
	for i := range room.Players {
		if room.Players[i].ID == playerID {
			room.Players[i].Score += points
			return room.Players[i].Score, true
		}
	}
	return 0, false
}

// DeletePlayers removes all membership rows for a room (game-over cleanup).
func (s *Store) DeletePlayers(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[code]; ok {
		room.Players = nil
	}
}
