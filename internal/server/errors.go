package server

import "errors"

// Typed failures for the gateway's error taxonomy. Every handler maps
// these to a sender-only "error" event; nothing escapes a handler.
var (
	errRoomNotFound    = errors.New("Game not found")
	errSessionNotFound = errors.New("Game session not found")
	errRoomFull        = errors.New("Room Full")
	errAlreadyStarted  = errors.New("Game already started")
	errNotPicker       = errors.New("You are not the topic picker")
	errWrongPhase      = errors.New("Not in topic selection phase")
	errNotAccepting    = errors.New("Not accepting answers at this time")
	errPlayerNotFound  = errors.New("Player not found in game session")
	errCodeExhausted   = errors.New("unable to generate unique game code")
)
