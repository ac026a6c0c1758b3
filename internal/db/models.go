package db

import (
	"time"

	"gorm.io/datatypes"
)

type User struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"size:64;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:128;not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type Room struct {
	ID                uint      `gorm:"primaryKey"`
	Code              string    `gorm:"size:8;uniqueIndex;not null"`
	Phase             string    `gorm:"size:32;not null"`
	HostConnectionID  string    `gorm:"size:64"`
	MaxPlayers        int       `gorm:"not null;default:3"`
	RoundsPerPlayer   int       `gorm:"not null;default:2"`
	QuestionsPerRound int       `gorm:"not null;default:5"`
	Difficulty        string    `gorm:"size:16;not null;default:'Mixed'"`
	CurrentRound      int       `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
	Players           []RoomPlayer
	Results           []Result
	Events            []Event
}

type RoomPlayer struct {
	ID           uint      `gorm:"primaryKey"`
	RoomID       uint      `gorm:"index;not null;uniqueIndex:idx_room_players_room_name"`
	Name         string    `gorm:"size:64;not null;uniqueIndex:idx_room_players_room_name"`
	UserID       *uint     `gorm:"index"`
	ConnectionID string    `gorm:"size:64;index"`
	Score        int       `gorm:"not null;default:0"`
	IsHost       bool      `gorm:"not null;default:false"`
	JoinedAt     time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// Result is one ranked row of a finished room's scoreboard.
type Result struct {
	ID        uint      `gorm:"primaryKey"`
	RoomID    uint      `gorm:"index;not null"`
	RoomCode  string    `gorm:"size:8;index;not null"`
	Name      string    `gorm:"size:64;not null"`
	Score     int       `gorm:"not null"`
	Rank      int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type Event struct {
	ID        uint           `gorm:"primaryKey"`
	RoomID    uint           `gorm:"index;not null"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
