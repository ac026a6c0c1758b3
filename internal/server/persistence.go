package server

import (
	"encoding/json"
	"time"

	"trivia-night/internal/db"

	"gorm.io/gorm/clause"
)

// Durable mirror of the room store. Every func is a no-op without a
// database handle so the server (and the tests) can run fully in memory.

func (s *Server) persistRoom(room Room) error {
	if s.db == nil {
		return nil
	}
	record := db.Room{
		Code:              room.Code,
		Phase:             room.Phase,
		HostConnectionID:  room.HostConnID,
		MaxPlayers:        room.MaxPlayers,
		RoundsPerPlayer:   room.RoundsPerPlayer,
		QuestionsPerRound: room.QuestionsPerRound,
		Difficulty:        room.Difficulty,
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		return err
	}
	_, _ = s.store.UpdateRoom(room.Code, func(r *Room) error {
		r.DBID = record.ID
		return nil
	})
	room.DBID = record.ID
	return s.persistEvent(room, "room_created", map[string]any{"code": room.Code})
}

func (s *Server) ensureRoomDBID(room *Room) error {
	if s.db == nil || room.DBID != 0 {
		return nil
	}
	var record db.Room
	if err := s.db.Select("id").Where("code = ?", room.Code).First(&record).Error; err != nil {
		return err
	}
	room.DBID = record.ID
	_, _ = s.store.UpdateRoom(room.Code, func(r *Room) error {
		r.DBID = record.ID
		return nil
	})
	return nil
}

func (s *Server) persistPhase(room Room) error {
	if s.db == nil {
		return nil
	}
	if err := s.ensureRoomDBID(&room); err != nil {
		return err
	}
	updates := map[string]any{
		"phase":         room.Phase,
		"current_round": room.CurrentRound,
	}
	if err := s.db.Model(&db.Room{}).Where("id = ?", room.DBID).Updates(updates).Error; err != nil {
		return err
	}
	return s.persistEvent(room, "phase_changed", map[string]any{
		"phase": room.Phase,
		"round": room.CurrentRound,
	})
}

func (s *Server) persistHostConn(room Room) error {
	if s.db == nil {
		return nil
	}
	if err := s.ensureRoomDBID(&room); err != nil {
		return err
	}
	return s.db.Model(&db.Room{}).
		Where("id = ?", room.DBID).
		Update("host_connection_id", room.HostConnID).Error
}

func (s *Server) persistPlayer(room Room, player Player) error {
	if s.db == nil {
		return nil
	}
	if err := s.ensureRoomDBID(&room); err != nil {
		return err
	}
	var userID *uint
	if player.UserID != 0 {
		id := player.UserID
		userID = &id
	}
	record := db.RoomPlayer{
		RoomID:       room.DBID,
		Name:         player.Name,
		UserID:       userID,
		ConnectionID: player.ConnID,
		Score:        player.Score,
		IsHost:       player.IsHost,
		JoinedAt:     time.Now().UTC(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"connection_id", "user_id", "updated_at"}),
	}).Create(&record).Error
}

func (s *Server) persistScore(room Room, name string, score int) error {
	if s.db == nil {
		return nil
	}
	if err := s.ensureRoomDBID(&room); err != nil {
		return err
	}
	return s.db.Model(&db.RoomPlayer{}).
		Where("room_id = ? AND name = ?", room.DBID, name).
		Update("score", score).Error
}

// persistDisconnect nulls the connection handle wherever it appears.
// Membership rows are kept; scores survive the disconnect.
func (s *Server) persistDisconnect(connID string) error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Model(&db.RoomPlayer{}).
		Where("connection_id = ?", connID).
		Update("connection_id", "").Error; err != nil {
		return err
	}
	return s.db.Model(&db.Room{}).
		Where("host_connection_id = ?", connID).
		Update("host_connection_id", "").Error
}

func (s *Server) persistResults(room Room, ranked []rankedEntry) error {
	if s.db == nil {
		return nil
	}
	if err := s.ensureRoomDBID(&room); err != nil {
		return err
	}
	records := make([]db.Result, 0, len(ranked))
	for _, entry := range ranked {
		records = append(records, db.Result{
			RoomID:   room.DBID,
			RoomCode: room.Code,
			Name:     entry.Username,
			Score:    entry.Score,
			Rank:     entry.Rank,
		})
	}
	if len(records) == 0 {
		return nil
	}
	return s.db.Create(&records).Error
}

func (s *Server) deletePlayerRows(room Room) error {
	if s.db == nil {
		return nil
	}
	if err := s.ensureRoomDBID(&room); err != nil {
		return err
	}
	return s.db.Where("room_id = ?", room.DBID).Delete(&db.RoomPlayer{}).Error
}

func (s *Server) persistEvent(room Room, eventType string, payload any) error {
	if s.db == nil || room.DBID == 0 {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := db.Event{
		RoomID:  room.DBID,
		Type:    eventType,
		Payload: data,
	}
	return s.db.Create(&record).Error
}
