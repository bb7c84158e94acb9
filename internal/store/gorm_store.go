package store

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"github.com/weiawesome/emergency-chat-relay/pkg/database"
	"gorm.io/gorm"
)

// MessageModel is the gorm row of a chat message.
type MessageModel struct {
	ID          string    `gorm:"primaryKey;size:64"`
	EmergencyID string    `gorm:"size:128;not null;index:idx_emergency_created_seq,priority:1"`
	CreatedAt   time.Time `gorm:"not null;index:idx_emergency_created_seq,priority:2"`
	Seq         int64     `gorm:"not null;index:idx_emergency_created_seq,priority:3"`
	SenderID    string    `gorm:"size:128;not null"`
	ReceiverID  string    `gorm:"size:128;not null"`
	SenderType  string    `gorm:"size:16;not null"`
	Message     string    `gorm:"type:text;not null"`
}

func (MessageModel) TableName() string {
	return "chat_messages"
}

func (m *MessageModel) ToDomain() domain.ChatMessage {
	return domain.ChatMessage{
		ID:          m.ID,
		Seq:         m.Seq,
		EmergencyID: m.EmergencyID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		SenderType:  domain.SenderType(m.SenderType),
		Body:        m.Message,
		Timestamp:   m.CreatedAt.UTC(),
	}
}

// GormStore persists messages through gorm (postgres, mysql or sqlite).
type GormStore struct {
	db      *gorm.DB
	stamper *Stamper
}

func NewGormStore(cfg *database.Config, stamper *Stamper) (*GormStore, error) {
	db, err := database.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chat_messages: %w", err)
	}
	return &GormStore{db: db, stamper: stamper}, nil
}

func (s *GormStore) Append(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	stamped, err := s.stamper.Stamp(msg)
	if err != nil {
		return nil, err
	}

	row := MessageModel{
		ID:          stamped.ID,
		EmergencyID: stamped.EmergencyID,
		CreatedAt:   stamped.Timestamp,
		Seq:         stamped.Seq,
		SenderID:    stamped.SenderID,
		ReceiverID:  stamped.ReceiverID,
		SenderType:  string(stamped.SenderType),
		Message:     stamped.Body,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, unavailable("insert message", err)
	}
	return stamped, nil
}

func (s *GormStore) ListByEmergency(ctx context.Context, emergencyID string) ([]domain.ChatMessage, error) {
	var rows []MessageModel
	err := s.db.WithContext(ctx).
		Where("emergency_id = ?", emergencyID).
		Order("created_at ASC").
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("find messages", err)
	}

	messages := make([]domain.ChatMessage, 0, len(rows))
	for i := range rows {
		messages = append(messages, rows[i].ToDomain())
	}
	return messages, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
