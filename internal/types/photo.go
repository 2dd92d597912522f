package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
)

// Photo holds Telegram file metadata only. Image bytes are never persisted;
// rows are deleted when their session reaches a terminal state.
type Photo struct {
  gorm.Model
  ID                    uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID                uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
  User                  *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
  TelegramChatID        int64     `gorm:"not null;column:telegram_chat_id" json:"telegram_chat_id"`
  TelegramMessageID     int64     `gorm:"not null;column:telegram_message_id" json:"telegram_message_id"`
  TelegramFileID        string    `gorm:"not null;column:telegram_file_id" json:"telegram_file_id"`
  TelegramFileUniqueID  *string   `gorm:"column:telegram_file_unique_id" json:"telegram_file_unique_id,omitempty"`
  CreatedAt             time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Photo) TableName() string {
  return "photo"
}
