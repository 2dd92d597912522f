package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
)

type User struct {
  gorm.Model
  ID              uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  TelegramUserID  int64      `gorm:"uniqueIndex;not null;column:telegram_user_id" json:"telegram_user_id"`
  LastActiveAt    *time.Time `gorm:"column:last_active_at" json:"last_active_at,omitempty"`
  CreatedAt       time.Time  `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt       time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string {
  return "user"
}
