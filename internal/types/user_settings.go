package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
)

type UserSettings struct {
  gorm.Model
  ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
  User      *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
  Timezone  *string   `gorm:"column:timezone" json:"timezone,omitempty"`
  CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserSettings) TableName() string {
  return "user_settings"
}
