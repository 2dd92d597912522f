package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
)

// AuditEvent is an append-only before/after snapshot of a tracked mutation.
type AuditEvent struct {
  gorm.Model
  ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
  User       *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
  EntityType string         `gorm:"not null;column:entity_type" json:"entity_type"`
  EntityID   uuid.UUID      `gorm:"type:uuid;not null;index;column:entity_id" json:"entity_id"`
  EventType  string         `gorm:"not null;column:event_type" json:"event_type"`
  Before     datatypes.JSON `gorm:"type:jsonb;column:before" json:"before,omitempty"`
  After      datatypes.JSON `gorm:"type:jsonb;column:after" json:"after,omitempty"`
  CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (AuditEvent) TableName() string {
  return "audit_event"
}
