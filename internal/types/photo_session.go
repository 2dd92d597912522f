package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
)

// Session statuses. SAVED, CANCELLED and EXPIRED are terminal.
const (
  SessionStarted        = "STARTED"
  SessionItemReview     = "ITEM_REVIEW"
  SessionItemResolution = "ITEM_RESOLUTION"
  SessionPortionEntry   = "PORTION_ENTRY"
  SessionManualName     = "MANUAL_NAME"
  SessionManualStore    = "MANUAL_STORE"
  SessionManualBasis    = "MANUAL_BASIS"
  SessionManualServing  = "MANUAL_SERVING"
  SessionManualMacros   = "MANUAL_MACROS"
  SessionSummaryConfirm = "SUMMARY_CONFIRM"
  SessionEditSelectItem = "EDIT_SELECT_ITEM"
  SessionEditEnterGrams = "EDIT_ENTER_GRAMS"
  SessionSaved          = "SAVED"
  SessionCancelled      = "CANCELLED"
  SessionExpired        = "EXPIRED"
)

// TerminalSessionStatuses lists statuses a session can never leave.
var TerminalSessionStatuses = []string{SessionSaved, SessionCancelled, SessionExpired}

func IsTerminalSessionStatus(status string) bool {
  for _, s := range TerminalSessionStatuses {
    if s == status {
      return true
    }
  }
  return false
}

type PhotoSession struct {
  gorm.Model
  ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
  User      *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
  PhotoID   *uuid.UUID     `gorm:"type:uuid" json:"photo_id,omitempty"`
  Photo     *Photo         `gorm:"constraint:OnDelete:SET NULL;foreignKey:PhotoID;references:ID" json:"photo,omitempty"`
  Status    string         `gorm:"not null;index;column:status" json:"status"`
  Context   datatypes.JSON `gorm:"type:jsonb;column:context" json:"context"`
  ExpiresAt *time.Time     `gorm:"index;column:expires_at" json:"expires_at,omitempty"`
  CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (PhotoSession) TableName() string {
  return "photo_session"
}
