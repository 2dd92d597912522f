package services

import (
  "context"
  "encoding/json"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/repos"
  "github.com/yungbote/macrolog-backend/internal/types"
)

// AuditService records append-only before/after snapshots of mutations so
// "why did the bot ask this / what got saved" is answerable after the fact.
type AuditService struct {
  log  *logger.Logger
  repo repos.AuditRepo
}

func NewAuditService(log *logger.Logger, repo repos.AuditRepo) *AuditService {
  return &AuditService{log: log.With("service", "AuditService"), repo: repo}
}

func (as *AuditService) Record(ctx context.Context, tx *gorm.DB, userID uuid.UUID, entityType string, entityID uuid.UUID, eventType string, before, after interface{}) error {
  event := &types.AuditEvent{
    UserID:     userID,
    EntityType: entityType,
    EntityID:   entityID,
    EventType:  eventType,
  }
  if before != nil {
    raw, err := json.Marshal(before)
    if err != nil {
      return err
    }
    event.Before = datatypes.JSON(raw)
  }
  if after != nil {
    raw, err := json.Marshal(after)
    if err != nil {
      return err
    }
    event.After = datatypes.JSON(raw)
  }
  return as.repo.CreateEvent(ctx, tx, event)
}

func (as *AuditService) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*types.AuditEvent, error) {
  return as.repo.ListByUser(ctx, nil, userID, limit)
}
