package repos

import (
  "context"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/types"
)

type AuditRepo interface {
  CreateEvent(ctx context.Context, tx *gorm.DB, event *types.AuditEvent) error
  ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.AuditEvent, error)
}

type auditRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewAuditRepo(db *gorm.DB, baseLog *logger.Logger) AuditRepo {
  repoLog := baseLog.With("repo", "AuditRepo")
  return &auditRepo{db: db, log: repoLog}
}

func (ar *auditRepo) CreateEvent(ctx context.Context, tx *gorm.DB, event *types.AuditEvent) error {
  transaction := tx
  if transaction == nil {
    transaction = ar.db
  }
  if event.ID == uuid.Nil {
    event.ID = uuid.New()
  }
  return transaction.WithContext(ctx).Create(event).Error
}

func (ar *auditRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.AuditEvent, error) {
  transaction := tx
  if transaction == nil {
    transaction = ar.db
  }
  var results []*types.AuditEvent
  if err := transaction.WithContext(ctx).
    Where("user_id = ?", userID).
    Order("created_at DESC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
