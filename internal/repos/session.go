package repos

import (
  "context"
  "errors"
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/types"
)

// SessionRepo is the session store adapter. Context is an opaque JSONB blob
// here; Update writes status and context in one statement so a concurrent
// reader never sees a torn write.
type SessionRepo interface {
  Create(ctx context.Context, tx *gorm.DB, session *types.PhotoSession) (*types.PhotoSession, error)
  GetByID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.PhotoSession, error)
  GetActiveByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.PhotoSession, error)
  Update(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, status string, contextBlob datatypes.JSON, expiresAt *time.Time) error
  MarkStatus(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, status string) error
  ExpireDue(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

type sessionRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
  repoLog := baseLog.With("repo", "SessionRepo")
  return &sessionRepo{db: db, log: repoLog}
}

func (sr *sessionRepo) Create(ctx context.Context, tx *gorm.DB, session *types.PhotoSession) (*types.PhotoSession, error) {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }
  if session.ID == uuid.Nil {
    session.ID = uuid.New()
  }
  if err := transaction.WithContext(ctx).Create(session).Error; err != nil {
    return nil, err
  }
  return session, nil
}

func (sr *sessionRepo) GetByID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.PhotoSession, error) {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }
  var result types.PhotoSession
  if err := transaction.WithContext(ctx).
    Where("id = ?", sessionID).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &result, nil
}

func (sr *sessionRepo) GetActiveByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.PhotoSession, error) {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }
  var result types.PhotoSession
  if err := transaction.WithContext(ctx).
    Where("user_id = ? AND status NOT IN ?", userID, types.TerminalSessionStatuses).
    Order("created_at DESC").
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &result, nil
}

func (sr *sessionRepo) Update(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, status string, contextBlob datatypes.JSON, expiresAt *time.Time) error {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }
  updates := map[string]interface{}{
    "status":  status,
    "context": contextBlob,
  }
  if expiresAt != nil {
    updates["expires_at"] = *expiresAt
  }
  return transaction.WithContext(ctx).
    Model(&types.PhotoSession{}).
    Where("id = ?", sessionID).
    Updates(updates).Error
}

func (sr *sessionRepo) MarkStatus(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, status string) error {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }
  return transaction.WithContext(ctx).
    Model(&types.PhotoSession{}).
    Where("id = ?", sessionID).
    Update("status", status).Error
}

func (sr *sessionRepo) ExpireDue(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }
  result := transaction.WithContext(ctx).
    Model(&types.PhotoSession{}).
    Where("expires_at IS NOT NULL AND expires_at < ? AND status NOT IN ?", now, types.TerminalSessionStatuses).
    Update("status", types.SessionExpired)
  return result.RowsAffected, result.Error
}
