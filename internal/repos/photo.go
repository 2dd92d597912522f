package repos

import (
  "context"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/types"
)

type PhotoRepo interface {
  Create(ctx context.Context, tx *gorm.DB, photo *types.Photo) (*types.Photo, error)
  Delete(ctx context.Context, tx *gorm.DB, photoID uuid.UUID) error
  DeleteForFinishedSessions(ctx context.Context, tx *gorm.DB) (int64, error)
}

type photoRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPhotoRepo(db *gorm.DB, baseLog *logger.Logger) PhotoRepo {
  repoLog := baseLog.With("repo", "PhotoRepo")
  return &photoRepo{db: db, log: repoLog}
}

func (pr *photoRepo) Create(ctx context.Context, tx *gorm.DB, photo *types.Photo) (*types.Photo, error) {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }
  if photo.ID == uuid.Nil {
    photo.ID = uuid.New()
  }
  if err := transaction.WithContext(ctx).Create(photo).Error; err != nil {
    return nil, err
  }
  return photo, nil
}

func (pr *photoRepo) Delete(ctx context.Context, tx *gorm.DB, photoID uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }
  return transaction.WithContext(ctx).
    Unscoped().
    Where("id = ?", photoID).
    Delete(&types.Photo{}).Error
}

// DeleteForFinishedSessions removes photo rows still referenced by terminal
// sessions. The per-session cleanup covers the common paths; this catches
// sessions expired in bulk by the sweeper.
func (pr *photoRepo) DeleteForFinishedSessions(ctx context.Context, tx *gorm.DB) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }
  sub := transaction.Model(&types.PhotoSession{}).
    Select("photo_id").
    Where("photo_id IS NOT NULL AND status IN ?", types.TerminalSessionStatuses)
  result := transaction.WithContext(ctx).
    Unscoped().
    Where("id IN (?)", sub).
    Delete(&types.Photo{})
  return result.RowsAffected, result.Error
}
