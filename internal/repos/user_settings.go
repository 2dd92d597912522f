package repos

import (
  "context"
  "errors"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/types"
)

type UserSettingsRepo interface {
  Create(ctx context.Context, tx *gorm.DB, settings *types.UserSettings) (*types.UserSettings, error)
  GetByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserSettings, error)
  SetTimezone(ctx context.Context, tx *gorm.DB, userID uuid.UUID, timezone string) error
}

type userSettingsRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUserSettingsRepo(db *gorm.DB, baseLog *logger.Logger) UserSettingsRepo {
  repoLog := baseLog.With("repo", "UserSettingsRepo")
  return &userSettingsRepo{db: db, log: repoLog}
}

func (sr *userSettingsRepo) Create(ctx context.Context, tx *gorm.DB, settings *types.UserSettings) (*types.UserSettings, error) {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }
  if settings.ID == uuid.Nil {
    settings.ID = uuid.New()
  }
  if err := transaction.WithContext(ctx).Create(settings).Error; err != nil {
    return nil, err
  }
  return settings, nil
}

func (sr *userSettingsRepo) GetByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserSettings, error) {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }
  var result types.UserSettings
  if err := transaction.WithContext(ctx).
    Where("user_id = ?", userID).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &result, nil
}

func (sr *userSettingsRepo) SetTimezone(ctx context.Context, tx *gorm.DB, userID uuid.UUID, timezone string) error {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }
  return transaction.WithContext(ctx).
    Model(&types.UserSettings{}).
    Where("user_id = ?", userID).
    Update("timezone", timezone).Error
}
