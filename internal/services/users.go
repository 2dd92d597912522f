package services

import (
  "context"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/repos"
  "github.com/yungbote/macrolog-backend/internal/types"
)

type UserService struct {
  db           *gorm.DB
  log          *logger.Logger
  userRepo     repos.UserRepo
  settingsRepo repos.UserSettingsRepo
}

func NewUserService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, settingsRepo repos.UserSettingsRepo) *UserService {
  return &UserService{
    db:           db,
    log:          log.With("service", "UserService"),
    userRepo:     userRepo,
    settingsRepo: settingsRepo,
  }
}

// EnsureUser returns the user for a Telegram id, creating it (with empty
// settings) on first contact.
func (us *UserService) EnsureUser(ctx context.Context, telegramUserID int64) (*types.User, error) {
  existing, err := us.userRepo.GetByTelegramID(ctx, nil, telegramUserID)
  if err != nil {
    return nil, err
  }
  if existing != nil {
    if err := us.userRepo.TouchLastActive(ctx, nil, existing.ID, time.Now().UTC()); err != nil {
      us.log.Warn("could not touch last_active_at", "user_id", existing.ID, "error", err)
    }
    return existing, nil
  }

  var created *types.User
  err = us.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    user, err := us.userRepo.Create(ctx, tx, &types.User{TelegramUserID: telegramUserID})
    if err != nil {
      return err
    }
    if _, err := us.settingsRepo.Create(ctx, tx, &types.UserSettings{UserID: user.ID}); err != nil {
      return err
    }
    created = user
    return nil
  })
  if err != nil {
    return nil, err
  }
  us.log.Info("created user", "user_id", created.ID, "telegram_user_id", telegramUserID)
  return created, nil
}

func (us *UserService) GetByID(ctx context.Context, userID uuid.UUID) (*types.User, error) {
  return us.userRepo.GetByID(ctx, nil, userID)
}
