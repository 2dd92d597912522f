package services

import (
  "context"

  "github.com/google/uuid"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/repos"
)

type UserSettingsService struct {
  log  *logger.Logger
  repo repos.UserSettingsRepo
}

func NewUserSettingsService(log *logger.Logger, repo repos.UserSettingsRepo) *UserSettingsService {
  return &UserSettingsService{log: log.With("service", "UserSettingsService"), repo: repo}
}

// GetTimezone returns the user's timezone, defaulting to UTC when unset.
func (ss *UserSettingsService) GetTimezone(ctx context.Context, userID uuid.UUID) (string, error) {
  settings, err := ss.repo.GetByUser(ctx, nil, userID)
  if err != nil {
    return "", err
  }
  if settings == nil || settings.Timezone == nil || *settings.Timezone == "" {
    return "UTC", nil
  }
  return *settings.Timezone, nil
}

func (ss *UserSettingsService) IsTimezoneSet(ctx context.Context, userID uuid.UUID) (bool, error) {
  settings, err := ss.repo.GetByUser(ctx, nil, userID)
  if err != nil {
    return false, err
  }
  return settings != nil && settings.Timezone != nil && *settings.Timezone != "", nil
}

func (ss *UserSettingsService) SetTimezone(ctx context.Context, userID uuid.UUID, timezone string) error {
  return ss.repo.SetTimezone(ctx, nil, userID, timezone)
}
