package services

import (
  "context"
  "time"

  "github.com/google/uuid"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/repos"
)

type PeriodStats struct {
  Start     time.Time
  End       time.Time
  MealCount int
  Totals    Totals
}

type HistoryEntry struct {
  MealID   uuid.UUID
  LoggedAt time.Time
  Totals   Totals
}

// StatsService aggregates meal logs over user-local date windows. Logged
// timestamps are UTC in storage; window boundaries come from the user's
// configured timezone so "today" matches their wall clock.
type StatsService struct {
  log      *logger.Logger
  repo     repos.MealLogRepo
  settings *UserSettingsService
  now      func() time.Time
}

func NewStatsService(log *logger.Logger, repo repos.MealLogRepo, settings *UserSettingsService) *StatsService {
  return &StatsService{
    log:      log.With("service", "StatsService"),
    repo:     repo,
    settings: settings,
    now:      time.Now,
  }
}

func (ss *StatsService) userLocation(ctx context.Context, userID uuid.UUID) *time.Location {
  tz, err := ss.settings.GetTimezone(ctx, userID)
  if err != nil {
    ss.log.Warn("timezone lookup failed, using UTC", "user_id", userID, "error", err)
    return time.UTC
  }
  loc, err := time.LoadLocation(tz)
  if err != nil {
    ss.log.Warn("invalid timezone, using UTC", "user_id", userID, "timezone", tz)
    return time.UTC
  }
  return loc
}

func (ss *StatsService) Today(ctx context.Context, userID uuid.UUID) (*PeriodStats, error) {
  loc := ss.userLocation(ctx, userID)
  now := ss.now().In(loc)
  start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
  return ss.window(ctx, userID, start, start.AddDate(0, 0, 1))
}

// Week covers the current ISO week, Monday through Sunday.
func (ss *StatsService) Week(ctx context.Context, userID uuid.UUID) (*PeriodStats, error) {
  loc := ss.userLocation(ctx, userID)
  now := ss.now().In(loc)
  weekday := int(now.Weekday())
  if weekday == 0 {
    weekday = 7
  }
  start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -(weekday - 1))
  return ss.window(ctx, userID, start, start.AddDate(0, 0, 7))
}

func (ss *StatsService) Month(ctx context.Context, userID uuid.UUID) (*PeriodStats, error) {
  loc := ss.userLocation(ctx, userID)
  now := ss.now().In(loc)
  start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
  return ss.window(ctx, userID, start, start.AddDate(0, 1, 0))
}

func (ss *StatsService) window(ctx context.Context, userID uuid.UUID, start, end time.Time) (*PeriodStats, error) {
  logs, err := ss.repo.ListByRange(ctx, nil, userID, start.UTC(), end.UTC())
  if err != nil {
    return nil, err
  }
  stats := &PeriodStats{Start: start, End: end, MealCount: len(logs)}
  for _, l := range logs {
    stats.Totals.Calories += l.TotalCalories
    stats.Totals.ProteinG += l.TotalProteinG
    stats.Totals.FatG += l.TotalFatG
    stats.Totals.CarbsG += l.TotalCarbsG
  }
  return stats, nil
}

func (ss *StatsService) History(ctx context.Context, userID uuid.UUID, limit int) ([]HistoryEntry, error) {
  if limit <= 0 {
    limit = 10
  }
  logs, err := ss.repo.ListRecent(ctx, nil, userID, limit)
  if err != nil {
    return nil, err
  }
  entries := make([]HistoryEntry, 0, len(logs))
  for _, l := range logs {
    entries = append(entries, HistoryEntry{
      MealID:   l.ID,
      LoggedAt: l.LoggedAt,
      Totals: Totals{
        Calories: l.TotalCalories,
        ProteinG: l.TotalProteinG,
        FatG:     l.TotalFatG,
        CarbsG:   l.TotalCarbsG,
      },
    })
  }
  return entries, nil
}
