package services

import (
  "context"
  "testing"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/types"
)

type fakeUserSettingsRepo struct {
  timezones map[uuid.UUID]string
}

func (f *fakeUserSettingsRepo) Create(_ context.Context, _ *gorm.DB, settings *types.UserSettings) (*types.UserSettings, error) {
  return settings, nil
}

func (f *fakeUserSettingsRepo) GetByUser(_ context.Context, _ *gorm.DB, userID uuid.UUID) (*types.UserSettings, error) {
  tz, ok := f.timezones[userID]
  if !ok {
    return nil, nil
  }
  return &types.UserSettings{UserID: userID, Timezone: &tz}, nil
}

func (f *fakeUserSettingsRepo) SetTimezone(_ context.Context, _ *gorm.DB, userID uuid.UUID, timezone string) error {
  if f.timezones == nil {
    f.timezones = map[uuid.UUID]string{}
  }
  f.timezones[userID] = timezone
  return nil
}

func newTestStats(repo *fakeMealLogRepo, settings *fakeUserSettingsRepo, now time.Time) *StatsService {
  log := logger.NewNop()
  ss := NewStatsService(log, repo, NewUserSettingsService(log, settings))
  ss.now = func() time.Time { return now }
  return ss
}

func TestStatsToday_TimezoneBoundary(t *testing.T) {
  userID := uuid.New()
  berlin, err := time.LoadLocation("Europe/Berlin")
  if err != nil {
    t.Fatalf("load location: %v", err)
  }

  // 23:30 UTC on Aug 30 is already Aug 31 in Berlin (UTC+2 in summer).
  lateMeal := time.Date(2026, 8, 30, 23, 30, 0, 0, time.UTC)
  repo := &fakeMealLogRepo{logs: []*types.MealLog{
    {ID: uuid.New(), UserID: userID, LoggedAt: lateMeal, TotalCalories: 500, TotalProteinG: 30},
  }}
  settings := &fakeUserSettingsRepo{timezones: map[uuid.UUID]string{userID: "Europe/Berlin"}}

  // Asking at 02:00 Berlin time on Aug 31.
  now := time.Date(2026, 8, 31, 2, 0, 0, 0, berlin)
  stats, err := newTestStats(repo, settings, now).Today(context.Background(), userID)
  if err != nil {
    t.Fatalf("Today: %v", err)
  }
  if stats.MealCount != 1 {
    t.Fatalf("meal count = %d, want 1 (meal falls on today in Berlin)", stats.MealCount)
  }
  if stats.Totals.Calories != 500 {
    t.Fatalf("calories = %v, want 500", stats.Totals.Calories)
  }

  // The same meal viewed from UTC belongs to Aug 30, not today.
  utcSettings := &fakeUserSettingsRepo{}
  stats, err = newTestStats(repo, utcSettings, now.UTC()).Today(context.Background(), userID)
  if err != nil {
    t.Fatalf("Today UTC: %v", err)
  }
  if stats.MealCount != 0 {
    t.Fatalf("meal count in UTC = %d, want 0", stats.MealCount)
  }
}

func TestStatsWeek_StartsMonday(t *testing.T) {
  userID := uuid.New()
  // Aug 31 2026 is a Monday.
  now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
  repo := &fakeMealLogRepo{logs: []*types.MealLog{
    {ID: uuid.New(), UserID: userID, LoggedAt: time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC), TotalCalories: 400},
    {ID: uuid.New(), UserID: userID, LoggedAt: time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC), TotalCalories: 700},
  }}

  stats, err := newTestStats(repo, &fakeUserSettingsRepo{}, now).Week(context.Background(), userID)
  if err != nil {
    t.Fatalf("Week: %v", err)
  }
  if stats.MealCount != 1 {
    t.Fatalf("meal count = %d, want 1 (Sunday meal is last week)", stats.MealCount)
  }
  if stats.Totals.Calories != 400 {
    t.Fatalf("calories = %v, want 400", stats.Totals.Calories)
  }
}

func TestStatsMonth(t *testing.T) {
  userID := uuid.New()
  now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
  repo := &fakeMealLogRepo{logs: []*types.MealLog{
    {ID: uuid.New(), UserID: userID, LoggedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), TotalCalories: 300},
    {ID: uuid.New(), UserID: userID, LoggedAt: time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC), TotalCalories: 450},
    {ID: uuid.New(), UserID: userID, LoggedAt: time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC), TotalCalories: 999},
  }}

  stats, err := newTestStats(repo, &fakeUserSettingsRepo{}, now).Month(context.Background(), userID)
  if err != nil {
    t.Fatalf("Month: %v", err)
  }
  if stats.MealCount != 2 || stats.Totals.Calories != 750 {
    t.Fatalf("month stats = %+v, want 2 meals / 750 kcal", stats)
  }
}

func TestStatsHistory(t *testing.T) {
  userID := uuid.New()
  repo := &fakeMealLogRepo{}
  for i := 0; i < 15; i++ {
    repo.logs = append(repo.logs, &types.MealLog{
      ID:       uuid.New(),
      UserID:   userID,
      LoggedAt: time.Date(2026, 8, 1+i, 12, 0, 0, 0, time.UTC),
    })
  }

  entries, err := newTestStats(repo, &fakeUserSettingsRepo{}, time.Now()).History(context.Background(), userID, 10)
  if err != nil {
    t.Fatalf("History: %v", err)
  }
  if len(entries) != 10 {
    t.Fatalf("history length = %d, want 10", len(entries))
  }
  if !entries[0].LoggedAt.After(entries[1].LoggedAt) {
    t.Fatalf("history not newest-first")
  }
}

func TestStats_InvalidTimezoneFallsBackToUTC(t *testing.T) {
  userID := uuid.New()
  repo := &fakeMealLogRepo{}
  settings := &fakeUserSettingsRepo{timezones: map[uuid.UUID]string{userID: "Not/AZone"}}

  stats, err := newTestStats(repo, settings, time.Now()).Today(context.Background(), userID)
  if err != nil {
    t.Fatalf("Today: %v", err)
  }
  if stats.Start.Location() != time.UTC {
    t.Fatalf("window location = %v, want UTC", stats.Start.Location())
  }
}

func TestIsTimezoneSet(t *testing.T) {
  log := logger.NewNop()
  repo := &fakeUserSettingsRepo{}
  svc := NewUserSettingsService(log, repo)
  userID := uuid.New()
  ctx := context.Background()

  set, err := svc.IsTimezoneSet(ctx, userID)
  if err != nil || set {
    t.Fatalf("IsTimezoneSet before set = %v, %v", set, err)
  }
  if err := svc.SetTimezone(ctx, userID, "Europe/Berlin"); err != nil {
    t.Fatalf("SetTimezone: %v", err)
  }
  set, err = svc.IsTimezoneSet(ctx, userID)
  if err != nil || !set {
    t.Fatalf("IsTimezoneSet after set = %v, %v", set, err)
  }
}
