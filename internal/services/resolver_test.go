package services

import (
  "context"
  "errors"
  "testing"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/cache"
  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/types"
)

type fakeLibraryRepo struct {
  foods      []*types.LibraryFood
  refs       map[string]*types.LibraryFood
  usageCalls int
  aliases    []*types.FoodAlias
}

func (f *fakeLibraryRepo) Create(_ context.Context, _ *gorm.DB, food *types.LibraryFood) (*types.LibraryFood, error) {
  f.foods = append(f.foods, food)
  return food, nil
}

func (f *fakeLibraryRepo) GetByID(_ context.Context, _ *gorm.DB, foodID uuid.UUID) (*types.LibraryFood, error) {
  for _, food := range f.foods {
    if food.ID == foodID {
      return food, nil
    }
  }
  return nil, nil
}

func (f *fakeLibraryRepo) Search(_ context.Context, _ *gorm.DB, _ uuid.UUID, _ string, _ int) ([]*types.LibraryFood, error) {
  return f.foods, nil
}

func (f *fakeLibraryRepo) ListTop(_ context.Context, _ *gorm.DB, _ uuid.UUID, _ int) ([]*types.LibraryFood, error) {
  return f.foods, nil
}

func (f *fakeLibraryRepo) FindBySourceRef(_ context.Context, _ *gorm.DB, _ uuid.UUID, sourceType, sourceRef string) (*types.LibraryFood, error) {
  if food, ok := f.refs[sourceType+":"+sourceRef]; ok {
    return food, nil
  }
  return nil, nil
}

func (f *fakeLibraryRepo) IncrementUsage(_ context.Context, _ *gorm.DB, foodID uuid.UUID, usedAt time.Time) error {
  f.usageCalls++
  for _, food := range f.foods {
    if food.ID == foodID {
      food.UseCount++
      t := usedAt
      food.LastUsedAt = &t
    }
  }
  return nil
}

func (f *fakeLibraryRepo) AddAlias(_ context.Context, _ *gorm.DB, alias *types.FoodAlias) error {
  f.aliases = append(f.aliases, alias)
  return nil
}

type fakeNutritionClient struct {
  summaries []FoodSummary
  err       error
  calls     int
}

func (f *fakeNutritionClient) SearchFoods(_ context.Context, _ string, _ int) ([]FoodSummary, error) {
  f.calls++
  if f.err != nil {
    return nil, f.err
  }
  return f.summaries, nil
}

func (f *fakeNutritionClient) GetFood(_ context.Context, fdcID int64) (*FoodDetails, error) {
  if f.err != nil {
    return nil, f.err
  }
  return &FoodDetails{Summary: FoodSummary{FdcID: fdcID, Description: "fdc food"}}, nil
}

func libFood(name string, useCount int, lastUsed *time.Time) *types.LibraryFood {
  return &types.LibraryFood{
    ID:       uuid.New(),
    UserID:   uuid.New(),
    Name:     name,
    Basis:    types.BasisPer100g,
    UseCount: useCount,
    LastUsedAt: lastUsed,
  }
}

func newTestResolver(repo *fakeLibraryRepo, client NutritionClient) *ResolverService {
  log := logger.NewNop()
  nutrition := NewNutritionService(log, client, cache.NewMemory())
  rs := NewResolverService(log, DefaultResolverPolicy(), repo, nutrition)
  rs.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
  return rs
}

func TestResolve_ManualAlwaysLast(t *testing.T) {
  now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
  repo := &fakeLibraryRepo{foods: []*types.LibraryFood{
    libFood("chicken breast", 5, &now),
  }}
  rs := newTestResolver(repo, &fakeNutritionClient{})

  ranked, err := rs.Resolve(context.Background(), nil, uuid.New(), "chicken breast", ResolveHints{})
  if err != nil {
    t.Fatalf("Resolve: %v", err)
  }
  if len(ranked.Options) == 0 {
    t.Fatalf("no options returned")
  }
  last := ranked.Options[len(ranked.Options)-1]
  if last.Type != types.CandidateManual {
    t.Fatalf("last option type = %q, want manual", last.Type)
  }
  for _, opt := range ranked.Options[:len(ranked.Options)-1] {
    if opt.Type == types.CandidateManual {
      t.Fatalf("manual option appeared before the end")
    }
  }
}

func TestResolve_Deterministic(t *testing.T) {
  now := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
  repo := &fakeLibraryRepo{foods: []*types.LibraryFood{
    libFood("greek yogurt", 3, &now),
    libFood("greek salad", 1, &now),
    libFood("yogurt drink", 2, &now),
  }}
  rs := newTestResolver(repo, &fakeNutritionClient{})

  first, err := rs.Resolve(context.Background(), nil, uuid.New(), "greek yogurt", ResolveHints{})
  if err != nil {
    t.Fatalf("Resolve: %v", err)
  }
  for i := 0; i < 5; i++ {
    again, err := rs.Resolve(context.Background(), nil, uuid.New(), "greek yogurt", ResolveHints{})
    if err != nil {
      t.Fatalf("Resolve: %v", err)
    }
    if len(again.Options) != len(first.Options) {
      t.Fatalf("option count changed between runs: %d vs %d", len(again.Options), len(first.Options))
    }
    for j := range again.Options {
      if again.Options[j].Label != first.Options[j].Label {
        t.Fatalf("run %d option %d = %q, want %q", i, j, again.Options[j].Label, first.Options[j].Label)
      }
    }
  }
  if first.Options[0].Name != "greek yogurt" {
    t.Fatalf("top option = %q, want exact match first", first.Options[0].Name)
  }
}

func TestResolve_UsageBreaksTies(t *testing.T) {
  now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
  heavy := libFood("oatmeal", 40, &now)
  light := libFood("oatmeal", 1, &now)
  repo := &fakeLibraryRepo{foods: []*types.LibraryFood{light, heavy}}
  rs := newTestResolver(repo, &fakeNutritionClient{})

  ranked, err := rs.Resolve(context.Background(), nil, uuid.New(), "oatmeal", ResolveHints{})
  if err != nil {
    t.Fatalf("Resolve: %v", err)
  }
  if ranked.Options[0].FoodID == nil || *ranked.Options[0].FoodID != heavy.ID {
    t.Fatalf("frequently used food did not rank first")
  }
}

func TestResolve_RecencyDecay(t *testing.T) {
  fresh := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
  stale := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
  recent := libFood("banana", 5, &fresh)
  old := libFood("banana", 5, &stale)
  repo := &fakeLibraryRepo{foods: []*types.LibraryFood{old, recent}}
  rs := newTestResolver(repo, &fakeNutritionClient{})

  ranked, err := rs.Resolve(context.Background(), nil, uuid.New(), "banana", ResolveHints{})
  if err != nil {
    t.Fatalf("Resolve: %v", err)
  }
  if ranked.Options[0].FoodID == nil || *ranked.Options[0].FoodID != recent.ID {
    t.Fatalf("recently used food did not outrank the stale one")
  }
}

func TestResolve_ExternalOnWeakMatch(t *testing.T) {
  client := &fakeNutritionClient{summaries: []FoodSummary{
    {FdcID: 12345, Description: "Dragonfruit, raw"},
  }}
  repo := &fakeLibraryRepo{}
  rs := newTestResolver(repo, client)

  ranked, err := rs.Resolve(context.Background(), nil, uuid.New(), "dragonfruit", ResolveHints{})
  if err != nil {
    t.Fatalf("Resolve: %v", err)
  }
  if client.calls == 0 {
    t.Fatalf("external search was not consulted for an unknown food")
  }
  foundFdc := false
  for _, opt := range ranked.Options {
    if opt.Type == types.CandidateFDC && opt.FdcID == 12345 {
      foundFdc = true
    }
  }
  if !foundFdc {
    t.Fatalf("external candidate missing from options: %+v", ranked.Options)
  }
}

func TestResolve_SkipsExternalOnStrongMatch(t *testing.T) {
  now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
  repo := &fakeLibraryRepo{foods: []*types.LibraryFood{
    libFood("chicken breast", 10, &now),
  }}
  client := &fakeNutritionClient{}
  rs := newTestResolver(repo, client)

  if _, err := rs.Resolve(context.Background(), nil, uuid.New(), "chicken breast", ResolveHints{}); err != nil {
    t.Fatalf("Resolve: %v", err)
  }
  if client.calls != 0 {
    t.Fatalf("external search ran despite a confident library match")
  }
}

func TestResolve_DegradesOnExternalOutage(t *testing.T) {
  client := &fakeNutritionClient{err: errors.New("upstream down")}
  repo := &fakeLibraryRepo{}
  rs := newTestResolver(repo, client)

  ranked, err := rs.Resolve(context.Background(), nil, uuid.New(), "dragonfruit", ResolveHints{})
  if err != nil {
    t.Fatalf("Resolve should not fail on external outage: %v", err)
  }
  if !ranked.Degraded {
    t.Fatalf("expected degraded result")
  }
  if len(ranked.Options) != 1 || ranked.Options[0].Type != types.CandidateManual {
    t.Fatalf("degraded options = %+v, want manual only", ranked.Options)
  }
}

func TestTextSimilarity(t *testing.T) {
  tests := []struct {
    query, candidate string
    wantExact        bool
    wantZero         bool
  }{
    {query: "chicken breast", candidate: "Breast Chicken", wantExact: true},
    {query: "chicken", candidate: "chicken breast", wantZero: false},
    {query: "salmon", candidate: "beef stew", wantZero: true},
    {query: "", candidate: "anything", wantZero: true},
  }
  for _, tt := range tests {
    got := textSimilarity(tt.query, tt.candidate)
    if tt.wantExact && got != 1 {
      t.Fatalf("textSimilarity(%q, %q) = %v, want 1", tt.query, tt.candidate, got)
    }
    if tt.wantZero && got != 0 {
      t.Fatalf("textSimilarity(%q, %q) = %v, want 0", tt.query, tt.candidate, got)
    }
    if !tt.wantZero && got == 0 {
      t.Fatalf("textSimilarity(%q, %q) = 0, want positive", tt.query, tt.candidate)
    }
  }
}
