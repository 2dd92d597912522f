package services

import (
  "context"
  "testing"

  "github.com/google/uuid"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/types"
)

func TestAddAliasIfNovel(t *testing.T) {
  repo := &fakeLibraryRepo{}
  ls := NewLibraryService(logger.NewNop(), repo)
  userID := uuid.New()

  food, err := ls.CreateFood(context.Background(), nil, userID, FoodPayload{
    Name:     "chicken breast",
    Basis:    types.BasisPer100g,
    Calories: 165,
    ProteinG: 31,
    FatG:     3.6,
  })
  if err != nil {
    t.Fatalf("CreateFood: %v", err)
  }

  // Same text as the food name is not an alias.
  if err := ls.AddAliasIfNovel(context.Background(), nil, userID, food.ID, "Chicken Breast"); err != nil {
    t.Fatalf("AddAliasIfNovel: %v", err)
  }
  if len(repo.aliases) != 0 {
    t.Fatalf("alias stored for the food's own name")
  }

  if err := ls.AddAliasIfNovel(context.Background(), nil, userID, food.ID, "grilled chicken"); err != nil {
    t.Fatalf("AddAliasIfNovel: %v", err)
  }
  if len(repo.aliases) != 1 || repo.aliases[0].Alias != "grilled chicken" {
    t.Fatalf("aliases = %+v", repo.aliases)
  }
}

func TestEnsureFood_ReusesExternalRef(t *testing.T) {
  ref := "12345"
  existing := &types.LibraryFood{
    ID:         uuid.New(),
    Name:       "Dragonfruit, raw",
    SourceType: types.SourceFDC,
    SourceRef:  &ref,
    Basis:      types.BasisPer100g,
  }
  repo := &fakeLibraryRepo{foods: []*types.LibraryFood{existing}, refs: map[string]*types.LibraryFood{
    types.SourceFDC + ":" + ref: existing,
  }}
  ls := NewLibraryService(logger.NewNop(), repo)

  food, err := ls.EnsureFood(context.Background(), nil, uuid.New(), FoodPayload{
    Name:       "Dragonfruit, raw",
    SourceType: types.SourceFDC,
    SourceRef:  &ref,
    Basis:      types.BasisPer100g,
  })
  if err != nil {
    t.Fatalf("EnsureFood: %v", err)
  }
  if food.ID != existing.ID {
    t.Fatalf("EnsureFood created a duplicate instead of reusing the existing entry")
  }
  if len(repo.foods) != 1 {
    t.Fatalf("library has %d foods, want 1", len(repo.foods))
  }
}
