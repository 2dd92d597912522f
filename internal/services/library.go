package services

import (
  "context"
  "strings"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/repos"
  "github.com/yungbote/macrolog-backend/internal/types"
)

// LibraryService owns the user food library: creation on first save,
// usage counters on reuse, and alias widening for resolver recall.
type LibraryService struct {
  log  *logger.Logger
  repo repos.LibraryRepo
}

func NewLibraryService(log *logger.Logger, repo repos.LibraryRepo) *LibraryService {
  return &LibraryService{log: log.With("service", "LibraryService"), repo: repo}
}

// FoodPayload is the data needed to create a library entry.
type FoodPayload struct {
  Name         string
  Brand        *string
  Store        *string
  SourceType   string
  SourceRef    *string
  Basis        string
  ServingSizeG *float64
  Calories     float64
  ProteinG     float64
  FatG         float64
  CarbsG       float64
}

func (ls *LibraryService) CreateFood(ctx context.Context, tx *gorm.DB, userID uuid.UUID, payload FoodPayload) (*types.LibraryFood, error) {
  basis := payload.Basis
  if basis == "" {
    basis = types.BasisPer100g
  }
  food := &types.LibraryFood{
    UserID:       userID,
    Name:         payload.Name,
    Brand:        payload.Brand,
    Store:        payload.Store,
    SourceType:   payload.SourceType,
    SourceRef:    payload.SourceRef,
    Basis:        basis,
    ServingSizeG: payload.ServingSizeG,
    Calories:     payload.Calories,
    ProteinG:     payload.ProteinG,
    FatG:         payload.FatG,
    CarbsG:       payload.CarbsG,
  }
  return ls.repo.Create(ctx, tx, food)
}

// EnsureFood returns an existing entry matching the payload's external
// reference, or creates a new one. Used by the commit path so external and
// manual selections land in the library exactly once.
func (ls *LibraryService) EnsureFood(ctx context.Context, tx *gorm.DB, userID uuid.UUID, payload FoodPayload) (*types.LibraryFood, error) {
  if payload.SourceRef != nil && *payload.SourceRef != "" {
    existing, err := ls.repo.FindBySourceRef(ctx, tx, userID, payload.SourceType, *payload.SourceRef)
    if err != nil {
      return nil, err
    }
    if existing != nil {
      return existing, nil
    }
  }
  return ls.CreateFood(ctx, tx, userID, payload)
}

func (ls *LibraryService) RecordUse(ctx context.Context, tx *gorm.DB, foodID uuid.UUID, usedAt time.Time) error {
  return ls.repo.IncrementUsage(ctx, tx, foodID, usedAt)
}

// AddAliasIfNovel records an alternate text form for a food when it differs
// from the food name and isn't already an alias.
func (ls *LibraryService) AddAliasIfNovel(ctx context.Context, tx *gorm.DB, userID, foodID uuid.UUID, aliasText string) error {
  aliasText = strings.TrimSpace(aliasText)
  if aliasText == "" {
    return nil
  }
  food, err := ls.repo.GetByID(ctx, tx, foodID)
  if err != nil {
    return err
  }
  if food == nil {
    return nil
  }
  if strings.EqualFold(food.Name, aliasText) {
    return nil
  }
  for _, alias := range food.Aliases {
    if strings.EqualFold(alias.Alias, aliasText) {
      return nil
    }
  }
  return ls.repo.AddAlias(ctx, tx, &types.FoodAlias{
    UserID: userID,
    FoodID: foodID,
    Alias:  aliasText,
  })
}
