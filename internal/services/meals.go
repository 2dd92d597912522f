package services

import (
  "context"
  "encoding/json"
  "strings"
  "time"

  "github.com/google/uuid"
  "go.opentelemetry.io/otel/attribute"
  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/apierr"
  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/observability"
  "github.com/yungbote/macrolog-backend/internal/repos"
  "github.com/yungbote/macrolog-backend/internal/types"
)

// NutritionSnapshot is the per-basis nutrition captured on each meal item so
// later library edits never rewrite logged history.
type NutritionSnapshot struct {
  Basis        string   `json:"basis"`
  ServingSizeG *float64 `json:"serving_size_g,omitempty"`
  Calories     float64  `json:"calories"`
  ProteinG     float64  `json:"protein_g"`
  FatG         float64  `json:"fat_g"`
  CarbsG       float64  `json:"carbs_g"`
  SourceType   string   `json:"source_type,omitempty"`
  SourceRef    *string  `json:"source_ref,omitempty"`
}

type MealItemSnapshot struct {
  Name       string
  Grams      float64
  Macros     ItemMacros
  FoodID     *uuid.UUID
  Confidence *float64
  Snapshot   NutritionSnapshot
}

type MealSummary struct {
  MealID *uuid.UUID
  Totals Totals
  Items  []MealItemSnapshot
}

// MealLogService computes macros for resolved items and owns the atomic
// commit: meal log + items + library updates + audit event succeed or fail
// together.
type MealLogService struct {
  db      *gorm.DB
  log     *logger.Logger
  repo    repos.MealLogRepo
  library *LibraryService
  audit   *AuditService
  now     func() time.Time
}

func NewMealLogService(db *gorm.DB, log *logger.Logger, repo repos.MealLogRepo, library *LibraryService, audit *AuditService) *MealLogService {
  return &MealLogService{
    db:      db,
    log:     log.With("service", "MealLogService"),
    repo:    repo,
    library: library,
    audit:   audit,
    now:     time.Now,
  }
}

// ComputeSummary builds item snapshots and totals without persisting
// anything. The commit reuses these exact values, so the saved totals always
// equal the sum of the saved items.
func (ms *MealLogService) ComputeSummary(items []types.ResolvedItem) MealSummary {
  snapshots := make([]MealItemSnapshot, 0, len(items))
  macros := make([]ItemMacros, 0, len(items))
  for _, item := range items {
    m := ComputeItemMacros(item.Food, item.Grams)
    macros = append(macros, m)
    snapshots = append(snapshots, MealItemSnapshot{
      Name:       item.Name,
      Grams:      item.Grams,
      Macros:     m,
      FoodID:     item.Food.FoodID,
      Confidence: item.Confidence,
      Snapshot: NutritionSnapshot{
        Basis:        item.Food.Basis,
        ServingSizeG: item.Food.ServingSizeG,
        Calories:     item.Food.Calories,
        ProteinG:     item.Food.ProteinG,
        FatG:         item.Food.FatG,
        CarbsG:       item.Food.CarbsG,
        SourceType:   item.Food.SourceType,
        SourceRef:    item.Food.SourceRef,
      },
    })
  }
  return MealSummary{Totals: AggregateMacros(macros), Items: snapshots}
}

// SaveMeal commits a confirmed session in one transaction. External and
// manual selections without a library entry are upserted into the library
// first; library selections get their usage counters bumped. A failure rolls
// everything back and surfaces as CommitFailed so the session can retry.
func (ms *MealLogService) SaveMeal(ctx context.Context, userID uuid.UUID, items []types.ResolvedItem) (*MealSummary, error) {
  savedAt := ms.now().UTC()
  var summary MealSummary

  ctx, span := observability.StartSpan(ctx, "meal.commit",
    attribute.Int("item_count", len(items)),
  )
  commitErr := ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    resolved, err := ms.ensureLibraryRefs(ctx, tx, userID, items)
    if err != nil {
      return err
    }
    summary = ms.ComputeSummary(resolved)

    mealLog, err := ms.repo.CreateLog(ctx, tx, &types.MealLog{
      UserID:        userID,
      LoggedAt:      savedAt,
      TotalCalories: summary.Totals.Calories,
      TotalProteinG: summary.Totals.ProteinG,
      TotalFatG:     summary.Totals.FatG,
      TotalCarbsG:   summary.Totals.CarbsG,
    })
    if err != nil {
      return err
    }
    summary.MealID = &mealLog.ID

    rows := make([]*types.MealItem, 0, len(summary.Items))
    for _, snapshot := range summary.Items {
      raw, err := json.Marshal(snapshot.Snapshot)
      if err != nil {
        return err
      }
      rows = append(rows, &types.MealItem{
        MealLogID:         mealLog.ID,
        FoodID:            snapshot.FoodID,
        Name:              snapshot.Name,
        Grams:             snapshot.Grams,
        Calories:          snapshot.Macros.Calories,
        ProteinG:          snapshot.Macros.ProteinG,
        FatG:              snapshot.Macros.FatG,
        CarbsG:            snapshot.Macros.CarbsG,
        VisionConfidence:  snapshot.Confidence,
        NutritionSnapshot: datatypes.JSON(raw),
      })
    }
    if err := ms.repo.CreateItems(ctx, tx, rows); err != nil {
      return err
    }

    for i, snapshot := range summary.Items {
      if snapshot.FoodID == nil {
        continue
      }
      if err := ms.library.RecordUse(ctx, tx, *snapshot.FoodID, savedAt); err != nil {
        return err
      }
      // A library match confirmed under a different detected label widens
      // recall for next time.
      item := resolved[i]
      if item.Food.SourceType == types.SourceLibrary && !strings.EqualFold(item.Name, item.Food.Name) {
        if err := ms.library.AddAliasIfNovel(ctx, tx, userID, *snapshot.FoodID, item.Name); err != nil {
          return err
        }
      }
    }

    return ms.audit.Record(ctx, tx, userID, "meal_log", mealLog.ID, "create", nil, map[string]interface{}{
      "logged_at":       savedAt,
      "total_calories":  summary.Totals.Calories,
      "total_protein_g": summary.Totals.ProteinG,
      "total_fat_g":     summary.Totals.FatG,
      "total_carbs_g":   summary.Totals.CarbsG,
      "item_count":      len(summary.Items),
    })
  })
  observability.EndSpan(span, commitErr)
  if commitErr != nil {
    ms.log.Error("meal commit failed", "user_id", userID, "error", commitErr)
    return nil, apierr.CommitFailed(commitErr)
  }
  return &summary, nil
}

// ensureLibraryRefs links every committed item to a library food. Library
// selections already carry their id; external and manual selections are
// matched by source reference or inserted.
func (ms *MealLogService) ensureLibraryRefs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, items []types.ResolvedItem) ([]types.ResolvedItem, error) {
  resolved := make([]types.ResolvedItem, len(items))
  copy(resolved, items)
  for i := range resolved {
    food := &resolved[i].Food
    if food.FoodID != nil || food.SourceType == types.SourceLibrary {
      continue
    }
    entry, err := ms.library.EnsureFood(ctx, tx, userID, FoodPayload{
      Name:         food.Name,
      Brand:        food.Brand,
      Store:        food.Store,
      SourceType:   food.SourceType,
      SourceRef:    food.SourceRef,
      Basis:        food.Basis,
      ServingSizeG: food.ServingSizeG,
      Calories:     food.Calories,
      ProteinG:     food.ProteinG,
      FatG:         food.FatG,
      CarbsG:       food.CarbsG,
    })
    if err != nil {
      return nil, err
    }
    id := entry.ID
    food.FoodID = &id
  }
  return resolved, nil
}

type MealDetail struct {
  ID       uuid.UUID
  LoggedAt time.Time
  Totals   Totals
  Items    []*types.MealItem
}

func (ms *MealLogService) GetMealDetail(ctx context.Context, mealLogID uuid.UUID) (*MealDetail, error) {
  mealLog, err := ms.repo.GetLogWithItems(ctx, nil, mealLogID)
  if err != nil {
    return nil, err
  }
  if mealLog == nil {
    return nil, nil
  }
  items := make([]*types.MealItem, len(mealLog.Items))
  for i := range mealLog.Items {
    items[i] = &mealLog.Items[i]
  }
  return &MealDetail{
    ID:       mealLog.ID,
    LoggedAt: mealLog.LoggedAt,
    Totals: Totals{
      Calories: mealLog.TotalCalories,
      ProteinG: mealLog.TotalProteinG,
      FatG:     mealLog.TotalFatG,
      CarbsG:   mealLog.TotalCarbsG,
    },
    Items: items,
  }, nil
}

// UpdateMealItemGrams recomputes one item from its nutrition snapshot at the
// new portion and refreshes the meal totals, atomically. Returns the updated
// detail, or nil when the item does not exist.
func (ms *MealLogService) UpdateMealItemGrams(ctx context.Context, userID, mealItemID uuid.UUID, grams float64) (*MealDetail, error) {
  var mealLogID uuid.UUID
  err := ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    item, err := ms.repo.GetItem(ctx, tx, mealItemID)
    if err != nil {
      return err
    }
    if item == nil {
      return apierr.NotFound("meal item")
    }
    mealLogID = item.MealLogID

    var snapshot NutritionSnapshot
    if err := json.Unmarshal(item.NutritionSnapshot, &snapshot); err != nil {
      return err
    }
    macros := ComputeItemMacros(types.FoodSelection{
      Basis:        snapshot.Basis,
      ServingSizeG: snapshot.ServingSizeG,
      Calories:     snapshot.Calories,
      ProteinG:     snapshot.ProteinG,
      FatG:         snapshot.FatG,
      CarbsG:       snapshot.CarbsG,
    }, grams)

    before := map[string]interface{}{"grams": item.Grams, "calories": item.Calories}
    if err := ms.repo.UpdateItem(ctx, tx, mealItemID, grams, macros.Calories, macros.ProteinG, macros.FatG, macros.CarbsG); err != nil {
      return err
    }

    items, err := ms.repo.ListItems(ctx, tx, mealLogID)
    if err != nil {
      return err
    }
    all := make([]ItemMacros, 0, len(items))
    for _, row := range items {
      all = append(all, ItemMacros{Calories: row.Calories, ProteinG: row.ProteinG, FatG: row.FatG, CarbsG: row.CarbsG})
    }
    totals := AggregateMacros(all)
    if err := ms.repo.UpdateTotals(ctx, tx, mealLogID, totals.Calories, totals.ProteinG, totals.FatG, totals.CarbsG); err != nil {
      return err
    }

    return ms.audit.Record(ctx, tx, userID, "meal_item", mealItemID, "update_grams", before, map[string]interface{}{
      "grams":    grams,
      "calories": macros.Calories,
    })
  })
  if err != nil {
    if apierr.IsNotFound(err) {
      return nil, nil
    }
    return nil, err
  }
  return ms.GetMealDetail(ctx, mealLogID)
}
