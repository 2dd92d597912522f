package repos

import (
  "context"
  "errors"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/types"
)

type MealLogRepo interface {
  CreateLog(ctx context.Context, tx *gorm.DB, log *types.MealLog) (*types.MealLog, error)
  CreateItems(ctx context.Context, tx *gorm.DB, items []*types.MealItem) error
  GetLog(ctx context.Context, tx *gorm.DB, mealLogID uuid.UUID) (*types.MealLog, error)
  GetLogWithItems(ctx context.Context, tx *gorm.DB, mealLogID uuid.UUID) (*types.MealLog, error)
  GetItem(ctx context.Context, tx *gorm.DB, mealItemID uuid.UUID) (*types.MealItem, error)
  ListItems(ctx context.Context, tx *gorm.DB, mealLogID uuid.UUID) ([]*types.MealItem, error)
  UpdateItem(ctx context.Context, tx *gorm.DB, mealItemID uuid.UUID, grams, calories, proteinG, fatG, carbsG float64) error
  UpdateTotals(ctx context.Context, tx *gorm.DB, mealLogID uuid.UUID, calories, proteinG, fatG, carbsG float64) error
  ListByRange(ctx context.Context, tx *gorm.DB, userID uuid.UUID, start, end time.Time) ([]*types.MealLog, error)
  ListRecent(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.MealLog, error)
}

type mealLogRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewMealLogRepo(db *gorm.DB, baseLog *logger.Logger) MealLogRepo {
  repoLog := baseLog.With("repo", "MealLogRepo")
  return &mealLogRepo{db: db, log: repoLog}
}

func (mr *mealLogRepo) CreateLog(ctx context.Context, tx *gorm.DB, log *types.MealLog) (*types.MealLog, error) {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }
  if log.ID == uuid.Nil {
    log.ID = uuid.New()
  }
  if err := transaction.WithContext(ctx).Create(log).Error; err != nil {
    return nil, err
  }
  return log, nil
}

func (mr *mealLogRepo) CreateItems(ctx context.Context, tx *gorm.DB, items []*types.MealItem) error {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }
  if len(items) == 0 {
    return nil
  }
  for _, item := range items {
    if item.ID == uuid.Nil {
      item.ID = uuid.New()
    }
  }
  return transaction.WithContext(ctx).Create(&items).Error
}

func (mr *mealLogRepo) GetLog(ctx context.Context, tx *gorm.DB, mealLogID uuid.UUID) (*types.MealLog, error) {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }
  var result types.MealLog
  if err := transaction.WithContext(ctx).
    Where("id = ?", mealLogID).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &result, nil
}

func (mr *mealLogRepo) GetLogWithItems(ctx context.Context, tx *gorm.DB, mealLogID uuid.UUID) (*types.MealLog, error) {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }
  var result types.MealLog
  if err := transaction.WithContext(ctx).
    Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
    Where("id = ?", mealLogID).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &result, nil
}

func (mr *mealLogRepo) GetItem(ctx context.Context, tx *gorm.DB, mealItemID uuid.UUID) (*types.MealItem, error) {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }
  var result types.MealItem
  if err := transaction.WithContext(ctx).
    Where("id = ?", mealItemID).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &result, nil
}

func (mr *mealLogRepo) ListItems(ctx context.Context, tx *gorm.DB, mealLogID uuid.UUID) ([]*types.MealItem, error) {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }
  var results []*types.MealItem
  if err := transaction.WithContext(ctx).
    Where("meal_log_id = ?", mealLogID).
    Order("created_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (mr *mealLogRepo) UpdateItem(ctx context.Context, tx *gorm.DB, mealItemID uuid.UUID, grams, calories, proteinG, fatG, carbsG float64) error {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }
  return transaction.WithContext(ctx).
    Model(&types.MealItem{}).
    Where("id = ?", mealItemID).
    Updates(map[string]interface{}{
      "grams":     grams,
      "calories":  calories,
      "protein_g": proteinG,
      "fat_g":     fatG,
      "carbs_g":   carbsG,
    }).Error
}

func (mr *mealLogRepo) UpdateTotals(ctx context.Context, tx *gorm.DB, mealLogID uuid.UUID, calories, proteinG, fatG, carbsG float64) error {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }
  return transaction.WithContext(ctx).
    Model(&types.MealLog{}).
    Where("id = ?", mealLogID).
    Updates(map[string]interface{}{
      "total_calories":  calories,
      "total_protein_g": proteinG,
      "total_fat_g":     fatG,
      "total_carbs_g":   carbsG,
    }).Error
}

func (mr *mealLogRepo) ListByRange(ctx context.Context, tx *gorm.DB, userID uuid.UUID, start, end time.Time) ([]*types.MealLog, error) {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }
  var results []*types.MealLog
  if err := transaction.WithContext(ctx).
    Where("user_id = ? AND logged_at >= ? AND logged_at < ?", userID, start, end).
    Order("logged_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (mr *mealLogRepo) ListRecent(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.MealLog, error) {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }
  var results []*types.MealLog
  if err := transaction.WithContext(ctx).
    Where("user_id = ?", userID).
    Order("logged_at DESC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
