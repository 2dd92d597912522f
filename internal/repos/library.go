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

type LibraryRepo interface {
  Create(ctx context.Context, tx *gorm.DB, food *types.LibraryFood) (*types.LibraryFood, error)
  GetByID(ctx context.Context, tx *gorm.DB, foodID uuid.UUID) (*types.LibraryFood, error)
  Search(ctx context.Context, tx *gorm.DB, userID uuid.UUID, query string, limit int) ([]*types.LibraryFood, error)
  ListTop(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.LibraryFood, error)
  FindBySourceRef(ctx context.Context, tx *gorm.DB, userID uuid.UUID, sourceType, sourceRef string) (*types.LibraryFood, error)
  IncrementUsage(ctx context.Context, tx *gorm.DB, foodID uuid.UUID, usedAt time.Time) error
  AddAlias(ctx context.Context, tx *gorm.DB, alias *types.FoodAlias) error
}

type libraryRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewLibraryRepo(db *gorm.DB, baseLog *logger.Logger) LibraryRepo {
  repoLog := baseLog.With("repo", "LibraryRepo")
  return &libraryRepo{db: db, log: repoLog}
}

func (lr *libraryRepo) Create(ctx context.Context, tx *gorm.DB, food *types.LibraryFood) (*types.LibraryFood, error) {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }
  if food.ID == uuid.Nil {
    food.ID = uuid.New()
  }
  if err := transaction.WithContext(ctx).Create(food).Error; err != nil {
    return nil, err
  }
  return food, nil
}

func (lr *libraryRepo) GetByID(ctx context.Context, tx *gorm.DB, foodID uuid.UUID) (*types.LibraryFood, error) {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }
  var result types.LibraryFood
  if err := transaction.WithContext(ctx).
    Preload("Aliases").
    Where("id = ?", foodID).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &result, nil
}

// Search matches food names and alias text case-insensitively. Ranking is the
// resolver's job; rows come back in name order for determinism.
func (lr *libraryRepo) Search(ctx context.Context, tx *gorm.DB, userID uuid.UUID, query string, limit int) ([]*types.LibraryFood, error) {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }
  var results []*types.LibraryFood
  pattern := "%" + query + "%"
  if err := transaction.WithContext(ctx).
    Preload("Aliases").
    Where("user_id = ?", userID).
    Where("LOWER(name) LIKE LOWER(?) OR id IN (?)",
      pattern,
      transaction.Model(&types.FoodAlias{}).
        Select("food_id").
        Where("user_id = ? AND LOWER(alias) LIKE LOWER(?)", userID, pattern),
    ).
    Order("name ASC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (lr *libraryRepo) ListTop(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.LibraryFood, error) {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }
  var results []*types.LibraryFood
  if err := transaction.WithContext(ctx).
    Preload("Aliases").
    Where("user_id = ?", userID).
    Order("use_count DESC, last_used_at DESC, name ASC").
    Limit(limit).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (lr *libraryRepo) FindBySourceRef(ctx context.Context, tx *gorm.DB, userID uuid.UUID, sourceType, sourceRef string) (*types.LibraryFood, error) {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }
  var result types.LibraryFood
  if err := transaction.WithContext(ctx).
    Where("user_id = ? AND source_type = ? AND source_ref = ?", userID, sourceType, sourceRef).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &result, nil
}

func (lr *libraryRepo) IncrementUsage(ctx context.Context, tx *gorm.DB, foodID uuid.UUID, usedAt time.Time) error {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }
  return transaction.WithContext(ctx).
    Model(&types.LibraryFood{}).
    Where("id = ?", foodID).
    Updates(map[string]interface{}{
      "use_count":    gorm.Expr("use_count + 1"),
      "last_used_at": usedAt,
    }).Error
}

func (lr *libraryRepo) AddAlias(ctx context.Context, tx *gorm.DB, alias *types.FoodAlias) error {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }
  if alias.ID == uuid.Nil {
    alias.ID = uuid.New()
  }
  return transaction.WithContext(ctx).Create(alias).Error
}
