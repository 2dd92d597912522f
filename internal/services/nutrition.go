package services

import (
  "context"
  "encoding/json"
  "fmt"
  "strings"
  "time"

  "golang.org/x/sync/singleflight"

  "github.com/yungbote/macrolog-backend/internal/apierr"
  "github.com/yungbote/macrolog-backend/internal/cache"
  "github.com/yungbote/macrolog-backend/internal/logger"
)

// FoodSummary is one external nutrition-database search hit.
type FoodSummary struct {
  FdcID       int64   `json:"fdc_id"`
  Description string  `json:"description"`
  BrandOwner  *string `json:"brand_owner,omitempty"`
  BrandName   *string `json:"brand_name,omitempty"`
  DataType    *string `json:"data_type,omitempty"`
}

// FoodDetails carries per-100g macros for an external food.
type FoodDetails struct {
  Summary      FoodSummary `json:"summary"`
  Calories     float64     `json:"calories"`
  ProteinG     float64     `json:"protein_g"`
  FatG         float64     `json:"fat_g"`
  CarbsG       float64     `json:"carbs_g"`
  ServingSizeG *float64    `json:"serving_size_g,omitempty"`
}

// NutritionClient is the narrow consumed interface over the external
// nutrition database. It may be slow or unavailable; callers degrade.
type NutritionClient interface {
  SearchFoods(ctx context.Context, query string, pageSize int) ([]FoodSummary, error)
  GetFood(ctx context.Context, fdcID int64) (*FoodDetails, error)
}

type NutritionService struct {
  log    *logger.Logger
  client NutritionClient
  cache  cache.Cache
  group  singleflight.Group

  searchTTL time.Duration
  foodTTL   time.Duration
}

func NewNutritionService(log *logger.Logger, client NutritionClient, c cache.Cache) *NutritionService {
  return &NutritionService{
    log:       log.With("service", "NutritionService"),
    client:    client,
    cache:     c,
    searchTTL: time.Hour,
    foodTTL:   24 * time.Hour,
  }
}

// Search looks up foods by name, serving cached results when fresh and
// collapsing concurrent identical lookups.
func (ns *NutritionService) Search(ctx context.Context, query string, limit int) ([]FoodSummary, error) {
  key := fmt.Sprintf("fdc:search:%s:%d", strings.ToLower(query), limit)
  if raw, ok := ns.cache.Get(ctx, key); ok {
    var cached []FoodSummary
    if err := json.Unmarshal(raw, &cached); err == nil {
      return cached, nil
    }
  }

  result, err, _ := ns.group.Do(key, func() (interface{}, error) {
    foods, err := ns.client.SearchFoods(ctx, query, limit)
    if err != nil {
      return nil, err
    }
    if raw, err := json.Marshal(foods); err == nil {
      ns.cache.Set(ctx, key, raw, ns.searchTTL)
    }
    return foods, nil
  })
  if err != nil {
    ns.log.Warn("nutrition search failed", "query", query, "error", err)
    return nil, apierr.LookupUnavailable(err)
  }
  return result.([]FoodSummary), nil
}

// GetFood fetches detail macros for one external food.
func (ns *NutritionService) GetFood(ctx context.Context, fdcID int64) (*FoodDetails, error) {
  key := fmt.Sprintf("fdc:food:%d", fdcID)
  if raw, ok := ns.cache.Get(ctx, key); ok {
    var cached FoodDetails
    if err := json.Unmarshal(raw, &cached); err == nil {
      return &cached, nil
    }
  }

  result, err, _ := ns.group.Do(key, func() (interface{}, error) {
    details, err := ns.client.GetFood(ctx, fdcID)
    if err != nil {
      return nil, err
    }
    if raw, err := json.Marshal(details); err == nil {
      ns.cache.Set(ctx, key, raw, ns.foodTTL)
    }
    return details, nil
  })
  if err != nil {
    ns.log.Warn("nutrition detail fetch failed", "fdc_id", fdcID, "error", err)
    return nil, apierr.LookupUnavailable(err)
  }
  return result.(*FoodDetails), nil
}
