package services

import (
  "context"
  "errors"
  "testing"

  "github.com/yungbote/macrolog-backend/internal/apierr"
  "github.com/yungbote/macrolog-backend/internal/cache"
  "github.com/yungbote/macrolog-backend/internal/logger"
)

func TestNutritionSearch_CachesResults(t *testing.T) {
  client := &fakeNutritionClient{summaries: []FoodSummary{
    {FdcID: 1, Description: "Apple, raw"},
  }}
  ns := NewNutritionService(logger.NewNop(), client, cache.NewMemory())

  for i := 0; i < 3; i++ {
    foods, err := ns.Search(context.Background(), "apple", 5)
    if err != nil {
      t.Fatalf("Search: %v", err)
    }
    if len(foods) != 1 || foods[0].FdcID != 1 {
      t.Fatalf("foods = %+v", foods)
    }
  }
  if client.calls != 1 {
    t.Fatalf("client called %d times, want 1 (cached)", client.calls)
  }
}

func TestNutritionSearch_CacheKeyIsCaseInsensitive(t *testing.T) {
  client := &fakeNutritionClient{summaries: []FoodSummary{{FdcID: 1, Description: "Apple, raw"}}}
  ns := NewNutritionService(logger.NewNop(), client, cache.NewMemory())

  if _, err := ns.Search(context.Background(), "Apple", 5); err != nil {
    t.Fatalf("Search: %v", err)
  }
  if _, err := ns.Search(context.Background(), "apple", 5); err != nil {
    t.Fatalf("Search: %v", err)
  }
  if client.calls != 1 {
    t.Fatalf("client called %d times, want 1", client.calls)
  }
}

func TestNutritionGetFood_WrapsOutage(t *testing.T) {
  client := &fakeNutritionClient{err: errors.New("connection refused")}
  ns := NewNutritionService(logger.NewNop(), client, cache.NewMemory())

  _, err := ns.GetFood(context.Background(), 42)
  if !apierr.IsLookupUnavailable(err) {
    t.Fatalf("err = %v, want lookup unavailable", err)
  }
}
