package services

import (
  "fmt"
  "math"
  "strconv"
  "strings"

  "github.com/yungbote/macrolog-backend/internal/apierr"
  "github.com/yungbote/macrolog-backend/internal/types"
)

// Unit conversion factors to grams.
const (
  gramsPerOunce = 28.349523125
  gramsPerPound = 453.59237
)

// ItemMacros holds full-precision macro values for one portioned item.
// Rounding happens only at presentation, never before aggregation.
type ItemMacros struct {
  Calories float64
  ProteinG float64
  FatG     float64
  CarbsG   float64
}

// Totals is the per-field sum over item macros. The committed MealLog totals
// are these exact values, never re-derived.
type Totals struct {
  Calories float64
  ProteinG float64
  FatG     float64
  CarbsG   float64
}

// ComputeItemMacros normalizes a food's per-basis values to a per-gram rate
// and scales by the requested grams. A perServing food without a positive
// serving size has no usable serving weight, so its values are read per-100g.
func ComputeItemMacros(food types.FoodSelection, grams float64) ItemMacros {
  if grams <= 0 {
    return ItemMacros{}
  }
  basisGrams := 100.0
  if food.Basis == types.BasisPerServing && food.ServingSizeG != nil && *food.ServingSizeG > 0 {
    basisGrams = *food.ServingSizeG
  }
  factor := grams / basisGrams
  return ItemMacros{
    Calories: food.Calories * factor,
    ProteinG: food.ProteinG * factor,
    FatG:     food.FatG * factor,
    CarbsG:   food.CarbsG * factor,
  }
}

// AggregateMacros sums item macros independently per field.
func AggregateMacros(items []ItemMacros) Totals {
  var t Totals
  for _, m := range items {
    t.Calories += m.Calories
    t.ProteinG += m.ProteinG
    t.FatG += m.FatG
    t.CarbsG += m.CarbsG
  }
  return t
}

// RoundCalories rounds to the nearest whole kilocalorie for display.
func RoundCalories(v float64) float64 {
  return math.Round(v)
}

// RoundGrams rounds gram values to one decimal for display.
func RoundGrams(v float64) float64 {
  return math.Round(v*10) / 10
}

// ParseGrams parses a user-entered portion. Accepted forms: bare numbers
// ("150"), numbers with g/gram(s), oz/ounce(s) or lb/lbs/pound(s) suffixes,
// and the accept-estimate sentinel ("est", "estimate", "ok"), reported via
// the second return value. Anything else is a Validation error.
func ParseGrams(text string) (float64, bool, error) {
  cleaned := strings.ToLower(strings.TrimSpace(text))
  if cleaned == "" {
    return 0, false, apierr.Validation("empty portion input")
  }
  switch cleaned {
  case "est", "estimate", "ok":
    return 0, true, nil
  }

  factor := 1.0
  number := cleaned
  for _, suffix := range []struct {
    name   string
    factor float64
  }{
    {"grams", 1}, {"gram", 1}, {"g", 1},
    {"ounces", gramsPerOunce}, {"ounce", gramsPerOunce}, {"oz", gramsPerOunce},
    {"pounds", gramsPerPound}, {"pound", gramsPerPound}, {"lbs", gramsPerPound}, {"lb", gramsPerPound},
  } {
    if strings.HasSuffix(cleaned, suffix.name) {
      factor = suffix.factor
      number = strings.TrimSpace(strings.TrimSuffix(cleaned, suffix.name))
      break
    }
  }

  value, err := strconv.ParseFloat(number, 64)
  if err != nil {
    return 0, false, apierr.Validation("could not parse portion %q", text)
  }
  grams := value * factor
  if grams <= 0 {
    return 0, false, apierr.Validation("portion must be positive, got %q", text)
  }
  return grams, false, nil
}

// EstimateGrams returns the midpoint of the vision-supplied range, or the low
// bound when only that is present.
func EstimateGrams(item *types.SessionItem) (float64, bool) {
  if item == nil {
    return 0, false
  }
  low, high := item.EstimatedGramsLow, item.EstimatedGramsHigh
  if low != nil && high != nil && *high > 0 {
    return (*low + *high) / 2, true
  }
  if low != nil && *low > 0 {
    return *low, true
  }
  return 0, false
}

// FormatMacros renders "198 kcal (37.2P/4.3F/0C)" style output.
func FormatMacros(m ItemMacros) string {
  return fmt.Sprintf("%.0f kcal (%.1fP/%.1fF/%.1fC)", RoundCalories(m.Calories), RoundGrams(m.ProteinG), RoundGrams(m.FatG), RoundGrams(m.CarbsG))
}
