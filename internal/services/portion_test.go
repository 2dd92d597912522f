package services

import (
  "math"
  "testing"

  "github.com/yungbote/macrolog-backend/internal/apierr"
  "github.com/yungbote/macrolog-backend/internal/types"
)

func almostEqual(a, b float64) bool {
  return math.Abs(a-b) < 1e-9
}

func TestComputeItemMacros_Per100g(t *testing.T) {
  chicken := types.FoodSelection{
    Name:     "chicken breast",
    Basis:    types.BasisPer100g,
    Calories: 165,
    ProteinG: 31,
    FatG:     3.6,
    CarbsG:   0,
  }

  m := ComputeItemMacros(chicken, 120)
  if !almostEqual(m.Calories, 198) {
    t.Fatalf("calories = %v, want 198", m.Calories)
  }
  if !almostEqual(m.ProteinG, 37.2) {
    t.Fatalf("protein = %v, want 37.2", m.ProteinG)
  }
  if !almostEqual(m.FatG, 4.32) {
    t.Fatalf("fat = %v, want 4.32", m.FatG)
  }
  if m.CarbsG != 0 {
    t.Fatalf("carbs = %v, want 0", m.CarbsG)
  }
}

func TestComputeItemMacros_PerServing(t *testing.T) {
  serving := 55.0
  bar := types.FoodSelection{
    Name:         "protein bar",
    Basis:        types.BasisPerServing,
    ServingSizeG: &serving,
    Calories:     220,
    ProteinG:     20,
    FatG:         8,
    CarbsG:       18,
  }

  // Half a serving scales every field by 0.5.
  m := ComputeItemMacros(bar, 27.5)
  if !almostEqual(m.Calories, 110) || !almostEqual(m.ProteinG, 10) || !almostEqual(m.FatG, 4) || !almostEqual(m.CarbsG, 9) {
    t.Fatalf("half serving macros = %+v", m)
  }
}

func TestComputeItemMacros_Linearity(t *testing.T) {
  rice := types.FoodSelection{
    Basis:    types.BasisPer100g,
    Calories: 130,
    ProteinG: 2.7,
    FatG:     0.3,
    CarbsG:   28,
  }

  single := ComputeItemMacros(rice, 150)
  double := ComputeItemMacros(rice, 300)
  if !almostEqual(double.Calories, 2*single.Calories) ||
    !almostEqual(double.ProteinG, 2*single.ProteinG) ||
    !almostEqual(double.FatG, 2*single.FatG) ||
    !almostEqual(double.CarbsG, 2*single.CarbsG) {
    t.Fatalf("doubling grams did not double macros: %+v vs %+v", single, double)
  }
}

func TestComputeItemMacros_NonPositiveGrams(t *testing.T) {
  rice := types.FoodSelection{Basis: types.BasisPer100g, Calories: 130}
  if m := ComputeItemMacros(rice, 0); m != (ItemMacros{}) {
    t.Fatalf("zero grams produced %+v", m)
  }
  if m := ComputeItemMacros(rice, -10); m != (ItemMacros{}) {
    t.Fatalf("negative grams produced %+v", m)
  }
}

func TestAggregateMacros_MatchesItemSums(t *testing.T) {
  items := []ItemMacros{
    {Calories: 198, ProteinG: 37.2, FatG: 4.32, CarbsG: 0},
    {Calories: 195, ProteinG: 4.05, FatG: 0.45, CarbsG: 42},
  }
  totals := AggregateMacros(items)
  if !almostEqual(totals.Calories, 393) {
    t.Fatalf("total calories = %v, want 393", totals.Calories)
  }
  if !almostEqual(totals.ProteinG, 41.25) {
    t.Fatalf("total protein = %v, want 41.25", totals.ProteinG)
  }
}

func TestParseGrams(t *testing.T) {
  tests := []struct {
    name     string
    input    string
    want     float64
    estimate bool
    wantErr  bool
  }{
    {name: "bare number", input: "150", want: 150},
    {name: "grams suffix", input: "150g", want: 150},
    {name: "grams word", input: "150 grams", want: 150},
    {name: "decimal", input: "99.5g", want: 99.5},
    {name: "ounces", input: "4oz", want: 4 * 28.349523125},
    {name: "pounds", input: "1lb", want: 453.59237},
    {name: "estimate sentinel", input: "est", estimate: true},
    {name: "ok sentinel", input: "ok", estimate: true},
    {name: "uppercase", input: " 120G ", want: 120},
    {name: "empty", input: "   ", wantErr: true},
    {name: "words", input: "a lot", wantErr: true},
    {name: "negative", input: "-50g", wantErr: true},
    {name: "zero", input: "0", wantErr: true},
  }

  for _, tt := range tests {
    t.Run(tt.name, func(t *testing.T) {
      got, estimate, err := ParseGrams(tt.input)
      if tt.wantErr {
        if err == nil {
          t.Fatalf("ParseGrams(%q) = %v, want error", tt.input, got)
        }
        if !apierr.IsValidation(err) {
          t.Fatalf("ParseGrams(%q) error = %v, want validation error", tt.input, err)
        }
        return
      }
      if err != nil {
        t.Fatalf("ParseGrams(%q) error: %v", tt.input, err)
      }
      if estimate != tt.estimate {
        t.Fatalf("ParseGrams(%q) estimate = %v, want %v", tt.input, estimate, tt.estimate)
      }
      if !tt.estimate && !almostEqual(got, tt.want) {
        t.Fatalf("ParseGrams(%q) = %v, want %v", tt.input, got, tt.want)
      }
    })
  }
}

func TestEstimateGrams(t *testing.T) {
  low, high := 80.0, 120.0
  item := &types.SessionItem{Label: "rice", EstimatedGramsLow: &low, EstimatedGramsHigh: &high}
  got, ok := EstimateGrams(item)
  if !ok || !almostEqual(got, 100) {
    t.Fatalf("EstimateGrams = %v, %v; want 100, true", got, ok)
  }

  onlyLow := &types.SessionItem{Label: "rice", EstimatedGramsLow: &low}
  got, ok = EstimateGrams(onlyLow)
  if !ok || !almostEqual(got, 80) {
    t.Fatalf("EstimateGrams low-only = %v, %v; want 80, true", got, ok)
  }

  if _, ok := EstimateGrams(&types.SessionItem{Label: "rice"}); ok {
    t.Fatalf("EstimateGrams with no range should report false")
  }
  if _, ok := EstimateGrams(nil); ok {
    t.Fatalf("EstimateGrams(nil) should report false")
  }
}

func TestFormatMacros(t *testing.T) {
  got := FormatMacros(ItemMacros{Calories: 198.4, ProteinG: 37.25, FatG: 4.32, CarbsG: 0})
  want := "198 kcal (37.3P/4.3F/0.0C)"
  if got != want {
    t.Fatalf("FormatMacros = %q, want %q", got, want)
  }
}
