package types

import (
  "encoding/json"
  "fmt"

  "github.com/google/uuid"
  "gorm.io/datatypes"
)

// Session flows. A photo flow walks detected items to a meal commit, a
// library flow runs the manual sub-flow targeted at the library only, and an
// edit flow adjusts grams on an already-saved meal.
const (
  FlowPhoto   = "photo"
  FlowLibrary = "library"
  FlowEdit    = "edit"
)

// Candidate classes offered during item resolution.
const (
  CandidateLibrary = "library"
  CandidateFDC     = "fdc"
  CandidateManual  = "manual"
)

// Candidate is one resolution option for a detected item. FDC candidates
// carry only the reference until the user picks one and details are fetched.
type Candidate struct {
  Type         string     `json:"type"`
  Label        string     `json:"label"`
  Name         string     `json:"name,omitempty"`
  Brand        *string    `json:"brand,omitempty"`
  Store        *string    `json:"store,omitempty"`
  FoodID       *uuid.UUID `json:"food_id,omitempty"`
  FdcID        int64      `json:"fdc_id,omitempty"`
  SourceRef    *string    `json:"source_ref,omitempty"`
  Basis        string     `json:"basis,omitempty"`
  ServingSizeG *float64   `json:"serving_size_g,omitempty"`
  Calories     float64    `json:"calories,omitempty"`
  ProteinG     float64    `json:"protein_g,omitempty"`
  FatG         float64    `json:"fat_g,omitempty"`
  CarbsG       float64    `json:"carbs_g,omitempty"`
  Score        float64    `json:"score,omitempty"`
}

// FoodSelection is the concrete nutrition record a session item resolved to.
type FoodSelection struct {
  Name         string     `json:"name"`
  SourceType   string     `json:"source_type"`
  FoodID       *uuid.UUID `json:"food_id,omitempty"`
  SourceRef    *string    `json:"source_ref,omitempty"`
  Basis        string     `json:"basis"`
  ServingSizeG *float64   `json:"serving_size_g,omitempty"`
  Calories     float64    `json:"calories"`
  ProteinG     float64    `json:"protein_g"`
  FatG         float64    `json:"fat_g"`
  CarbsG       float64    `json:"carbs_g"`
  Brand        *string    `json:"brand,omitempty"`
  Store        *string    `json:"store,omitempty"`
}

// SessionItem is one detected (or user-added) food in a photo session.
type SessionItem struct {
  Label              string         `json:"label"`
  Confidence         *float64       `json:"confidence,omitempty"`
  EstimatedGramsLow  *float64       `json:"estimated_grams_low,omitempty"`
  EstimatedGramsHigh *float64       `json:"estimated_grams_high,omitempty"`
  Grams              *float64       `json:"grams,omitempty"`
  Skipped            bool           `json:"skipped,omitempty"`
  Food               *FoodSelection `json:"food,omitempty"`
}

// ResolvedItem is a portioned, resolved item ready for commit.
type ResolvedItem struct {
  ItemIndex  int           `json:"item_index"`
  Name       string        `json:"name"`
  Grams      float64       `json:"grams"`
  Confidence *float64      `json:"confidence,omitempty"`
  Food       FoodSelection `json:"food"`
}

// ManualDraft accumulates the manual-entry sub-flow answers.
type ManualDraft struct {
  Target       string   `json:"target"`
  ItemIndex    *int     `json:"item_index,omitempty"`
  Name         string   `json:"name,omitempty"`
  Store        *string  `json:"store,omitempty"`
  Basis        string   `json:"basis,omitempty"`
  ServingSizeG *float64 `json:"serving_size_g,omitempty"`
}

// EditItem is a saved meal item loaded into an edit-flow session.
type EditItem struct {
  ID       uuid.UUID `json:"id"`
  Name     string    `json:"name"`
  Grams    float64   `json:"grams"`
  Calories float64   `json:"calories"`
  ProteinG float64   `json:"protein_g"`
  FatG     float64   `json:"fat_g"`
  CarbsG   float64   `json:"carbs_g"`
}

// SessionContext is the structured state a session carries between user
// turns. It is opaque JSONB to storage and validated on encode/decode.
type SessionContext struct {
  Flow         string         `json:"flow"`
  Items        []SessionItem  `json:"items,omitempty"`
  CurrentIndex int            `json:"current_index"`
  Candidates   []Candidate    `json:"candidates,omitempty"`
  Resolved     []ResolvedItem `json:"resolved,omitempty"`
  Manual       *ManualDraft   `json:"manual,omitempty"`
  EditIndex    *int           `json:"edit_index,omitempty"`

  MealID     *uuid.UUID `json:"meal_id,omitempty"`
  EditItems  []EditItem `json:"edit_items,omitempty"`
  EditItemID *uuid.UUID `json:"edit_item_id,omitempty"`
}

func (c *SessionContext) Validate() error {
  switch c.Flow {
  case FlowPhoto:
    if c.CurrentIndex < 0 {
      return fmt.Errorf("negative current_index %d", c.CurrentIndex)
    }
  case FlowLibrary:
    if c.Manual == nil {
      return fmt.Errorf("library flow without manual draft")
    }
  case FlowEdit:
    if c.MealID == nil {
      return fmt.Errorf("edit flow without meal_id")
    }
  default:
    return fmt.Errorf("unknown session flow %q", c.Flow)
  }
  return nil
}

// CurrentItem returns the item at the cursor, or nil when out of range.
func (c *SessionContext) CurrentItem() *SessionItem {
  if c.CurrentIndex < 0 || c.CurrentIndex >= len(c.Items) {
    return nil
  }
  return &c.Items[c.CurrentIndex]
}

func EncodeSessionContext(c *SessionContext) (datatypes.JSON, error) {
  if err := c.Validate(); err != nil {
    return nil, err
  }
  raw, err := json.Marshal(c)
  if err != nil {
    return nil, err
  }
  return datatypes.JSON(raw), nil
}

func DecodeSessionContext(raw datatypes.JSON) (*SessionContext, error) {
  var c SessionContext
  if err := json.Unmarshal(raw, &c); err != nil {
    return nil, err
  }
  if err := c.Validate(); err != nil {
    return nil, err
  }
  return &c, nil
}
