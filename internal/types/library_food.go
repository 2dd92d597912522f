package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
)

// Nutrition basis values for LibraryFood and meal item snapshots.
const (
  BasisPer100g    = "per100g"
  BasisPerServing = "perServing"
)

// Food source types.
const (
  SourceLibrary = "library"
  SourceFDC     = "fdc"
  SourceManual  = "manual"
)

type LibraryFood struct {
  gorm.Model
  ID            uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
  User          *User      `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
  Name          string     `gorm:"not null;index;column:name" json:"name"`
  Brand         *string    `gorm:"column:brand" json:"brand,omitempty"`
  Store         *string    `gorm:"column:store" json:"store,omitempty"`
  SourceType    string     `gorm:"not null;column:source_type" json:"source_type"`
  SourceRef     *string    `gorm:"index;column:source_ref" json:"source_ref,omitempty"`
  Basis         string     `gorm:"not null;default:per100g;column:basis" json:"basis"`
  ServingSizeG  *float64   `gorm:"column:serving_size_g" json:"serving_size_g,omitempty"`
  Calories      float64    `gorm:"not null;column:calories" json:"calories"`
  ProteinG      float64    `gorm:"not null;column:protein_g" json:"protein_g"`
  FatG          float64    `gorm:"not null;column:fat_g" json:"fat_g"`
  CarbsG        float64    `gorm:"not null;column:carbs_g" json:"carbs_g"`
  UseCount      int        `gorm:"not null;default:0;column:use_count" json:"use_count"`
  LastUsedAt    *time.Time `gorm:"column:last_used_at" json:"last_used_at,omitempty"`
  CreatedAt     time.Time  `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt     time.Time  `gorm:"not null;default:now()" json:"updated_at"`

  Aliases []FoodAlias `gorm:"foreignKey:FoodID;references:ID" json:"aliases,omitempty"`
}

func (LibraryFood) TableName() string {
  return "library_food"
}

type FoodAlias struct {
  gorm.Model
  ID        uuid.UUID    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID    uuid.UUID    `gorm:"type:uuid;not null;index" json:"user_id"`
  User      *User        `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
  FoodID    uuid.UUID    `gorm:"type:uuid;not null;index" json:"food_id"`
  Food      *LibraryFood `gorm:"constraint:OnDelete:CASCADE;foreignKey:FoodID;references:ID" json:"food,omitempty"`
  Alias     string       `gorm:"not null;index;column:alias" json:"alias"`
  CreatedAt time.Time    `gorm:"not null;default:now()" json:"created_at"`
}

func (FoodAlias) TableName() string {
  return "food_alias"
}
