package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
)

type MealLog struct {
  gorm.Model
  ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID         uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
  User           *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
  LoggedAt       time.Time `gorm:"not null;index;column:logged_at" json:"logged_at"`
  TotalCalories  float64   `gorm:"not null;column:total_calories" json:"total_calories"`
  TotalProteinG  float64   `gorm:"not null;column:total_protein_g" json:"total_protein_g"`
  TotalFatG      float64   `gorm:"not null;column:total_fat_g" json:"total_fat_g"`
  TotalCarbsG    float64   `gorm:"not null;column:total_carbs_g" json:"total_carbs_g"`
  CreatedAt      time.Time `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt      time.Time `gorm:"not null;default:now()" json:"updated_at"`

  Items []MealItem `gorm:"foreignKey:MealLogID;references:ID" json:"items,omitempty"`
}

func (MealLog) TableName() string {
  return "meal_log"
}

// MealItem snapshots the food's name and per-basis nutrition at commit time so
// later library edits never rewrite history. FoodID is nullable: manual
// entries need no library link.
type MealItem struct {
  gorm.Model
  ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  MealLogID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"meal_log_id"`
  MealLog            *MealLog       `gorm:"constraint:OnDelete:CASCADE;foreignKey:MealLogID;references:ID" json:"meal_log,omitempty"`
  FoodID             *uuid.UUID     `gorm:"type:uuid" json:"food_id,omitempty"`
  Food               *LibraryFood   `gorm:"constraint:OnDelete:SET NULL;foreignKey:FoodID;references:ID" json:"food,omitempty"`
  Name               string         `gorm:"not null;column:name" json:"name"`
  Grams              float64        `gorm:"not null;column:grams" json:"grams"`
  Calories           float64        `gorm:"not null;column:calories" json:"calories"`
  ProteinG           float64        `gorm:"not null;column:protein_g" json:"protein_g"`
  FatG               float64        `gorm:"not null;column:fat_g" json:"fat_g"`
  CarbsG             float64        `gorm:"not null;column:carbs_g" json:"carbs_g"`
  VisionConfidence   *float64       `gorm:"column:vision_confidence" json:"vision_confidence,omitempty"`
  NutritionSnapshot  datatypes.JSON `gorm:"type:jsonb;column:nutrition_snapshot" json:"nutrition_snapshot"`
  CreatedAt          time.Time      `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (MealItem) TableName() string {
  return "meal_item"
}
