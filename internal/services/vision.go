package services

import (
  "context"
  "strings"

  "github.com/yungbote/macrolog-backend/internal/apierr"
  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/types"
)

// VisionItem is one food detected in a meal photo.
type VisionItem struct {
  Label              string  `json:"label"`
  Confidence         float64 `json:"confidence"`
  EstimatedGramsLow  float64 `json:"estimated_grams_low"`
  EstimatedGramsHigh float64 `json:"estimated_grams_high"`
}

// VisionClient analyzes a meal photo and returns detected items.
type VisionClient interface {
  AnalyzePhoto(ctx context.Context, imageData []byte, mimeType string) ([]VisionItem, error)
}

type VisionService struct {
  log    *logger.Logger
  client VisionClient
}

func NewVisionService(log *logger.Logger, client VisionClient) *VisionService {
  return &VisionService{log: log.With("service", "VisionService"), client: client}
}

// DetectItems runs the vision model and normalizes its output into session
// items. Blank labels are dropped, confidence is clamped to [0,1] and gram
// ranges are reordered when the model returns them inverted.
func (vs *VisionService) DetectItems(ctx context.Context, imageData []byte, mimeType string) ([]types.SessionItem, error) {
  if len(imageData) == 0 {
    return nil, apierr.Validation("empty photo payload")
  }
  detected, err := vs.client.AnalyzePhoto(ctx, imageData, mimeType)
  if err != nil {
    vs.log.Warn("vision analysis failed", "error", err)
    return nil, apierr.LookupUnavailable(err)
  }

  items := make([]types.SessionItem, 0, len(detected))
  for _, d := range detected {
    label := strings.TrimSpace(d.Label)
    if label == "" {
      continue
    }
    confidence := d.Confidence
    if confidence < 0 {
      confidence = 0
    }
    if confidence > 1 {
      confidence = 1
    }
    low, high := d.EstimatedGramsLow, d.EstimatedGramsHigh
    if low < 0 {
      low = 0
    }
    if high < low {
      low, high = high, low
    }
    item := types.SessionItem{Label: label, Confidence: &confidence}
    if high > 0 {
      l, h := low, high
      item.EstimatedGramsLow = &l
      item.EstimatedGramsHigh = &h
    }
    items = append(items, item)
  }
  return items, nil
}
