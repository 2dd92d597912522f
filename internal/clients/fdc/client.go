package fdc

import (
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "io"
  "net/http"
  "net/url"
  "os"
  "strconv"
  "strings"
  "time"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/pkg/httpx"
  "github.com/yungbote/macrolog-backend/internal/services"
)

// Nutrient numbers in the FoodData Central schema.
const (
  nutrientEnergyKcal = 1008
  nutrientProtein    = 1003
  nutrientFat        = 1004
  nutrientCarbs      = 1005
)

// Client talks to the USDA FoodData Central API. Macro values it returns are
// per 100g, which is how FDC normalizes branded and survey foods.
type Client struct {
  log        *logger.Logger
  baseURL    string
  apiKey     string
  httpClient *http.Client
  maxRetries int
}

func NewClient(log *logger.Logger) (*Client, error) {
  apiKey := strings.TrimSpace(os.Getenv("FDC_API_KEY"))
  if apiKey == "" {
    return nil, fmt.Errorf("missing FDC_API_KEY")
  }
  baseURL := strings.TrimSpace(os.Getenv("FDC_BASE_URL"))
  if baseURL == "" {
    baseURL = "https://api.nal.usda.gov/fdc"
  }
  baseURL = strings.TrimRight(baseURL, "/")

  timeoutSec := 15
  if v := os.Getenv("FDC_TIMEOUT_SECONDS"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
      timeoutSec = parsed
    }
  }
  maxRetries := 3
  if v := os.Getenv("FDC_MAX_RETRIES"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
      maxRetries = parsed
    }
  }

  return &Client{
    log:        log.With("service", "FDCClient"),
    baseURL:    baseURL,
    apiKey:     apiKey,
    httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
    maxRetries: maxRetries,
  }, nil
}

type fdcHTTPError struct {
  StatusCode int
  Body       string
}

func (e *fdcHTTPError) Error() string {
  return fmt.Sprintf("fdc http %d: %s", e.StatusCode, e.Body)
}

func (e *fdcHTTPError) HTTPStatusCode() int {
  if e == nil {
    return 0
  }
  return e.StatusCode
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, []byte, error) {
  var buf bytes.Buffer
  if body != nil {
    if err := json.NewEncoder(&buf).Encode(body); err != nil {
      return nil, nil, err
    }
  }

  query.Set("api_key", c.apiKey)
  req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query.Encode(), &buf)
  if err != nil {
    return nil, nil, err
  }
  if body != nil {
    req.Header.Set("Content-Type", "application/json")
  }

  resp, err := c.httpClient.Do(req)
  if err != nil {
    return nil, nil, err
  }
  raw, readErr := io.ReadAll(resp.Body)
  _ = resp.Body.Close()
  if readErr != nil {
    return resp, nil, readErr
  }
  if resp.StatusCode < 200 || resp.StatusCode >= 300 {
    return resp, raw, &fdcHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
  }
  return resp, raw, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
  backoff := 500 * time.Millisecond

  for attempt := 0; attempt <= c.maxRetries; attempt++ {
    if ctx.Err() != nil {
      return ctx.Err()
    }

    resp, raw, err := c.doOnce(ctx, method, path, query, body)
    if err == nil {
      if out == nil {
        return nil
      }
      if uErr := json.Unmarshal(raw, out); uErr != nil {
        return fmt.Errorf("fdc decode error: %w", uErr)
      }
      return nil
    }

    if !httpx.IsRetryableError(err) {
      return err
    }
    if attempt == c.maxRetries {
      return err
    }

    sleepFor := httpx.RetryAfterDuration(resp, backoff, 5*time.Second)
    sleepFor = httpx.JitterSleep(sleepFor)
    c.log.Warn("FDC request retrying", "path", path, "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
    time.Sleep(sleepFor)
    backoff *= 2
  }
  return fmt.Errorf("unreachable retry loop")
}

type searchRequest struct {
  Query    string `json:"query"`
  PageSize int    `json:"pageSize"`
}

type searchResponse struct {
  Foods []struct {
    FdcID       int64   `json:"fdcId"`
    Description string  `json:"description"`
    BrandOwner  *string `json:"brandOwner,omitempty"`
    BrandName   *string `json:"brandName,omitempty"`
    DataType    *string `json:"dataType,omitempty"`
  } `json:"foods"`
}

func (c *Client) SearchFoods(ctx context.Context, query string, pageSize int) ([]services.FoodSummary, error) {
  if pageSize <= 0 {
    pageSize = 5
  }
  var resp searchResponse
  err := c.do(ctx, http.MethodPost, "/v1/foods/search", url.Values{}, searchRequest{Query: query, PageSize: pageSize}, &resp)
  if err != nil {
    return nil, err
  }
  out := make([]services.FoodSummary, 0, len(resp.Foods))
  for _, f := range resp.Foods {
    out = append(out, services.FoodSummary{
      FdcID:       f.FdcID,
      Description: f.Description,
      BrandOwner:  f.BrandOwner,
      BrandName:   f.BrandName,
      DataType:    f.DataType,
    })
  }
  return out, nil
}

type foodResponse struct {
  FdcID           int64   `json:"fdcId"`
  Description     string  `json:"description"`
  BrandOwner      *string `json:"brandOwner,omitempty"`
  DataType        *string `json:"dataType,omitempty"`
  ServingSize     *float64 `json:"servingSize,omitempty"`
  ServingSizeUnit *string  `json:"servingSizeUnit,omitempty"`
  FoodNutrients   []struct {
    Nutrient struct {
      ID int64 `json:"id"`
    } `json:"nutrient"`
    Amount *float64 `json:"amount,omitempty"`
  } `json:"foodNutrients"`
}

func (c *Client) GetFood(ctx context.Context, fdcID int64) (*services.FoodDetails, error) {
  var resp foodResponse
  err := c.do(ctx, http.MethodGet, "/v1/food/"+strconv.FormatInt(fdcID, 10), url.Values{}, nil, &resp)
  if err != nil {
    return nil, err
  }

  details := &services.FoodDetails{
    Summary: services.FoodSummary{
      FdcID:       resp.FdcID,
      Description: resp.Description,
      BrandOwner:  resp.BrandOwner,
      DataType:    resp.DataType,
    },
  }
  for _, fn := range resp.FoodNutrients {
    if fn.Amount == nil {
      continue
    }
    switch fn.Nutrient.ID {
    case nutrientEnergyKcal:
      details.Calories = *fn.Amount
    case nutrientProtein:
      details.ProteinG = *fn.Amount
    case nutrientFat:
      details.FatG = *fn.Amount
    case nutrientCarbs:
      details.CarbsG = *fn.Amount
    }
  }
  if resp.ServingSize != nil && resp.ServingSizeUnit != nil && strings.EqualFold(*resp.ServingSizeUnit, "g") {
    details.ServingSizeG = resp.ServingSize
  }
  return details, nil
}
