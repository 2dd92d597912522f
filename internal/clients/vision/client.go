package vision

import (
  "bytes"
  "context"
  "encoding/base64"
  "encoding/json"
  "fmt"
  "io"
  "net/http"
  "os"
  "strconv"
  "strings"
  "time"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/pkg/httpx"
  "github.com/yungbote/macrolog-backend/internal/services"
)

const systemPrompt = `You identify foods in a meal photo. Return every distinct food you can see with a confidence between 0 and 1 and an estimated portion range in grams. Do not include plates, cutlery or drinks unless they are caloric.`

// Client implements photo analysis on top of an OpenAI-compatible
// multimodal endpoint with a JSON schema response.
type Client struct {
  log        *logger.Logger
  baseURL    string
  apiKey     string
  model      string
  httpClient *http.Client
  maxRetries int
}

func NewClient(log *logger.Logger) (*Client, error) {
  apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
  if apiKey == "" {
    return nil, fmt.Errorf("missing OPENAI_API_KEY")
  }
  baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
  if baseURL == "" {
    baseURL = "https://api.openai.com"
  }
  baseURL = strings.TrimRight(baseURL, "/")

  model := strings.TrimSpace(os.Getenv("OPENAI_VISION_MODEL"))
  if model == "" {
    model = "gpt-4o-mini"
  }

  timeoutSec := 60
  if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
      timeoutSec = parsed
    }
  }
  maxRetries := 3
  if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
      maxRetries = parsed
    }
  }

  return &Client{
    log:        log.With("service", "VisionClient"),
    baseURL:    baseURL,
    apiKey:     apiKey,
    model:      model,
    httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
    maxRetries: maxRetries,
  }, nil
}

type visionHTTPError struct {
  StatusCode int
  Body       string
}

func (e *visionHTTPError) Error() string {
  return fmt.Sprintf("vision http %d: %s", e.StatusCode, e.Body)
}

func (e *visionHTTPError) HTTPStatusCode() int {
  if e == nil {
    return 0
  }
  return e.StatusCode
}

func (c *Client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
  var buf bytes.Buffer
  if err := json.NewEncoder(&buf).Encode(body); err != nil {
    return nil, nil, err
  }
  req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
  if err != nil {
    return nil, nil, err
  }
  req.Header.Set("Authorization", "Bearer "+c.apiKey)
  req.Header.Set("Content-Type", "application/json")

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
    return resp, raw, &visionHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
  }
  return resp, raw, nil
}

func (c *Client) do(ctx context.Context, path string, body any, out any) error {
  backoff := 1 * time.Second

  for attempt := 0; attempt <= c.maxRetries; attempt++ {
    if ctx.Err() != nil {
      return ctx.Err()
    }

    resp, raw, err := c.doOnce(ctx, path, body)
    if err == nil {
      if uErr := json.Unmarshal(raw, out); uErr != nil {
        return fmt.Errorf("vision decode error: %w", uErr)
      }
      return nil
    }

    if !httpx.IsRetryableError(err) {
      return err
    }
    if attempt == c.maxRetries {
      return err
    }

    sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
    sleepFor = httpx.JitterSleep(sleepFor)
    c.log.Warn("vision request retrying", "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
    time.Sleep(sleepFor)
    backoff *= 2
  }
  return fmt.Errorf("unreachable retry loop")
}

type chatResponse struct {
  Choices []struct {
    Message struct {
      Content string `json:"content"`
    } `json:"message"`
  } `json:"choices"`
}

type detectedPayload struct {
  Items []services.VisionItem `json:"items"`
}

func (c *Client) AnalyzePhoto(ctx context.Context, imageData []byte, mimeType string) ([]services.VisionItem, error) {
  if mimeType == "" {
    mimeType = "image/jpeg"
  }
  dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(imageData)

  schema := map[string]any{
    "type":                 "object",
    "additionalProperties": false,
    "required":             []string{"items"},
    "properties": map[string]any{
      "items": map[string]any{
        "type": "array",
        "items": map[string]any{
          "type":                 "object",
          "additionalProperties": false,
          "required":             []string{"label", "confidence", "estimated_grams_low", "estimated_grams_high"},
          "properties": map[string]any{
            "label":                map[string]any{"type": "string"},
            "confidence":           map[string]any{"type": "number"},
            "estimated_grams_low":  map[string]any{"type": "number"},
            "estimated_grams_high": map[string]any{"type": "number"},
          },
        },
      },
    },
  }

  body := map[string]any{
    "model": c.model,
    "messages": []any{
      map[string]any{"role": "system", "content": systemPrompt},
      map[string]any{
        "role": "user",
        "content": []any{
          map[string]any{"type": "text", "text": "What foods are in this meal?"},
          map[string]any{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
        },
      },
    },
    "response_format": map[string]any{
      "type": "json_schema",
      "json_schema": map[string]any{
        "name":   "detected_foods",
        "strict": true,
        "schema": schema,
      },
    },
  }

  var resp chatResponse
  if err := c.do(ctx, "/v1/chat/completions", body, &resp); err != nil {
    return nil, err
  }
  if len(resp.Choices) == 0 {
    return nil, fmt.Errorf("vision response had no choices")
  }

  var payload detectedPayload
  if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &payload); err != nil {
    return nil, fmt.Errorf("vision payload decode error: %w", err)
  }
  return payload.Items, nil
}
