package telegram

import (
  "bytes"
  "context"
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
)

// Update is an incoming Telegram Bot API update delivered to the webhook.
type Update struct {
  UpdateID      int64          `json:"update_id"`
  Message       *Message       `json:"message,omitempty"`
  CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type Message struct {
  MessageID int64       `json:"message_id"`
  From      *TgUser     `json:"from,omitempty"`
  Chat      Chat        `json:"chat"`
  Text      string      `json:"text,omitempty"`
  Photo     []PhotoSize `json:"photo,omitempty"`
}

type TgUser struct {
  ID       int64  `json:"id"`
  Username string `json:"username,omitempty"`
}

type Chat struct {
  ID int64 `json:"id"`
}

// PhotoSize is one rendition of a photo; Telegram sends several, largest
// last.
type PhotoSize struct {
  FileID       string `json:"file_id"`
  FileUniqueID string `json:"file_unique_id"`
  Width        int    `json:"width"`
  Height       int    `json:"height"`
  FileSize     int64  `json:"file_size,omitempty"`
}

type CallbackQuery struct {
  ID      string   `json:"id"`
  From    *TgUser  `json:"from,omitempty"`
  Message *Message `json:"message,omitempty"`
  Data    string   `json:"data,omitempty"`
}

type InlineKeyboardButton struct {
  Text         string `json:"text"`
  CallbackData string `json:"callback_data"`
}

type InlineKeyboardMarkup struct {
  InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// Client wraps the Telegram Bot API calls the backend makes: outbound
// messages, callback acks and photo downloads.
type Client struct {
  log        *logger.Logger
  apiBase    string
  fileBase   string
  token      string
  httpClient *http.Client
  maxRetries int
}

func NewClient(log *logger.Logger) (*Client, error) {
  token := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
  if token == "" {
    return nil, fmt.Errorf("missing TELEGRAM_BOT_TOKEN")
  }
  apiBase := strings.TrimSpace(os.Getenv("TELEGRAM_API_BASE"))
  if apiBase == "" {
    apiBase = "https://api.telegram.org"
  }
  apiBase = strings.TrimRight(apiBase, "/")

  timeoutSec := 30
  if v := os.Getenv("TELEGRAM_TIMEOUT_SECONDS"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
      timeoutSec = parsed
    }
  }

  return &Client{
    log:        log.With("service", "TelegramClient"),
    apiBase:    apiBase + "/bot" + token,
    fileBase:   apiBase + "/file/bot" + token,
    token:      token,
    httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
    maxRetries: 3,
  }, nil
}

type tgHTTPError struct {
  StatusCode int
  Body       string
}

func (e *tgHTTPError) Error() string {
  return fmt.Sprintf("telegram http %d: %s", e.StatusCode, e.Body)
}

func (e *tgHTTPError) HTTPStatusCode() int {
  if e == nil {
    return 0
  }
  return e.StatusCode
}

type apiResponse struct {
  OK          bool            `json:"ok"`
  Result      json.RawMessage `json:"result,omitempty"`
  Description string          `json:"description,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, body any, out any) error {
  backoff := 500 * time.Millisecond

  for attempt := 0; attempt <= c.maxRetries; attempt++ {
    if ctx.Err() != nil {
      return ctx.Err()
    }

    resp, raw, err := c.callOnce(ctx, method, body)
    if err == nil {
      var envelope apiResponse
      if uErr := json.Unmarshal(raw, &envelope); uErr != nil {
        return fmt.Errorf("telegram decode error: %w", uErr)
      }
      if !envelope.OK {
        return fmt.Errorf("telegram %s: %s", method, envelope.Description)
      }
      if out != nil {
        if uErr := json.Unmarshal(envelope.Result, out); uErr != nil {
          return fmt.Errorf("telegram result decode error: %w", uErr)
        }
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
    c.log.Warn("telegram request retrying", "method", method, "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
    time.Sleep(sleepFor)
    backoff *= 2
  }
  return fmt.Errorf("unreachable retry loop")
}

func (c *Client) callOnce(ctx context.Context, method string, body any) (*http.Response, []byte, error) {
  var buf bytes.Buffer
  if err := json.NewEncoder(&buf).Encode(body); err != nil {
    return nil, nil, err
  }
  req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, &buf)
  if err != nil {
    return nil, nil, err
  }
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
    return resp, raw, &tgHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
  }
  return resp, raw, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboardMarkup) error {
  body := map[string]any{
    "chat_id": chatID,
    "text":    text,
  }
  if keyboard != nil && len(keyboard.InlineKeyboard) > 0 {
    body["reply_markup"] = keyboard
  }
  return c.call(ctx, "sendMessage", body, nil)
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error {
  return c.call(ctx, "answerCallbackQuery", map[string]any{"callback_query_id": callbackQueryID}, nil)
}

type fileInfo struct {
  FileID   string `json:"file_id"`
  FilePath string `json:"file_path"`
}

// DownloadPhoto resolves a file_id to a path and fetches the bytes.
func (c *Client) DownloadPhoto(ctx context.Context, fileID string) ([]byte, error) {
  var info fileInfo
  if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &info); err != nil {
    return nil, err
  }
  if info.FilePath == "" {
    return nil, fmt.Errorf("telegram getFile returned empty path")
  }

  req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileBase+"/"+info.FilePath, nil)
  if err != nil {
    return nil, err
  }
  resp, err := c.httpClient.Do(req)
  if err != nil {
    return nil, err
  }
  defer resp.Body.Close()
  if resp.StatusCode != http.StatusOK {
    return nil, fmt.Errorf("telegram file download http %d", resp.StatusCode)
  }
  return io.ReadAll(resp.Body)
}
