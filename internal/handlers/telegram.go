package handlers

import (
  "context"
  "errors"
  "fmt"
  "net/http"
  "os"
  "strconv"
  "strings"
  "time"

  "github.com/gin-gonic/gin"

  "github.com/yungbote/macrolog-backend/internal/apierr"
  "github.com/yungbote/macrolog-backend/internal/clients/telegram"
  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/repos"
  "github.com/yungbote/macrolog-backend/internal/services"
  "github.com/yungbote/macrolog-backend/internal/types"
)

// TelegramHandler turns webhook updates into session actions and renders
// prompts back as Telegram messages. Telegram retries undelivered updates,
// so the webhook always answers 200 once the update is syntactically valid.
type TelegramHandler struct {
  log           *logger.Logger
  tg            *telegram.Client
  users         *services.UserService
  sessions      *services.SessionService
  stats         *services.StatsService
  settings      *services.UserSettingsService
  photos        repos.PhotoRepo
  webhookSecret string
}

func NewTelegramHandler(
  log *logger.Logger,
  tg *telegram.Client,
  users *services.UserService,
  sessions *services.SessionService,
  stats *services.StatsService,
  settings *services.UserSettingsService,
  photos repos.PhotoRepo,
) *TelegramHandler {
  return &TelegramHandler{
    log:           log.With("handler", "TelegramHandler"),
    tg:            tg,
    users:         users,
    sessions:      sessions,
    stats:         stats,
    settings:      settings,
    photos:        photos,
    webhookSecret: strings.TrimSpace(os.Getenv("TELEGRAM_WEBHOOK_SECRET")),
  }
}

func (th *TelegramHandler) Webhook(c *gin.Context) {
  if th.webhookSecret != "" && c.GetHeader("X-Telegram-Bot-Api-Secret-Token") != th.webhookSecret {
    c.Status(http.StatusForbidden)
    return
  }

  var update telegram.Update
  if err := c.ShouldBindJSON(&update); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
    return
  }

  ctx := c.Request.Context()
  switch {
  case update.CallbackQuery != nil:
    th.handleCallback(ctx, update.CallbackQuery)
  case update.Message != nil:
    th.handleMessage(ctx, update.Message)
  }
  c.Status(http.StatusOK)
}

func (th *TelegramHandler) handleMessage(ctx context.Context, msg *telegram.Message) {
  if msg.From == nil {
    return
  }
  chatID := msg.Chat.ID
  user, err := th.users.EnsureUser(ctx, msg.From.ID)
  if err != nil {
    th.log.Error("ensure user failed", "telegram_user_id", msg.From.ID, "error", err)
    return
  }

  switch {
  case len(msg.Photo) > 0:
    th.handlePhoto(ctx, user, chatID, msg)
  case strings.HasPrefix(msg.Text, "/"):
    th.handleCommand(ctx, user, chatID, msg.Text)
  case strings.TrimSpace(msg.Text) != "":
    prompt, err := th.sessions.HandleAction(ctx, user.ID, services.Action{
      Type: services.ActionText,
      Text: msg.Text,
    })
    th.deliver(ctx, chatID, prompt, err)
  }
}

func (th *TelegramHandler) handlePhoto(ctx context.Context, user *types.User, chatID int64, msg *telegram.Message) {
  // Telegram lists renditions smallest first.
  best := msg.Photo[len(msg.Photo)-1]
  data, err := th.tg.DownloadPhoto(ctx, best.FileID)
  if err != nil {
    th.log.Error("photo download failed", "file_id", best.FileID, "error", err)
    th.send(ctx, chatID, "I could not download that photo. Please try again.", nil)
    return
  }

  uniqueID := best.FileUniqueID
  photo, err := th.photos.Create(ctx, nil, &types.Photo{
    UserID:               user.ID,
    TelegramChatID:       chatID,
    TelegramMessageID:    msg.MessageID,
    TelegramFileID:       best.FileID,
    TelegramFileUniqueID: &uniqueID,
  })
  if err != nil {
    th.log.Error("photo record failed", "error", err)
    th.send(ctx, chatID, "Something went wrong. Please try again.", nil)
    return
  }

  prompt, err := th.sessions.StartPhotoSession(ctx, user.ID, &photo.ID, data, "image/jpeg")
  th.deliver(ctx, chatID, prompt, err)
}

func (th *TelegramHandler) handleCommand(ctx context.Context, user *types.User, chatID int64, text string) {
  fields := strings.Fields(text)
  command := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
  if at := strings.Index(command, "@"); at >= 0 {
    command = command[:at]
  }

  switch command {
  case "start":
    text := "Send me a photo of your meal and I will log it.\n\nCommands:\n/today /week /month - totals\n/history - recent meals\n/edit - fix a saved meal\n/add - add a food to your library\n/timezone <name> - set your timezone\n/cancel - abandon the current session"
    if set, err := th.settings.IsTimezoneSet(ctx, user.ID); err == nil && !set {
      text += "\n\nTip: your stats use UTC until you set a timezone, e.g. /timezone Europe/Berlin"
    }
    th.send(ctx, chatID, text, nil)

  case "today":
    th.sendPeriod(ctx, chatID, "Today", func() (*services.PeriodStats, error) { return th.stats.Today(ctx, user.ID) })
  case "week":
    th.sendPeriod(ctx, chatID, "This week", func() (*services.PeriodStats, error) { return th.stats.Week(ctx, user.ID) })
  case "month":
    th.sendPeriod(ctx, chatID, "This month", func() (*services.PeriodStats, error) { return th.stats.Month(ctx, user.ID) })

  case "history":
    entries, err := th.stats.History(ctx, user.ID, 10)
    if err != nil {
      th.log.Error("history failed", "user_id", user.ID, "error", err)
      th.send(ctx, chatID, "Could not load your history right now.", nil)
      return
    }
    if len(entries) == 0 {
      th.send(ctx, chatID, "No meals logged yet. Send a photo to start.", nil)
      return
    }
    var b strings.Builder
    b.WriteString("Recent meals:\n")
    for _, e := range entries {
      fmt.Fprintf(&b, "- %s: %s\n", e.LoggedAt.Format("Jan 2 15:04"), services.FormatMacros(services.ItemMacros(e.Totals)))
    }
    th.send(ctx, chatID, b.String(), nil)

  case "add":
    prompt, err := th.sessions.StartLibraryAdd(ctx, user.ID)
    th.deliver(ctx, chatID, prompt, err)

  case "edit":
    pick := 1
    if len(fields) > 1 {
      n, err := strconv.Atoi(fields[1])
      if err != nil || n < 1 {
        th.send(ctx, chatID, "Usage: /edit or /edit <n> where n is a position from /history.", nil)
        return
      }
      pick = n
    }
    entries, err := th.stats.History(ctx, user.ID, pick)
    if err != nil {
      th.log.Error("history failed", "user_id", user.ID, "error", err)
      th.send(ctx, chatID, "Could not load your history right now.", nil)
      return
    }
    if len(entries) < pick {
      th.send(ctx, chatID, "No meal at that position. Check /history.", nil)
      return
    }
    prompt, err := th.sessions.StartEditSession(ctx, user.ID, entries[pick-1].MealID)
    th.deliver(ctx, chatID, prompt, err)

  case "timezone":
    if len(fields) < 2 {
      th.send(ctx, chatID, "Usage: /timezone Europe/Berlin", nil)
      return
    }
    tz := fields[1]
    if _, err := time.LoadLocation(tz); err != nil {
      th.send(ctx, chatID, fmt.Sprintf("%q is not a valid timezone name.", tz), nil)
      return
    }
    if err := th.settings.SetTimezone(ctx, user.ID, tz); err != nil {
      th.log.Error("set timezone failed", "user_id", user.ID, "error", err)
      th.send(ctx, chatID, "Could not save your timezone right now.", nil)
      return
    }
    th.send(ctx, chatID, fmt.Sprintf("Timezone set to %s.", tz), nil)

  case "cancel":
    cancelled, err := th.sessions.CancelActive(ctx, user.ID)
    if err != nil {
      th.log.Error("cancel failed", "user_id", user.ID, "error", err)
      return
    }
    if cancelled {
      th.send(ctx, chatID, "Session cancelled. Nothing was logged.", nil)
    } else {
      th.send(ctx, chatID, "Nothing to cancel.", nil)
    }

  default:
    th.send(ctx, chatID, "I don't know that command. Try /start.", nil)
  }
}

func (th *TelegramHandler) sendPeriod(ctx context.Context, chatID int64, title string, load func() (*services.PeriodStats, error)) {
  stats, err := load()
  if err != nil {
    th.log.Error("stats failed", "error", err)
    th.send(ctx, chatID, "Could not load your stats right now.", nil)
    return
  }
  if stats.MealCount == 0 {
    th.send(ctx, chatID, title+": no meals logged.", nil)
    return
  }
  th.send(ctx, chatID, fmt.Sprintf("%s: %d meals, %s", title, stats.MealCount, services.FormatMacros(services.ItemMacros(stats.Totals))), nil)
}

func (th *TelegramHandler) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
  if cb.From == nil || cb.Message == nil {
    return
  }
  chatID := cb.Message.Chat.ID
  user, err := th.users.EnsureUser(ctx, cb.From.ID)
  if err != nil {
    th.log.Error("ensure user failed", "telegram_user_id", cb.From.ID, "error", err)
    return
  }
  if ackErr := th.tg.AnswerCallbackQuery(ctx, cb.ID); ackErr != nil {
    th.log.Warn("callback ack failed", "error", ackErr)
  }

  name, payload := cb.Data, ""
  if i := strings.Index(cb.Data, ":"); i >= 0 {
    name, payload = cb.Data[:i], cb.Data[i+1:]
  }
  prompt, err := th.sessions.HandleAction(ctx, user.ID, services.Action{
    Type:    services.ActionCallback,
    Name:    name,
    Payload: payload,
  })
  th.deliver(ctx, chatID, prompt, err)
}

// deliver renders the state machine outcome. Taxonomy errors become user
// messages; the accompanying prompt, when present, re-asks the question.
func (th *TelegramHandler) deliver(ctx context.Context, chatID int64, prompt *services.Prompt, err error) {
  if err != nil {
    switch {
    case apierr.IsValidation(err), apierr.IsInvalidTransition(err):
      var ae *apierr.Error
      text := "That didn't work."
      if errors.As(err, &ae) && ae.Err != nil {
        text = "That didn't work: " + ae.Err.Error() + "."
      }
      th.send(ctx, chatID, text, nil)
    case apierr.IsSessionExpired(err):
      th.send(ctx, chatID, "That session expired. Send a new photo to start over.", nil)
      return
    case apierr.IsLookupUnavailable(err):
      th.send(ctx, chatID, "The food database is unavailable right now. Please try again in a moment.", nil)
    case apierr.IsCommitFailed(err):
      th.send(ctx, chatID, "Saving failed. Your meal is still here, tap Save to retry.", nil)
    default:
      th.log.Error("session action failed", "error", err)
      th.send(ctx, chatID, "Something went wrong. Please try again.", nil)
      return
    }
  }
  if prompt != nil {
    th.send(ctx, chatID, prompt.Text, keyboardFor(prompt))
  }
}

func (th *TelegramHandler) send(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) {
  if err := th.tg.SendMessage(ctx, chatID, text, keyboard); err != nil {
    th.log.Error("send message failed", "chat_id", chatID, "error", err)
  }
}

func keyboardFor(prompt *services.Prompt) *telegram.InlineKeyboardMarkup {
  if len(prompt.Buttons) == 0 {
    return nil
  }
  rows := make([][]telegram.InlineKeyboardButton, 0, len(prompt.Buttons))
  for _, row := range prompt.Buttons {
    buttons := make([]telegram.InlineKeyboardButton, 0, len(row))
    for _, b := range row {
      buttons = append(buttons, telegram.InlineKeyboardButton{Text: b.Label, CallbackData: b.Data})
    }
    rows = append(rows, buttons)
  }
  return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}
