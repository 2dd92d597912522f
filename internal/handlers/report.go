package handlers

import (
  "net/http"
  "strconv"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/yungbote/macrolog-backend/internal/apierr"
  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/services"
)

// ReportHandler serves the JWT-guarded admin read API.
type ReportHandler struct {
  log   *logger.Logger
  users *services.UserService
  stats *services.StatsService
  audit *services.AuditService
}

func NewReportHandler(log *logger.Logger, users *services.UserService, stats *services.StatsService, audit *services.AuditService) *ReportHandler {
  return &ReportHandler{
    log:   log.With("handler", "ReportHandler"),
    users: users,
    stats: stats,
    audit: audit,
  }
}

// userID parses the path parameter and confirms the user exists, so admin
// queries distinguish "unknown user" from "no data".
func (rh *ReportHandler) userID(c *gin.Context) (uuid.UUID, bool) {
  id, err := uuid.Parse(c.Param("user_id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
    return uuid.Nil, false
  }
  user, err := rh.users.GetByID(c.Request.Context(), id)
  if err != nil {
    RespondAPIError(c, err)
    return uuid.Nil, false
  }
  if user == nil {
    RespondError(c, http.StatusNotFound, apierr.CodeNotFound, apierr.NotFound("user"))
    return uuid.Nil, false
  }
  return id, true
}

func (rh *ReportHandler) GetStats(c *gin.Context) {
  userID, ok := rh.userID(c)
  if !ok {
    return
  }
  ctx := c.Request.Context()

  var (
    stats *services.PeriodStats
    err   error
  )
  switch period := c.DefaultQuery("period", "today"); period {
  case "today":
    stats, err = rh.stats.Today(ctx, userID)
  case "week":
    stats, err = rh.stats.Week(ctx, userID)
  case "month":
    stats, err = rh.stats.Month(ctx, userID)
  default:
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, apierr.Validation("unknown period %q", period))
    return
  }
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{
    "start":      stats.Start,
    "end":        stats.End,
    "meal_count": stats.MealCount,
    "totals":     stats.Totals,
  })
}

func (rh *ReportHandler) GetHistory(c *gin.Context) {
  userID, ok := rh.userID(c)
  if !ok {
    return
  }
  limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
  entries, err := rh.stats.History(c.Request.Context(), userID, limit)
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"meals": entries})
}

func (rh *ReportHandler) GetAuditTrail(c *gin.Context) {
  userID, ok := rh.userID(c)
  if !ok {
    return
  }
  limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
  events, err := rh.audit.ListByUser(c.Request.Context(), userID, limit)
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"events": events})
}
