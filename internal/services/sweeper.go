package services

import (
  "context"
  "time"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/repos"
  "github.com/yungbote/macrolog-backend/internal/utils"
)

// SessionSweeper periodically marks overdue sessions EXPIRED so abandoned
// flows do not block new ones, and drops photo records left behind by
// finished sessions. Expiry is also enforced lazily on access; the sweep
// just keeps the tables tidy.
type SessionSweeper struct {
  log      *logger.Logger
  sessions repos.SessionRepo
  photos   repos.PhotoRepo
  interval time.Duration
}

func NewSessionSweeper(log *logger.Logger, sessions repos.SessionRepo, photos repos.PhotoRepo) *SessionSweeper {
  l := log.With("service", "SessionSweeper")
  seconds := utils.GetEnvAsInt("SWEEP_INTERVAL_SECONDS", 60, l)
  if seconds <= 0 {
    seconds = 60
  }
  return &SessionSweeper{
    log:      l,
    sessions: sessions,
    photos:   photos,
    interval: time.Duration(seconds) * time.Second,
  }
}

// Start runs the sweep loop until ctx is cancelled.
func (sw *SessionSweeper) Start(ctx context.Context) {
  go func() {
    ticker := time.NewTicker(sw.interval)
    defer ticker.Stop()
    for {
      select {
      case <-ctx.Done():
        return
      case <-ticker.C:
        sw.sweep(ctx)
      }
    }
  }()
}

func (sw *SessionSweeper) sweep(ctx context.Context) {
  expired, err := sw.sessions.ExpireDue(ctx, nil, time.Now().UTC())
  if err != nil {
    sw.log.Warn("session sweep failed", "error", err)
    return
  }
  if expired > 0 {
    sw.log.Info("expired stale sessions", "count", expired)
  }
  deleted, err := sw.photos.DeleteForFinishedSessions(ctx, nil)
  if err != nil {
    sw.log.Warn("photo sweep failed", "error", err)
    return
  }
  if deleted > 0 {
    sw.log.Info("deleted photos of finished sessions", "count", deleted)
  }
}
