package services

import (
  "bytes"
  "context"
  "sort"
  "strings"
  "testing"
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/driver/sqlite"
  "gorm.io/gorm"
  gormlogger "gorm.io/gorm/logger"

  "github.com/yungbote/macrolog-backend/internal/apierr"
  "github.com/yungbote/macrolog-backend/internal/cache"
  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/repos"
  "github.com/yungbote/macrolog-backend/internal/types"
)

// newTestDB opens an in-memory sqlite handle used purely as a transaction
// shell; the fakes below hold all state.
func newTestDB(t *testing.T) *gorm.DB {
  t.Helper()
  db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
  if err != nil {
    t.Fatalf("open sqlite: %v", err)
  }
  return db
}

type fakeSessionRepo struct {
  sessions []*types.PhotoSession
}

func (f *fakeSessionRepo) Create(_ context.Context, _ *gorm.DB, session *types.PhotoSession) (*types.PhotoSession, error) {
  if session.ID == uuid.Nil {
    session.ID = uuid.New()
  }
  session.CreatedAt = time.Now()
  f.sessions = append(f.sessions, session)
  return session, nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, _ *gorm.DB, sessionID uuid.UUID) (*types.PhotoSession, error) {
  for _, s := range f.sessions {
    if s.ID == sessionID {
      return s, nil
    }
  }
  return nil, nil
}

func (f *fakeSessionRepo) GetActiveByUser(_ context.Context, _ *gorm.DB, userID uuid.UUID) (*types.PhotoSession, error) {
  for i := len(f.sessions) - 1; i >= 0; i-- {
    s := f.sessions[i]
    if s.UserID == userID && !types.IsTerminalSessionStatus(s.Status) {
      return s, nil
    }
  }
  return nil, nil
}

func (f *fakeSessionRepo) Update(_ context.Context, _ *gorm.DB, sessionID uuid.UUID, status string, contextBlob datatypes.JSON, expiresAt *time.Time) error {
  for _, s := range f.sessions {
    if s.ID == sessionID {
      s.Status = status
      s.Context = contextBlob
      if expiresAt != nil {
        s.ExpiresAt = expiresAt
      }
    }
  }
  return nil
}

func (f *fakeSessionRepo) MarkStatus(_ context.Context, _ *gorm.DB, sessionID uuid.UUID, status string) error {
  for _, s := range f.sessions {
    if s.ID == sessionID {
      s.Status = status
    }
  }
  return nil
}

func (f *fakeSessionRepo) ExpireDue(_ context.Context, _ *gorm.DB, now time.Time) (int64, error) {
  var n int64
  for _, s := range f.sessions {
    if !types.IsTerminalSessionStatus(s.Status) && s.ExpiresAt != nil && s.ExpiresAt.Before(now) {
      s.Status = types.SessionExpired
      n++
    }
  }
  return n, nil
}

type fakeMealLogRepo struct {
  logs  []*types.MealLog
  items []*types.MealItem
}

func (f *fakeMealLogRepo) CreateLog(_ context.Context, _ *gorm.DB, log *types.MealLog) (*types.MealLog, error) {
  if log.ID == uuid.Nil {
    log.ID = uuid.New()
  }
  f.logs = append(f.logs, log)
  return log, nil
}

func (f *fakeMealLogRepo) CreateItems(_ context.Context, _ *gorm.DB, items []*types.MealItem) error {
  for _, item := range items {
    if item.ID == uuid.Nil {
      item.ID = uuid.New()
    }
    f.items = append(f.items, item)
  }
  return nil
}

func (f *fakeMealLogRepo) GetLog(_ context.Context, _ *gorm.DB, mealLogID uuid.UUID) (*types.MealLog, error) {
  for _, l := range f.logs {
    if l.ID == mealLogID {
      return l, nil
    }
  }
  return nil, nil
}

func (f *fakeMealLogRepo) GetLogWithItems(ctx context.Context, tx *gorm.DB, mealLogID uuid.UUID) (*types.MealLog, error) {
  l, err := f.GetLog(ctx, tx, mealLogID)
  if l == nil || err != nil {
    return nil, err
  }
  clone := *l
  clone.Items = nil
  for _, item := range f.items {
    if item.MealLogID == mealLogID {
      clone.Items = append(clone.Items, *item)
    }
  }
  return &clone, nil
}

func (f *fakeMealLogRepo) GetItem(_ context.Context, _ *gorm.DB, mealItemID uuid.UUID) (*types.MealItem, error) {
  for _, item := range f.items {
    if item.ID == mealItemID {
      return item, nil
    }
  }
  return nil, nil
}

func (f *fakeMealLogRepo) ListItems(_ context.Context, _ *gorm.DB, mealLogID uuid.UUID) ([]*types.MealItem, error) {
  var out []*types.MealItem
  for _, item := range f.items {
    if item.MealLogID == mealLogID {
      out = append(out, item)
    }
  }
  return out, nil
}

func (f *fakeMealLogRepo) UpdateItem(_ context.Context, _ *gorm.DB, mealItemID uuid.UUID, grams, calories, proteinG, fatG, carbsG float64) error {
  for _, item := range f.items {
    if item.ID == mealItemID {
      item.Grams = grams
      item.Calories = calories
      item.ProteinG = proteinG
      item.FatG = fatG
      item.CarbsG = carbsG
    }
  }
  return nil
}

func (f *fakeMealLogRepo) UpdateTotals(_ context.Context, _ *gorm.DB, mealLogID uuid.UUID, calories, proteinG, fatG, carbsG float64) error {
  for _, l := range f.logs {
    if l.ID == mealLogID {
      l.TotalCalories = calories
      l.TotalProteinG = proteinG
      l.TotalFatG = fatG
      l.TotalCarbsG = carbsG
    }
  }
  return nil
}

func (f *fakeMealLogRepo) ListByRange(_ context.Context, _ *gorm.DB, userID uuid.UUID, start, end time.Time) ([]*types.MealLog, error) {
  var out []*types.MealLog
  for _, l := range f.logs {
    if l.UserID == userID && !l.LoggedAt.Before(start) && l.LoggedAt.Before(end) {
      out = append(out, l)
    }
  }
  return out, nil
}

func (f *fakeMealLogRepo) ListRecent(_ context.Context, _ *gorm.DB, userID uuid.UUID, limit int) ([]*types.MealLog, error) {
  var out []*types.MealLog
  for _, l := range f.logs {
    if l.UserID == userID {
      out = append(out, l)
    }
  }
  sort.Slice(out, func(i, j int) bool { return out[i].LoggedAt.After(out[j].LoggedAt) })
  if len(out) > limit {
    out = out[:limit]
  }
  return out, nil
}

type fakeAuditRepo struct {
  events []*types.AuditEvent
}

func (f *fakeAuditRepo) CreateEvent(_ context.Context, _ *gorm.DB, event *types.AuditEvent) error {
  f.events = append(f.events, event)
  return nil
}

func (f *fakeAuditRepo) ListByUser(_ context.Context, _ *gorm.DB, userID uuid.UUID, _ int) ([]*types.AuditEvent, error) {
  var out []*types.AuditEvent
  for _, e := range f.events {
    if e.UserID == userID {
      out = append(out, e)
    }
  }
  return out, nil
}

type fakeVisionClient struct {
  items []VisionItem
  err   error
}

func (f *fakeVisionClient) AnalyzePhoto(_ context.Context, _ []byte, _ string) ([]VisionItem, error) {
  if f.err != nil {
    return nil, f.err
  }
  return f.items, nil
}

type fakePhotoRepo struct {
  photos  []*types.Photo
  deleted []uuid.UUID
}

func (f *fakePhotoRepo) Create(_ context.Context, _ *gorm.DB, photo *types.Photo) (*types.Photo, error) {
  if photo.ID == uuid.Nil {
    photo.ID = uuid.New()
  }
  f.photos = append(f.photos, photo)
  return photo, nil
}

func (f *fakePhotoRepo) Delete(_ context.Context, _ *gorm.DB, photoID uuid.UUID) error {
  for i, p := range f.photos {
    if p.ID == photoID {
      f.photos = append(f.photos[:i], f.photos[i+1:]...)
      break
    }
  }
  f.deleted = append(f.deleted, photoID)
  return nil
}

func (f *fakePhotoRepo) DeleteForFinishedSessions(_ context.Context, _ *gorm.DB) (int64, error) {
  return 0, nil
}

type sessionHarness struct {
  svc      *SessionService
  sessions *fakeSessionRepo
  photos   *fakePhotoRepo
  library  *fakeLibraryRepo
  meals    *fakeMealLogRepo
  audit    *fakeAuditRepo
  userID   uuid.UUID
}

var _ repos.SessionRepo = (*fakeSessionRepo)(nil)
var _ repos.PhotoRepo = (*fakePhotoRepo)(nil)
var _ repos.MealLogRepo = (*fakeMealLogRepo)(nil)
var _ repos.AuditRepo = (*fakeAuditRepo)(nil)

func newSessionHarness(t *testing.T, visionItems []VisionItem, foods []*types.LibraryFood) *sessionHarness {
  t.Helper()
  log := logger.NewNop()
  db := newTestDB(t)

  sessions := &fakeSessionRepo{}
  photos := &fakePhotoRepo{}
  library := &fakeLibraryRepo{foods: foods}
  meals := &fakeMealLogRepo{}
  audit := &fakeAuditRepo{}

  nutrition := NewNutritionService(log, &fakeNutritionClient{}, cache.NewMemory())
  resolver := NewResolverService(log, DefaultResolverPolicy(), library, nutrition)
  visionSvc := NewVisionService(log, &fakeVisionClient{items: visionItems})
  librarySvc := NewLibraryService(log, library)
  auditSvc := NewAuditService(log, audit)
  mealSvc := NewMealLogService(db, log, meals, librarySvc, auditSvc)

  svc := NewSessionService(db, log, sessions, photos, visionSvc, resolver, nutrition, librarySvc, mealSvc, NewUserLocker())
  return &sessionHarness{
    svc:      svc,
    sessions: sessions,
    photos:   photos,
    library:  library,
    meals:    meals,
    audit:    audit,
    userID:   uuid.New(),
  }
}

// addPhoto seeds a photo row the way the webhook handler does before it
// opens a session.
func (h *sessionHarness) addPhoto(t *testing.T) uuid.UUID {
  t.Helper()
  photo, err := h.photos.Create(context.Background(), nil, &types.Photo{UserID: h.userID})
  if err != nil {
    t.Fatalf("seed photo: %v", err)
  }
  return photo.ID
}

func chickenFood() *types.LibraryFood {
  used := time.Now().Add(-24 * time.Hour)
  return &types.LibraryFood{
    ID:         uuid.New(),
    UserID:     uuid.New(),
    Name:       "chicken breast",
    SourceType: types.SourceManual,
    Basis:      types.BasisPer100g,
    Calories:   165,
    ProteinG:   31,
    FatG:       3.6,
    UseCount:   5,
    LastUsedAt: &used,
  }
}

func TestPhotoSessionWalkthrough(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, []VisionItem{
    {Label: "chicken breast", Confidence: 0.9, EstimatedGramsLow: 100, EstimatedGramsHigh: 140},
  }, []*types.LibraryFood{chickenFood()})

  prompt, err := h.svc.StartPhotoSession(ctx, h.userID, nil, []byte("jpeg"), "image/jpeg")
  if err != nil {
    t.Fatalf("StartPhotoSession: %v", err)
  }
  if !strings.Contains(prompt.Text, "chicken breast") {
    t.Fatalf("review prompt = %q", prompt.Text)
  }

  prompt, err = h.svc.HandleAction(ctx, h.userID, Action{Type: ActionCallback, Name: "item_yes"})
  if err != nil {
    t.Fatalf("item_yes: %v", err)
  }
  if len(prompt.Buttons) < 2 {
    t.Fatalf("resolution prompt should list options plus manual, got %d rows", len(prompt.Buttons))
  }

  prompt, err = h.svc.HandleAction(ctx, h.userID, Action{Type: ActionCallback, Name: "choose", Payload: "0"})
  if err != nil {
    t.Fatalf("choose: %v", err)
  }
  if !strings.Contains(prompt.Text, "How much") {
    t.Fatalf("portion prompt = %q", prompt.Text)
  }

  prompt, err = h.svc.HandleAction(ctx, h.userID, Action{Type: ActionText, Text: "120g"})
  if err != nil {
    t.Fatalf("grams: %v", err)
  }
  if !strings.Contains(prompt.Text, "198 kcal") {
    t.Fatalf("summary prompt = %q, want 198 kcal", prompt.Text)
  }

  prompt, err = h.svc.HandleAction(ctx, h.userID, Action{Type: ActionCallback, Name: "save"})
  if err != nil {
    t.Fatalf("save: %v", err)
  }
  if !strings.Contains(prompt.Text, "Logged!") {
    t.Fatalf("save prompt = %q", prompt.Text)
  }

  if len(h.meals.logs) != 1 || len(h.meals.items) != 1 {
    t.Fatalf("committed %d logs / %d items, want 1 / 1", len(h.meals.logs), len(h.meals.items))
  }
  mealLog := h.meals.logs[0]
  item := h.meals.items[0]
  if mealLog.TotalCalories != item.Calories || mealLog.TotalProteinG != item.ProteinG {
    t.Fatalf("totals diverge from item sums: %+v vs %+v", mealLog, item)
  }
  if h.library.usageCalls != 1 {
    t.Fatalf("library usage recorded %d times, want 1", h.library.usageCalls)
  }
  if len(h.audit.events) != 1 || h.audit.events[0].EventType != "create" {
    t.Fatalf("audit events = %+v", h.audit.events)
  }
  if h.sessions.sessions[0].Status != types.SessionSaved {
    t.Fatalf("session status = %q, want SAVED", h.sessions.sessions[0].Status)
  }
}

func TestStartPhotoSession_DoesNotForkActiveSession(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, []VisionItem{
    {Label: "rice", Confidence: 0.8, EstimatedGramsLow: 100, EstimatedGramsHigh: 200},
  }, nil)

  if _, err := h.svc.StartPhotoSession(ctx, h.userID, nil, []byte("jpeg"), "image/jpeg"); err != nil {
    t.Fatalf("first start: %v", err)
  }
  prompt, err := h.svc.StartPhotoSession(ctx, h.userID, nil, []byte("jpeg"), "image/jpeg")
  if err != nil {
    t.Fatalf("second start: %v", err)
  }
  if !strings.Contains(prompt.Text, "already have") {
    t.Fatalf("second start prompt = %q", prompt.Text)
  }
  if len(h.sessions.sessions) != 1 {
    t.Fatalf("second photo created a new session, have %d", len(h.sessions.sessions))
  }
}

func TestHandleAction_InvalidInputLeavesContextUntouched(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, []VisionItem{
    {Label: "rice", Confidence: 0.8, EstimatedGramsLow: 100, EstimatedGramsHigh: 200},
  }, nil)

  if _, err := h.svc.StartPhotoSession(ctx, h.userID, nil, []byte("jpeg"), "image/jpeg"); err != nil {
    t.Fatalf("start: %v", err)
  }
  session := h.sessions.sessions[0]
  before := make([]byte, len(session.Context))
  copy(before, session.Context)
  statusBefore := session.Status

  // A save callback is meaningless during item review.
  prompt, err := h.svc.HandleAction(ctx, h.userID, Action{Type: ActionCallback, Name: "save"})
  if !apierr.IsInvalidTransition(err) {
    t.Fatalf("err = %v, want invalid transition", err)
  }
  if prompt == nil {
    t.Fatalf("expected the current prompt to be re-issued")
  }
  if session.Status != statusBefore {
    t.Fatalf("status changed to %q on invalid input", session.Status)
  }
  if !bytes.Equal(before, session.Context) {
    t.Fatalf("context mutated on invalid input")
  }
}

func TestHandleAction_ExpiredSession(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, []VisionItem{
    {Label: "rice", Confidence: 0.8, EstimatedGramsLow: 100, EstimatedGramsHigh: 200},
  }, nil)

  if _, err := h.svc.StartPhotoSession(ctx, h.userID, nil, []byte("jpeg"), "image/jpeg"); err != nil {
    t.Fatalf("start: %v", err)
  }
  h.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

  _, err := h.svc.HandleAction(ctx, h.userID, Action{Type: ActionCallback, Name: "item_yes"})
  if !apierr.IsSessionExpired(err) {
    t.Fatalf("err = %v, want session expired", err)
  }
  if h.sessions.sessions[0].Status != types.SessionExpired {
    t.Fatalf("session status = %q, want EXPIRED", h.sessions.sessions[0].Status)
  }
}

func TestStartPhotoSession_NothingDetected(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, nil, nil)

  prompt, err := h.svc.StartPhotoSession(ctx, h.userID, nil, []byte("jpeg"), "image/jpeg")
  if err != nil {
    t.Fatalf("start: %v", err)
  }
  if !strings.Contains(prompt.Text, "could not find") {
    t.Fatalf("prompt = %q", prompt.Text)
  }
  if len(h.sessions.sessions) != 1 || h.sessions.sessions[0].Status != types.SessionCancelled {
    t.Fatalf("expected one cancelled session, got %+v", h.sessions.sessions)
  }
}

func TestLibraryAddFlow(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, nil, nil)

  prompt, err := h.svc.StartLibraryAdd(ctx, h.userID)
  if err != nil {
    t.Fatalf("StartLibraryAdd: %v", err)
  }
  if !strings.Contains(prompt.Text, "called") {
    t.Fatalf("name prompt = %q", prompt.Text)
  }

  steps := []Action{
    {Type: ActionText, Text: "protein bar"},
    {Type: ActionText, Text: "-"},
    {Type: ActionCallback, Name: "basis", Payload: types.BasisPerServing},
    {Type: ActionText, Text: "55g"},
    {Type: ActionText, Text: "220 20 8 18"},
  }
  for i, step := range steps {
    prompt, err = h.svc.HandleAction(ctx, h.userID, step)
    if err != nil {
      t.Fatalf("step %d: %v", i, err)
    }
  }
  if !strings.Contains(prompt.Text, "protein bar") {
    t.Fatalf("final prompt = %q", prompt.Text)
  }
  if len(h.library.foods) != 1 {
    t.Fatalf("library has %d foods, want 1", len(h.library.foods))
  }
  food := h.library.foods[0]
  if food.SourceType != types.SourceManual || food.Basis != types.BasisPerServing {
    t.Fatalf("created food = %+v", food)
  }
  if food.ServingSizeG == nil || *food.ServingSizeG != 55 {
    t.Fatalf("serving size = %v, want 55", food.ServingSizeG)
  }
  if h.sessions.sessions[0].Status != types.SessionSaved {
    t.Fatalf("session status = %q, want SAVED", h.sessions.sessions[0].Status)
  }
}

func TestCancelActive(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, []VisionItem{
    {Label: "rice", Confidence: 0.8, EstimatedGramsLow: 100, EstimatedGramsHigh: 200},
  }, nil)

  if _, err := h.svc.StartPhotoSession(ctx, h.userID, nil, []byte("jpeg"), "image/jpeg"); err != nil {
    t.Fatalf("start: %v", err)
  }
  cancelled, err := h.svc.CancelActive(ctx, h.userID)
  if err != nil || !cancelled {
    t.Fatalf("CancelActive = %v, %v; want true, nil", cancelled, err)
  }
  cancelled, err = h.svc.CancelActive(ctx, h.userID)
  if err != nil || cancelled {
    t.Fatalf("second CancelActive = %v, %v; want false, nil", cancelled, err)
  }
}

func TestEditSessionFlow(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, nil, nil)

  // Seed one saved meal directly through the fakes.
  mealID := uuid.New()
  itemID := uuid.New()
  h.meals.logs = append(h.meals.logs, &types.MealLog{
    ID:            mealID,
    UserID:        h.userID,
    LoggedAt:      time.Now().UTC(),
    TotalCalories: 198,
    TotalProteinG: 37.2,
    TotalFatG:     4.32,
  })
  h.meals.items = append(h.meals.items, &types.MealItem{
    ID:                itemID,
    MealLogID:         mealID,
    Name:              "chicken breast",
    Grams:             120,
    Calories:          198,
    ProteinG:          37.2,
    FatG:              4.32,
    NutritionSnapshot: datatypes.JSON([]byte(`{"basis":"per100g","calories":165,"protein_g":31,"fat_g":3.6,"carbs_g":0}`)),
  })

  prompt, err := h.svc.StartEditSession(ctx, h.userID, mealID)
  if err != nil {
    t.Fatalf("StartEditSession: %v", err)
  }
  if len(prompt.Buttons) != 1 {
    t.Fatalf("edit prompt rows = %d, want 1", len(prompt.Buttons))
  }

  if _, err = h.svc.HandleAction(ctx, h.userID, Action{Type: ActionCallback, Name: "edit_item", Payload: "0"}); err != nil {
    t.Fatalf("edit_item: %v", err)
  }
  prompt, err = h.svc.HandleAction(ctx, h.userID, Action{Type: ActionText, Text: "60g"})
  if err != nil {
    t.Fatalf("new grams: %v", err)
  }
  if !strings.Contains(prompt.Text, "Updated") {
    t.Fatalf("update prompt = %q", prompt.Text)
  }

  item := h.meals.items[0]
  if item.Grams != 60 {
    t.Fatalf("item grams = %v, want 60", item.Grams)
  }
  if RoundCalories(item.Calories) != 99 {
    t.Fatalf("item calories = %v, want ~99", item.Calories)
  }
  mealLog := h.meals.logs[0]
  if mealLog.TotalCalories != item.Calories {
    t.Fatalf("meal totals not refreshed: %v vs %v", mealLog.TotalCalories, item.Calories)
  }
  if len(h.audit.events) != 1 || h.audit.events[0].EventType != "update_grams" {
    t.Fatalf("audit events = %+v", h.audit.events)
  }
}

func TestItemReview_TypedListReplacesItems(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, []VisionItem{
    {Label: "mystery blob", Confidence: 0.4},
  }, []*types.LibraryFood{chickenFood()})

  if _, err := h.svc.StartPhotoSession(ctx, h.userID, nil, []byte("jpeg"), "image/jpeg"); err != nil {
    t.Fatalf("start: %v", err)
  }

  prompt, err := h.svc.HandleAction(ctx, h.userID, Action{Type: ActionText, Text: "rice, chicken breast"})
  if err != nil {
    t.Fatalf("replace list: %v", err)
  }
  if !strings.Contains(prompt.Text, "Item 1 of 2") || !strings.Contains(prompt.Text, "rice") {
    t.Fatalf("review prompt = %q, want first of two replaced items", prompt.Text)
  }
  if h.sessions.sessions[0].Status != types.SessionItemReview {
    t.Fatalf("status = %q, want ITEM_REVIEW", h.sessions.sessions[0].Status)
  }

  if _, err := h.svc.HandleAction(ctx, h.userID, Action{Type: ActionText, Text: " , ,"}); !apierr.IsValidation(err) {
    t.Fatalf("blank replacement err = %v, want validation", err)
  }
}

func TestPortionEntry_SkipDropsItem(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, []VisionItem{
    {Label: "chicken breast", Confidence: 0.9},
  }, []*types.LibraryFood{chickenFood()})

  if _, err := h.svc.StartPhotoSession(ctx, h.userID, nil, []byte("jpeg"), "image/jpeg"); err != nil {
    t.Fatalf("start: %v", err)
  }
  if _, err := h.svc.HandleAction(ctx, h.userID, Action{Type: ActionCallback, Name: "item_yes"}); err != nil {
    t.Fatalf("item_yes: %v", err)
  }
  if _, err := h.svc.HandleAction(ctx, h.userID, Action{Type: ActionCallback, Name: "choose", Payload: "0"}); err != nil {
    t.Fatalf("choose: %v", err)
  }

  prompt, err := h.svc.HandleAction(ctx, h.userID, Action{Type: ActionText, Text: "skip"})
  if err != nil {
    t.Fatalf("skip: %v", err)
  }
  if !strings.Contains(prompt.Text, "Nothing left to log") {
    t.Fatalf("prompt = %q", prompt.Text)
  }
  if h.sessions.sessions[0].Status != types.SessionCancelled {
    t.Fatalf("status = %q, want CANCELLED", h.sessions.sessions[0].Status)
  }
  if len(h.meals.logs) != 0 {
    t.Fatalf("no meal should be committed, got %d", len(h.meals.logs))
  }
}

func TestPhotoDeletedOnSave(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, []VisionItem{
    {Label: "chicken breast", Confidence: 0.9},
  }, []*types.LibraryFood{chickenFood()})
  photoID := h.addPhoto(t)

  if _, err := h.svc.StartPhotoSession(ctx, h.userID, &photoID, []byte("jpeg"), "image/jpeg"); err != nil {
    t.Fatalf("start: %v", err)
  }
  for _, a := range []Action{
    {Type: ActionCallback, Name: "item_yes"},
    {Type: ActionCallback, Name: "choose", Payload: "0"},
    {Type: ActionText, Text: "120g"},
  } {
    if _, err := h.svc.HandleAction(ctx, h.userID, a); err != nil {
      t.Fatalf("action %+v: %v", a, err)
    }
  }
  if len(h.photos.deleted) != 0 {
    t.Fatalf("photo deleted before save: %v", h.photos.deleted)
  }

  if _, err := h.svc.HandleAction(ctx, h.userID, Action{Type: ActionCallback, Name: "save"}); err != nil {
    t.Fatalf("save: %v", err)
  }
  if len(h.photos.photos) != 0 || len(h.photos.deleted) != 1 || h.photos.deleted[0] != photoID {
    t.Fatalf("photo not cleaned up after save: kept=%d deleted=%v", len(h.photos.photos), h.photos.deleted)
  }
  if len(h.meals.logs) != 1 {
    t.Fatalf("meal should still be committed, got %d logs", len(h.meals.logs))
  }
}

func TestPhotoDeletedOnCancel(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, []VisionItem{
    {Label: "rice", Confidence: 0.8},
  }, []*types.LibraryFood{chickenFood()})
  photoID := h.addPhoto(t)

  if _, err := h.svc.StartPhotoSession(ctx, h.userID, &photoID, []byte("jpeg"), "image/jpeg"); err != nil {
    t.Fatalf("start: %v", err)
  }
  cancelled, err := h.svc.CancelActive(ctx, h.userID)
  if err != nil || !cancelled {
    t.Fatalf("cancel = %v, %v", cancelled, err)
  }
  if len(h.photos.photos) != 0 {
    t.Fatalf("photo row survived cancellation")
  }
}

func TestPhotoDeletedWhenNothingDetected(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, nil, nil)
  photoID := h.addPhoto(t)

  if _, err := h.svc.StartPhotoSession(ctx, h.userID, &photoID, []byte("jpeg"), "image/jpeg"); err != nil {
    t.Fatalf("start: %v", err)
  }
  if len(h.photos.photos) != 0 {
    t.Fatalf("photo row survived an empty detection")
  }
}

func TestStartPhotoSession_AfterExpiryStartsFresh(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, []VisionItem{
    {Label: "rice", Confidence: 0.8},
  }, []*types.LibraryFood{chickenFood()})
  photoID := h.addPhoto(t)

  if _, err := h.svc.StartPhotoSession(ctx, h.userID, &photoID, []byte("jpeg"), "image/jpeg"); err != nil {
    t.Fatalf("first start: %v", err)
  }
  h.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

  prompt, err := h.svc.StartPhotoSession(ctx, h.userID, nil, []byte("jpeg"), "image/jpeg")
  if err != nil {
    t.Fatalf("second start after expiry: %v", err)
  }
  if strings.Contains(prompt.Text, "already have") {
    t.Fatalf("expired session still treated as active: %q", prompt.Text)
  }
  if len(h.sessions.sessions) != 2 {
    t.Fatalf("sessions = %d, want expired + fresh", len(h.sessions.sessions))
  }
  if h.sessions.sessions[0].Status != types.SessionExpired {
    t.Fatalf("first session status = %q, want EXPIRED", h.sessions.sessions[0].Status)
  }
  if h.sessions.sessions[1].Status != types.SessionItemReview {
    t.Fatalf("second session status = %q, want ITEM_REVIEW", h.sessions.sessions[1].Status)
  }
  if len(h.photos.photos) != 0 {
    t.Fatalf("expired session's photo row survived")
  }
}

func TestSummaryEdit_DuplicateNamesTargetRightItem(t *testing.T) {
  ctx := context.Background()
  h := newSessionHarness(t, []VisionItem{
    {Label: "chicken breast", Confidence: 0.9},
    {Label: "chicken breast", Confidence: 0.7},
  }, []*types.LibraryFood{chickenFood()})

  if _, err := h.svc.StartPhotoSession(ctx, h.userID, nil, []byte("jpeg"), "image/jpeg"); err != nil {
    t.Fatalf("start: %v", err)
  }
  var prompt *Prompt
  var err error
  for _, a := range []Action{
    {Type: ActionCallback, Name: "item_yes"},
    {Type: ActionCallback, Name: "choose", Payload: "0"},
    {Type: ActionText, Text: "100g"},
    {Type: ActionCallback, Name: "item_yes"},
    {Type: ActionCallback, Name: "choose", Payload: "0"},
    {Type: ActionText, Text: "50g"},
  } {
    if prompt, err = h.svc.HandleAction(ctx, h.userID, a); err != nil {
      t.Fatalf("action %+v: %v", a, err)
    }
  }

  var editRow []Button
  for _, row := range prompt.Buttons {
    if len(row) > 0 && strings.HasPrefix(row[0].Data, "edit:") {
      editRow = row
    }
  }
  if len(editRow) != 2 || editRow[0].Data != "edit:0" || editRow[1].Data != "edit:1" {
    t.Fatalf("edit buttons = %+v, want distinct indices for same-named items", editRow)
  }

  // Re-entering the second item's portion must leave the first untouched.
  if _, err := h.svc.HandleAction(ctx, h.userID, Action{Type: ActionCallback, Name: "edit", Payload: "1"}); err != nil {
    t.Fatalf("edit: %v", err)
  }
  prompt, err = h.svc.HandleAction(ctx, h.userID, Action{Type: ActionText, Text: "80g"})
  if err != nil {
    t.Fatalf("regrams: %v", err)
  }
  sctx, err := types.DecodeSessionContext(h.sessions.sessions[0].Context)
  if err != nil {
    t.Fatalf("decode: %v", err)
  }
  if sctx.Items[0].Grams == nil || *sctx.Items[0].Grams != 100 {
    t.Fatalf("first item grams = %v, want 100", sctx.Items[0].Grams)
  }
  if sctx.Items[1].Grams == nil || *sctx.Items[1].Grams != 80 {
    t.Fatalf("second item grams = %v, want 80", sctx.Items[1].Grams)
  }
  // 100g + 80g of 165 kcal/100g.
  if !strings.Contains(prompt.Text, "297 kcal") {
    t.Fatalf("summary = %q, want 297 kcal total", prompt.Text)
  }
}
