package services

import (
  "context"
  "fmt"
  "strconv"
  "strings"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/apierr"
  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/repos"
  "github.com/yungbote/macrolog-backend/internal/types"
  "github.com/yungbote/macrolog-backend/internal/utils"
)

// Action is one user input routed into the state machine. Callback actions
// come from inline keyboard taps, text actions from free-form replies.
type Action struct {
  Type    string
  Name    string
  Payload string
  Text    string
}

const (
  ActionCallback = "callback"
  ActionText     = "text"
)

type Button struct {
  Label string
  Data  string
}

// Prompt is what the user should see next: a message and optional inline
// keyboard rows.
type Prompt struct {
  Text    string
  Buttons [][]Button
}

// SessionService drives photo, library-add and edit sessions through their
// statuses. All mutations for a user are serialized through the per-user
// lock; each successful transition refreshes the session expiry.
type SessionService struct {
  db        *gorm.DB
  log       *logger.Logger
  sessions  repos.SessionRepo
  photos    repos.PhotoRepo
  vision    *VisionService
  resolver  *ResolverService
  nutrition *NutritionService
  library   *LibraryService
  meals     *MealLogService
  locker    *UserLocker
  ttl       time.Duration
  now       func() time.Time
}

func NewSessionService(
  db *gorm.DB,
  log *logger.Logger,
  sessions repos.SessionRepo,
  photos repos.PhotoRepo,
  vision *VisionService,
  resolver *ResolverService,
  nutrition *NutritionService,
  library *LibraryService,
  meals *MealLogService,
  locker *UserLocker,
) *SessionService {
  l := log.With("service", "SessionService")
  minutes := utils.GetEnvAsInt("SESSION_TTL_MINUTES", 60, l)
  if minutes <= 0 {
    minutes = 60
  }
  return &SessionService{
    db:        db,
    log:       l,
    sessions:  sessions,
    photos:    photos,
    vision:    vision,
    resolver:  resolver,
    nutrition: nutrition,
    library:   library,
    meals:     meals,
    locker:    locker,
    ttl:       time.Duration(minutes) * time.Minute,
    now:       time.Now,
  }
}

// StartPhotoSession analyzes a meal photo and opens a session for it. If the
// user already has an active session it is returned as-is instead of being
// replaced, so a double-sent photo never forks the flow.
func (s *SessionService) StartPhotoSession(ctx context.Context, userID uuid.UUID, photoID *uuid.UUID, imageData []byte, mimeType string) (*Prompt, error) {
  unlock := s.locker.Lock(userID)
  defer unlock()

  active, err := s.startableSession(ctx, userID)
  if err != nil {
    return nil, err
  }
  if active != nil {
    sctx, err := types.DecodeSessionContext(active.Context)
    if err != nil {
      return nil, err
    }
    prompt := s.promptFor(active.Status, sctx)
    prompt.Text = "You already have a meal in progress.\n\n" + prompt.Text
    return prompt, nil
  }

  items, err := s.vision.DetectItems(ctx, imageData, mimeType)
  if err != nil {
    return nil, err
  }

  sctx := &types.SessionContext{Flow: types.FlowPhoto, Items: items}
  if len(items) == 0 {
    blob, err := types.EncodeSessionContext(sctx)
    if err != nil {
      return nil, err
    }
    session, err := s.sessions.Create(ctx, nil, &types.PhotoSession{
      UserID:  userID,
      PhotoID: photoID,
      Status:  types.SessionCancelled,
      Context: blob,
    })
    if err != nil {
      return nil, err
    }
    s.cleanupPhoto(ctx, session)
    return &Prompt{Text: "I could not find any food in that photo. Try a clearer shot."}, nil
  }

  blob, err := types.EncodeSessionContext(sctx)
  if err != nil {
    return nil, err
  }
  expiresAt := s.now().UTC().Add(s.ttl)
  session, err := s.sessions.Create(ctx, nil, &types.PhotoSession{
    UserID:    userID,
    PhotoID:   photoID,
    Status:    types.SessionItemReview,
    Context:   blob,
    ExpiresAt: &expiresAt,
  })
  if err != nil {
    return nil, err
  }
  s.log.Info("photo session started", "session_id", session.ID, "user_id", userID, "items", len(items))
  return s.promptFor(types.SessionItemReview, sctx), nil
}

// StartLibraryAdd opens a manual sub-flow that targets the library only.
func (s *SessionService) StartLibraryAdd(ctx context.Context, userID uuid.UUID) (*Prompt, error) {
  unlock := s.locker.Lock(userID)
  defer unlock()

  active, err := s.startableSession(ctx, userID)
  if err != nil {
    return nil, err
  }
  if active != nil {
    return &Prompt{Text: "Finish or /cancel your current session first."}, nil
  }

  sctx := &types.SessionContext{
    Flow:   types.FlowLibrary,
    Manual: &types.ManualDraft{Target: "library"},
  }
  blob, err := types.EncodeSessionContext(sctx)
  if err != nil {
    return nil, err
  }
  expiresAt := s.now().UTC().Add(s.ttl)
  if _, err := s.sessions.Create(ctx, nil, &types.PhotoSession{
    UserID:    userID,
    Status:    types.SessionManualName,
    Context:   blob,
    ExpiresAt: &expiresAt,
  }); err != nil {
    return nil, err
  }
  return s.promptFor(types.SessionManualName, sctx), nil
}

// StartEditSession opens an edit flow over an already-saved meal.
func (s *SessionService) StartEditSession(ctx context.Context, userID, mealID uuid.UUID) (*Prompt, error) {
  unlock := s.locker.Lock(userID)
  defer unlock()

  active, err := s.startableSession(ctx, userID)
  if err != nil {
    return nil, err
  }
  if active != nil {
    return &Prompt{Text: "Finish or /cancel your current session first."}, nil
  }

  detail, err := s.meals.GetMealDetail(ctx, mealID)
  if err != nil {
    return nil, err
  }
  if detail == nil {
    return nil, apierr.NotFound("meal")
  }

  editItems := make([]types.EditItem, 0, len(detail.Items))
  for _, item := range detail.Items {
    editItems = append(editItems, types.EditItem{
      ID:       item.ID,
      Name:     item.Name,
      Grams:    item.Grams,
      Calories: item.Calories,
      ProteinG: item.ProteinG,
      FatG:     item.FatG,
      CarbsG:   item.CarbsG,
    })
  }
  sctx := &types.SessionContext{Flow: types.FlowEdit, MealID: &mealID, EditItems: editItems}
  blob, err := types.EncodeSessionContext(sctx)
  if err != nil {
    return nil, err
  }
  expiresAt := s.now().UTC().Add(s.ttl)
  if _, err := s.sessions.Create(ctx, nil, &types.PhotoSession{
    UserID:    userID,
    Status:    types.SessionEditSelectItem,
    Context:   blob,
    ExpiresAt: &expiresAt,
  }); err != nil {
    return nil, err
  }
  return s.promptFor(types.SessionEditSelectItem, sctx), nil
}

// CancelActive marks the user's active session CANCELLED. Returns false when
// there was nothing to cancel.
func (s *SessionService) CancelActive(ctx context.Context, userID uuid.UUID) (bool, error) {
  unlock := s.locker.Lock(userID)
  defer unlock()

  active, err := s.startableSession(ctx, userID)
  if err != nil {
    return false, err
  }
  if active == nil {
    return false, nil
  }
  if err := s.sessions.MarkStatus(ctx, nil, active.ID, types.SessionCancelled); err != nil {
    return false, err
  }
  s.cleanupPhoto(ctx, active)
  return true, nil
}

// HandleAction routes one user input into the user's active session. Invalid
// inputs leave the session untouched and return the current prompt alongside
// an InvalidTransition or Validation error so the caller can re-ask.
func (s *SessionService) HandleAction(ctx context.Context, userID uuid.UUID, action Action) (*Prompt, error) {
  unlock := s.locker.Lock(userID)
  defer unlock()

  session, err := s.activeSession(ctx, userID)
  if err != nil {
    return nil, err
  }
  if session == nil {
    return nil, apierr.Validation("no active session")
  }
  sctx, err := types.DecodeSessionContext(session.Context)
  if err != nil {
    return nil, err
  }

  prompt, err := s.dispatch(ctx, session, sctx, action)
  if err != nil {
    if apierr.IsInvalidTransition(err) || apierr.IsValidation(err) || apierr.IsCommitFailed(err) {
      // Re-issue the prompt for the unchanged status so the user can retry.
      if prompt == nil {
        prompt = s.promptFor(session.Status, sctx)
      }
      return prompt, err
    }
    return nil, err
  }
  return prompt, nil
}

// activeSession loads the user's non-terminal session, enforcing expiry
// lazily on access.
func (s *SessionService) activeSession(ctx context.Context, userID uuid.UUID) (*types.PhotoSession, error) {
  session, err := s.sessions.GetActiveByUser(ctx, nil, userID)
  if err != nil {
    return nil, err
  }
  if session == nil {
    return nil, nil
  }
  if session.ExpiresAt != nil && session.ExpiresAt.Before(s.now().UTC()) {
    if err := s.sessions.MarkStatus(ctx, nil, session.ID, types.SessionExpired); err != nil {
      return nil, err
    }
    s.cleanupPhoto(ctx, session)
    return nil, apierr.SessionExpired()
  }
  return session, nil
}

// startableSession is activeSession for paths that open a new session: an
// expired leftover counts as no session at all, so a fresh start is never
// rejected over it.
func (s *SessionService) startableSession(ctx context.Context, userID uuid.UUID) (*types.PhotoSession, error) {
  session, err := s.activeSession(ctx, userID)
  if apierr.IsSessionExpired(err) {
    return nil, nil
  }
  return session, err
}

// cleanupPhoto drops the session's photo record once the session is over.
// Cleanup failure is logged, never surfaced; the meal outcome stands.
func (s *SessionService) cleanupPhoto(ctx context.Context, session *types.PhotoSession) {
  if session.PhotoID == nil {
    return
  }
  if err := s.photos.Delete(ctx, nil, *session.PhotoID); err != nil {
    s.log.Warn("photo cleanup failed", "photo_id", *session.PhotoID, "error", err)
    return
  }
  session.PhotoID = nil
}

func (s *SessionService) dispatch(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, action Action) (*Prompt, error) {
  switch session.Status {
  case types.SessionItemReview:
    return s.handleItemReview(ctx, session, sctx, action)
  case types.SessionItemResolution:
    return s.handleItemResolution(ctx, session, sctx, action)
  case types.SessionPortionEntry:
    return s.handlePortionEntry(ctx, session, sctx, action)
  case types.SessionManualName:
    return s.handleManualName(ctx, session, sctx, action)
  case types.SessionManualStore:
    return s.handleManualStore(ctx, session, sctx, action)
  case types.SessionManualBasis:
    return s.handleManualBasis(ctx, session, sctx, action)
  case types.SessionManualServing:
    return s.handleManualServing(ctx, session, sctx, action)
  case types.SessionManualMacros:
    return s.handleManualMacros(ctx, session, sctx, action)
  case types.SessionSummaryConfirm:
    return s.handleSummaryConfirm(ctx, session, sctx, action)
  case types.SessionEditSelectItem:
    return s.handleEditSelectItem(ctx, session, sctx, action)
  case types.SessionEditEnterGrams:
    return s.handleEditEnterGrams(ctx, session, sctx, action)
  default:
    return nil, apierr.InvalidTransition(session.Status, actionName(action))
  }
}

func splitItemLabels(text string) []string {
  parts := strings.Split(text, ",")
  labels := make([]string, 0, len(parts))
  for _, p := range parts {
    if label := strings.TrimSpace(p); label != "" {
      labels = append(labels, label)
    }
  }
  return labels
}

func actionName(action Action) string {
  if action.Type == ActionText {
    return "text"
  }
  return action.Name
}

// save persists the new status and context, refreshing expiry.
func (s *SessionService) save(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, status string) error {
  blob, err := types.EncodeSessionContext(sctx)
  if err != nil {
    return err
  }
  var expiresAt *time.Time
  if !types.IsTerminalSessionStatus(status) {
    t := s.now().UTC().Add(s.ttl)
    expiresAt = &t
  }
  if err := s.sessions.Update(ctx, nil, session.ID, status, blob, expiresAt); err != nil {
    return err
  }
  session.Status = status
  session.Context = blob
  if types.IsTerminalSessionStatus(status) {
    s.cleanupPhoto(ctx, session)
  }
  return nil
}

func (s *SessionService) handleItemReview(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, action Action) (*Prompt, error) {
  // Free text replaces the remaining detected items with a typed,
  // comma-separated list. Already-handled items keep their selections.
  if action.Type == ActionText {
    labels := splitItemLabels(action.Text)
    if len(labels) == 0 {
      return nil, apierr.Validation("send item names separated by commas")
    }
    replaced := make([]types.SessionItem, 0, sctx.CurrentIndex+len(labels))
    replaced = append(replaced, sctx.Items[:sctx.CurrentIndex]...)
    for _, label := range labels {
      replaced = append(replaced, types.SessionItem{Label: label})
    }
    sctx.Items = replaced
    if err := s.save(ctx, session, sctx, types.SessionItemReview); err != nil {
      return nil, err
    }
    return s.promptFor(types.SessionItemReview, sctx), nil
  }
  item := sctx.CurrentItem()
  if item == nil {
    return nil, apierr.InvalidTransition(session.Status, action.Name)
  }
  switch action.Name {
  case "item_yes":
    return s.enterResolution(ctx, session, sctx, item.Label)
  case "item_no", "item_skip":
    item.Skipped = true
    return s.advance(ctx, session, sctx)
  default:
    return nil, apierr.InvalidTransition(session.Status, action.Name)
  }
}

// enterResolution ranks candidates for the item and moves to resolution.
func (s *SessionService) enterResolution(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, query string) (*Prompt, error) {
  ranked, err := s.resolver.Resolve(ctx, nil, session.UserID, query, ResolveHints{})
  if err != nil {
    return nil, err
  }
  sctx.Candidates = ranked.Options
  if err := s.save(ctx, session, sctx, types.SessionItemResolution); err != nil {
    return nil, err
  }
  prompt := s.promptFor(types.SessionItemResolution, sctx)
  if ranked.Degraded {
    prompt.Text += "\n(External lookup is unavailable right now; showing your library only.)"
  }
  return prompt, nil
}

func (s *SessionService) handleItemResolution(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, action Action) (*Prompt, error) {
  // Free text during resolution re-runs the search with the typed query.
  if action.Type == ActionText {
    query := strings.TrimSpace(action.Text)
    if query == "" {
      return nil, apierr.Validation("type a food name to search for")
    }
    return s.enterResolution(ctx, session, sctx, query)
  }
  if action.Name != "choose" {
    return nil, apierr.InvalidTransition(session.Status, action.Name)
  }
  idx, err := strconv.Atoi(action.Payload)
  if err != nil || idx < 0 || idx >= len(sctx.Candidates) {
    return nil, apierr.Validation("pick one of the listed options")
  }
  candidate := sctx.Candidates[idx]
  item := sctx.CurrentItem()
  if item == nil {
    return nil, apierr.InvalidTransition(session.Status, action.Name)
  }

  switch candidate.Type {
  case types.CandidateManual:
    itemIndex := sctx.CurrentIndex
    sctx.Manual = &types.ManualDraft{Target: "item", ItemIndex: &itemIndex}
    if err := s.save(ctx, session, sctx, types.SessionManualName); err != nil {
      return nil, err
    }
    return s.promptFor(types.SessionManualName, sctx), nil

  case types.CandidateFDC:
    details, err := s.nutrition.GetFood(ctx, candidate.FdcID)
    if err != nil {
      return s.promptFor(session.Status, sctx), err
    }
    ref := strconv.FormatInt(details.Summary.FdcID, 10)
    item.Food = &types.FoodSelection{
      Name:         details.Summary.Description,
      SourceType:   types.SourceFDC,
      SourceRef:    &ref,
      Basis:        types.BasisPer100g,
      ServingSizeG: details.ServingSizeG,
      Calories:     details.Calories,
      ProteinG:     details.ProteinG,
      FatG:         details.FatG,
      CarbsG:       details.CarbsG,
      Brand:        details.Summary.BrandOwner,
    }

  case types.CandidateLibrary:
    item.Food = &types.FoodSelection{
      Name:         candidate.Name,
      SourceType:   types.SourceLibrary,
      FoodID:       candidate.FoodID,
      SourceRef:    candidate.SourceRef,
      Basis:        candidate.Basis,
      ServingSizeG: candidate.ServingSizeG,
      Calories:     candidate.Calories,
      ProteinG:     candidate.ProteinG,
      FatG:         candidate.FatG,
      CarbsG:       candidate.CarbsG,
      Brand:        candidate.Brand,
      Store:        candidate.Store,
    }

  default:
    return nil, apierr.Validation("pick one of the listed options")
  }

  sctx.Candidates = nil
  if err := s.save(ctx, session, sctx, types.SessionPortionEntry); err != nil {
    return nil, err
  }
  return s.promptFor(types.SessionPortionEntry, sctx), nil
}

func (s *SessionService) handlePortionEntry(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, action Action) (*Prompt, error) {
  if action.Type != ActionText {
    return nil, apierr.InvalidTransition(session.Status, actionName(action))
  }
  item := sctx.CurrentItem()
  if item == nil || item.Food == nil {
    return nil, apierr.InvalidTransition(session.Status, "text")
  }
  if strings.EqualFold(strings.TrimSpace(action.Text), "skip") {
    item.Skipped = true
    return s.advance(ctx, session, sctx)
  }
  grams, estimate, err := ParseGrams(action.Text)
  if err != nil {
    return nil, err
  }
  if estimate {
    estimated, ok := EstimateGrams(item)
    if !ok {
      return nil, apierr.Validation("no size estimate for this item, enter grams directly")
    }
    grams = estimated
  }
  if grams <= 0 {
    return nil, apierr.Validation("grams must be positive")
  }
  item.Grams = &grams
  return s.advance(ctx, session, sctx)
}

// advance moves the cursor to the next unfinished item, or to the summary
// when every item is resolved or skipped.
func (s *SessionService) advance(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext) (*Prompt, error) {
  for i := range sctx.Items {
    item := &sctx.Items[i]
    if item.Skipped {
      continue
    }
    if item.Food == nil {
      sctx.CurrentIndex = i
      if err := s.save(ctx, session, sctx, types.SessionItemReview); err != nil {
        return nil, err
      }
      return s.promptFor(types.SessionItemReview, sctx), nil
    }
    if item.Grams == nil {
      sctx.CurrentIndex = i
      if err := s.save(ctx, session, sctx, types.SessionPortionEntry); err != nil {
        return nil, err
      }
      return s.promptFor(types.SessionPortionEntry, sctx), nil
    }
  }

  resolved := resolvedItems(sctx)
  if len(resolved) == 0 {
    if err := s.save(ctx, session, sctx, types.SessionCancelled); err != nil {
      return nil, err
    }
    return &Prompt{Text: "Nothing left to log. Session closed."}, nil
  }
  sctx.Resolved = resolved
  if err := s.save(ctx, session, sctx, types.SessionSummaryConfirm); err != nil {
    return nil, err
  }
  return s.promptFor(types.SessionSummaryConfirm, sctx), nil
}

func resolvedItems(sctx *types.SessionContext) []types.ResolvedItem {
  resolved := make([]types.ResolvedItem, 0, len(sctx.Items))
  for i := range sctx.Items {
    item := &sctx.Items[i]
    if item.Skipped || item.Food == nil || item.Grams == nil {
      continue
    }
    resolved = append(resolved, types.ResolvedItem{
      ItemIndex:  i,
      Name:       item.Label,
      Grams:      *item.Grams,
      Confidence: item.Confidence,
      Food:       *item.Food,
    })
  }
  return resolved
}

func (s *SessionService) handleManualName(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, action Action) (*Prompt, error) {
  if action.Type != ActionText {
    return nil, apierr.InvalidTransition(session.Status, actionName(action))
  }
  name := strings.TrimSpace(action.Text)
  if name == "" {
    return nil, apierr.Validation("food name cannot be empty")
  }
  if sctx.Manual == nil {
    return nil, apierr.InvalidTransition(session.Status, "text")
  }
  sctx.Manual.Name = name
  if err := s.save(ctx, session, sctx, types.SessionManualStore); err != nil {
    return nil, err
  }
  return s.promptFor(types.SessionManualStore, sctx), nil
}

func (s *SessionService) handleManualStore(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, action Action) (*Prompt, error) {
  if action.Type != ActionText || sctx.Manual == nil {
    return nil, apierr.InvalidTransition(session.Status, actionName(action))
  }
  store := strings.TrimSpace(action.Text)
  if store != "" && store != "-" {
    sctx.Manual.Store = &store
  }
  if err := s.save(ctx, session, sctx, types.SessionManualBasis); err != nil {
    return nil, err
  }
  return s.promptFor(types.SessionManualBasis, sctx), nil
}

func (s *SessionService) handleManualBasis(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, action Action) (*Prompt, error) {
  if action.Type != ActionCallback || action.Name != "basis" || sctx.Manual == nil {
    return nil, apierr.InvalidTransition(session.Status, actionName(action))
  }
  switch action.Payload {
  case types.BasisPer100g:
    sctx.Manual.Basis = types.BasisPer100g
    if err := s.save(ctx, session, sctx, types.SessionManualMacros); err != nil {
      return nil, err
    }
    return s.promptFor(types.SessionManualMacros, sctx), nil
  case types.BasisPerServing:
    sctx.Manual.Basis = types.BasisPerServing
    if err := s.save(ctx, session, sctx, types.SessionManualServing); err != nil {
      return nil, err
    }
    return s.promptFor(types.SessionManualServing, sctx), nil
  default:
    return nil, apierr.Validation("pick a basis")
  }
}

func (s *SessionService) handleManualServing(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, action Action) (*Prompt, error) {
  if action.Type != ActionText || sctx.Manual == nil {
    return nil, apierr.InvalidTransition(session.Status, actionName(action))
  }
  grams, estimate, err := ParseGrams(action.Text)
  if err != nil {
    return nil, err
  }
  if estimate || grams <= 0 {
    return nil, apierr.Validation("serving size must be a positive weight, like 55g")
  }
  sctx.Manual.ServingSizeG = &grams
  if err := s.save(ctx, session, sctx, types.SessionManualMacros); err != nil {
    return nil, err
  }
  return s.promptFor(types.SessionManualMacros, sctx), nil
}

func (s *SessionService) handleManualMacros(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, action Action) (*Prompt, error) {
  if action.Type != ActionText || sctx.Manual == nil {
    return nil, apierr.InvalidTransition(session.Status, actionName(action))
  }
  calories, protein, fat, carbs, err := parseMacroLine(action.Text)
  if err != nil {
    return nil, err
  }
  draft := sctx.Manual

  if draft.Target == "library" {
    food, err := s.library.CreateFood(ctx, nil, session.UserID, FoodPayload{
      Name:         draft.Name,
      Store:        draft.Store,
      SourceType:   types.SourceManual,
      Basis:        draft.Basis,
      ServingSizeG: draft.ServingSizeG,
      Calories:     calories,
      ProteinG:     protein,
      FatG:         fat,
      CarbsG:       carbs,
    })
    if err != nil {
      return nil, err
    }
    if err := s.save(ctx, session, sctx, types.SessionSaved); err != nil {
      return nil, err
    }
    return &Prompt{Text: fmt.Sprintf("Added %q to your library.", food.Name)}, nil
  }

  item := sctx.CurrentItem()
  if item == nil {
    return nil, apierr.InvalidTransition(session.Status, "text")
  }
  item.Food = &types.FoodSelection{
    Name:         draft.Name,
    SourceType:   types.SourceManual,
    Basis:        draft.Basis,
    ServingSizeG: draft.ServingSizeG,
    Calories:     calories,
    ProteinG:     protein,
    FatG:         fat,
    CarbsG:       carbs,
    Store:        draft.Store,
  }
  sctx.Manual = nil
  sctx.Candidates = nil
  if err := s.save(ctx, session, sctx, types.SessionPortionEntry); err != nil {
    return nil, err
  }
  return s.promptFor(types.SessionPortionEntry, sctx), nil
}

func parseMacroLine(text string) (calories, protein, fat, carbs float64, err error) {
  fields := strings.Fields(strings.ReplaceAll(text, ",", " "))
  if len(fields) != 4 {
    return 0, 0, 0, 0, apierr.Validation("send four numbers: calories protein fat carbs")
  }
  values := make([]float64, 4)
  for i, f := range fields {
    v, parseErr := strconv.ParseFloat(f, 64)
    if parseErr != nil || v < 0 {
      return 0, 0, 0, 0, apierr.Validation("%q is not a valid number", f)
    }
    values[i] = v
  }
  return values[0], values[1], values[2], values[3], nil
}

func (s *SessionService) handleSummaryConfirm(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, action Action) (*Prompt, error) {
  if action.Type != ActionCallback {
    return nil, apierr.InvalidTransition(session.Status, actionName(action))
  }
  switch action.Name {
  case "save":
    summary, err := s.meals.SaveMeal(ctx, session.UserID, sctx.Resolved)
    if err != nil {
      // Commit failed; stay in SUMMARY_CONFIRM so the user can retry.
      return s.promptFor(session.Status, sctx), err
    }
    sctx.MealID = summary.MealID
    if err := s.save(ctx, session, sctx, types.SessionSaved); err != nil {
      return nil, err
    }
    return &Prompt{Text: fmt.Sprintf("Logged! %s", FormatMacros(ItemMacros(summary.Totals)))}, nil

  case "edit":
    idx, err := strconv.Atoi(action.Payload)
    if err != nil || idx < 0 || idx >= len(sctx.Items) {
      return nil, apierr.Validation("pick one of the listed items")
    }
    item := &sctx.Items[idx]
    if item.Skipped || item.Food == nil {
      return nil, apierr.Validation("pick one of the listed items")
    }
    item.Grams = nil
    sctx.Resolved = nil
    sctx.CurrentIndex = idx
    if err := s.save(ctx, session, sctx, types.SessionPortionEntry); err != nil {
      return nil, err
    }
    return s.promptFor(types.SessionPortionEntry, sctx), nil

  case "cancel":
    if err := s.save(ctx, session, sctx, types.SessionCancelled); err != nil {
      return nil, err
    }
    return &Prompt{Text: "Session cancelled. Nothing was logged."}, nil

  default:
    return nil, apierr.InvalidTransition(session.Status, action.Name)
  }
}

func (s *SessionService) handleEditSelectItem(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, action Action) (*Prompt, error) {
  if action.Type != ActionCallback || action.Name != "edit_item" {
    return nil, apierr.InvalidTransition(session.Status, actionName(action))
  }
  idx, err := strconv.Atoi(action.Payload)
  if err != nil || idx < 0 || idx >= len(sctx.EditItems) {
    return nil, apierr.Validation("pick one of the listed items")
  }
  itemID := sctx.EditItems[idx].ID
  sctx.EditIndex = &idx
  sctx.EditItemID = &itemID
  if err := s.save(ctx, session, sctx, types.SessionEditEnterGrams); err != nil {
    return nil, err
  }
  return s.promptFor(types.SessionEditEnterGrams, sctx), nil
}

func (s *SessionService) handleEditEnterGrams(ctx context.Context, session *types.PhotoSession, sctx *types.SessionContext, action Action) (*Prompt, error) {
  if action.Type != ActionText || sctx.EditItemID == nil {
    return nil, apierr.InvalidTransition(session.Status, actionName(action))
  }
  grams, estimate, err := ParseGrams(action.Text)
  if err != nil {
    return nil, err
  }
  if estimate || grams <= 0 {
    return nil, apierr.Validation("enter the new portion as a weight, like 150g")
  }
  detail, err := s.meals.UpdateMealItemGrams(ctx, session.UserID, *sctx.EditItemID, grams)
  if err != nil {
    return nil, err
  }
  if detail == nil {
    return nil, apierr.NotFound("meal item")
  }
  if err := s.save(ctx, session, sctx, types.SessionSaved); err != nil {
    return nil, err
  }
  return &Prompt{Text: fmt.Sprintf("Updated. New meal totals: %s", FormatMacros(ItemMacros(detail.Totals)))}, nil
}

// promptFor renders the message and keyboard for a status without mutating
// anything.
func (s *SessionService) promptFor(status string, sctx *types.SessionContext) *Prompt {
  switch status {
  case types.SessionItemReview:
    item := sctx.CurrentItem()
    if item == nil {
      return &Prompt{Text: "Nothing to review."}
    }
    text := fmt.Sprintf("Item %d of %d: %s", sctx.CurrentIndex+1, len(sctx.Items), item.Label)
    if item.Confidence != nil {
      text += fmt.Sprintf(" (%.0f%% sure)", *item.Confidence*100)
    }
    text += "\nLog this item? You can also type a corrected list, separated by commas."
    return &Prompt{
      Text: text,
      Buttons: [][]Button{{
        {Label: "Yes", Data: "item_yes"},
        {Label: "Skip", Data: "item_skip"},
      }},
    }

  case types.SessionItemResolution:
    item := sctx.CurrentItem()
    label := ""
    if item != nil {
      label = item.Label
    }
    rows := make([][]Button, 0, len(sctx.Candidates))
    for i, c := range sctx.Candidates {
      rows = append(rows, []Button{{Label: c.Label, Data: "choose:" + strconv.Itoa(i)}})
    }
    return &Prompt{
      Text:    fmt.Sprintf("What is %q? Pick an option or type a different name to search.", label),
      Buttons: rows,
    }

  case types.SessionPortionEntry:
    item := sctx.CurrentItem()
    if item == nil || item.Food == nil {
      return &Prompt{Text: "How many grams?"}
    }
    text := fmt.Sprintf("How much %s? Send a weight like 150g or 4oz, or \"skip\".", item.Food.Name)
    if estimated, ok := EstimateGrams(item); ok {
      text += fmt.Sprintf("\nSend \"est\" to accept my estimate of about %.0fg.", estimated)
    }
    return &Prompt{Text: text}

  case types.SessionManualName:
    return &Prompt{Text: "What is the food called?"}

  case types.SessionManualStore:
    return &Prompt{Text: "Where is it from (brand or store)? Send \"-\" to skip."}

  case types.SessionManualBasis:
    return &Prompt{
      Text: "Are the nutrition numbers per 100g or per serving?",
      Buttons: [][]Button{{
        {Label: "Per 100g", Data: "basis:" + types.BasisPer100g},
        {Label: "Per serving", Data: "basis:" + types.BasisPerServing},
      }},
    }

  case types.SessionManualServing:
    return &Prompt{Text: "How many grams is one serving?"}

  case types.SessionManualMacros:
    return &Prompt{Text: "Send the nutrition as four numbers: calories protein fat carbs.\nExample: 250 10 5 30"}

  case types.SessionSummaryConfirm:
    summary := s.meals.ComputeSummary(sctx.Resolved)
    var b strings.Builder
    b.WriteString("Here is your meal:\n")
    for _, item := range summary.Items {
      fmt.Fprintf(&b, "- %s, %.0fg: %s\n", item.Name, item.Grams, FormatMacros(item.Macros))
    }
    fmt.Fprintf(&b, "\nTotal: %s", FormatMacros(ItemMacros(summary.Totals)))
    rows := [][]Button{{{Label: "Save", Data: "save"}}}
    // summary.Items is parallel to sctx.Resolved, so the button can carry
    // the detected-item index directly; names may repeat.
    editRow := make([]Button, 0, len(summary.Items))
    for i, item := range summary.Items {
      editRow = append(editRow, Button{
        Label: "Edit " + item.Name,
        Data:  "edit:" + strconv.Itoa(sctx.Resolved[i].ItemIndex),
      })
    }
    if len(editRow) > 0 {
      rows = append(rows, editRow)
    }
    rows = append(rows, []Button{{Label: "Cancel", Data: "cancel"}})
    return &Prompt{Text: b.String(), Buttons: rows}

  case types.SessionEditSelectItem:
    rows := make([][]Button, 0, len(sctx.EditItems))
    for i, item := range sctx.EditItems {
      rows = append(rows, []Button{{
        Label: fmt.Sprintf("%s (%.0fg)", item.Name, item.Grams),
        Data:  "edit_item:" + strconv.Itoa(i),
      }})
    }
    return &Prompt{Text: "Which item do you want to adjust?", Buttons: rows}

  case types.SessionEditEnterGrams:
    name := ""
    if sctx.EditIndex != nil && *sctx.EditIndex >= 0 && *sctx.EditIndex < len(sctx.EditItems) {
      name = sctx.EditItems[*sctx.EditIndex].Name
    }
    return &Prompt{Text: fmt.Sprintf("New portion for %s? Send a weight like 150g.", name)}

  default:
    return &Prompt{Text: "Send a photo of your meal to get started."}
  }
}
