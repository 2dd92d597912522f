package services

import (
  "context"
  "fmt"
  "math"
  "os"
  "sort"
  "strings"
  "time"

  "github.com/google/uuid"
  "go.opentelemetry.io/otel/attribute"
  "gopkg.in/yaml.v3"
  "gorm.io/gorm"

  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/observability"
  "github.com/yungbote/macrolog-backend/internal/repos"
  "github.com/yungbote/macrolog-backend/internal/types"
  "github.com/yungbote/macrolog-backend/internal/utils"
)

// ResolverPolicy holds the ranking knobs as named configuration so the
// ordering properties stay independently testable.
type ResolverPolicy struct {
  SimilarityWeight  float64 `yaml:"similarity_weight"`
  AffinityWeight    float64 `yaml:"affinity_weight"`
  RecencyHalfLife   float64 `yaml:"recency_half_life_days"`
  ExternalThreshold float64 `yaml:"external_threshold"`
  LibraryLimit      int     `yaml:"library_limit"`
  ExternalLimit     int     `yaml:"external_limit"`
}

func DefaultResolverPolicy() ResolverPolicy {
  return ResolverPolicy{
    SimilarityWeight:  1.0,
    AffinityWeight:    0.25,
    RecencyHalfLife:   30,
    ExternalThreshold: 0.6,
    LibraryLimit:      3,
    ExternalLimit:     3,
  }
}

// LoadResolverPolicy reads the policy from the environment, with an optional
// YAML file (RESOLVER_POLICY_PATH) taking precedence.
func LoadResolverPolicy(log *logger.Logger) ResolverPolicy {
  policy := DefaultResolverPolicy()
  policy.SimilarityWeight = utils.GetEnvAsFloat("RESOLVER_SIMILARITY_WEIGHT", policy.SimilarityWeight, log)
  policy.AffinityWeight = utils.GetEnvAsFloat("RESOLVER_AFFINITY_WEIGHT", policy.AffinityWeight, log)
  policy.RecencyHalfLife = utils.GetEnvAsFloat("RESOLVER_RECENCY_HALF_LIFE_DAYS", policy.RecencyHalfLife, log)
  policy.ExternalThreshold = utils.GetEnvAsFloat("RESOLVER_EXTERNAL_THRESHOLD", policy.ExternalThreshold, log)
  policy.LibraryLimit = utils.GetEnvAsInt("RESOLVER_LIBRARY_LIMIT", policy.LibraryLimit, log)
  policy.ExternalLimit = utils.GetEnvAsInt("RESOLVER_EXTERNAL_LIMIT", policy.ExternalLimit, log)

  path := utils.GetEnv("RESOLVER_POLICY_PATH", "", log)
  if path != "" {
    raw, err := os.ReadFile(path)
    if err != nil {
      log.Warn("could not read resolver policy file", "path", path, "error", err)
      return policy
    }
    if err := yaml.Unmarshal(raw, &policy); err != nil {
      log.Warn("could not parse resolver policy file", "path", path, "error", err)
    }
  }
  return policy
}

// RankedCandidates is the resolver output: options in rank order with the
// manual-entry affordance always last, plus a flag set when the external
// lookup was unavailable and results degraded to library-only.
type RankedCandidates struct {
  Options  []types.Candidate
  Degraded bool
}

// ResolverService maps a detected item name to ranked resolution options.
// Lookup has no side effects; library mutation happens only on confirmed
// selections at commit time.
type ResolverService struct {
  log       *logger.Logger
  policy    ResolverPolicy
  library   repos.LibraryRepo
  nutrition *NutritionService
  now       func() time.Time
}

func NewResolverService(log *logger.Logger, policy ResolverPolicy, library repos.LibraryRepo, nutrition *NutritionService) *ResolverService {
  return &ResolverService{
    log:       log.With("service", "ResolverService"),
    policy:    policy,
    library:   library,
    nutrition: nutrition,
    now:       time.Now,
  }
}

type ResolveHints struct {
  Brand *string
  Store *string
}

func (rs *ResolverService) Resolve(ctx context.Context, tx *gorm.DB, userID uuid.UUID, itemName string, hints ResolveHints) (RankedCandidates, error) {
  var foods []*types.LibraryFood
  var err error
  query := strings.TrimSpace(itemName)
  if query == "" {
    foods, err = rs.library.ListTop(ctx, tx, userID, rs.policy.LibraryLimit)
  } else {
    foods, err = rs.library.Search(ctx, tx, userID, query, rs.policy.LibraryLimit*2)
  }
  if err != nil {
    return RankedCandidates{}, err
  }

  scored := rs.scoreLibrary(query, hints, foods)
  if len(scored) > rs.policy.LibraryLimit {
    scored = scored[:rs.policy.LibraryLimit]
  }

  result := RankedCandidates{Options: scored}

  bestScore := 0.0
  if len(scored) > 0 {
    bestScore = scored[0].Score
  }
  if query != "" && bestScore < rs.policy.ExternalThreshold {
    spanCtx, span := observability.StartSpan(ctx, "resolver.external_lookup",
      attribute.String("query", query),
      attribute.Float64("library_best_score", bestScore),
    )
    external, err := rs.nutrition.Search(spanCtx, query, rs.policy.ExternalLimit)
    span.SetAttributes(
      attribute.Bool("degraded", err != nil),
      attribute.Int("result_count", len(external)),
    )
    observability.EndSpan(span, err)
    if err != nil {
      // External outage never blocks the session; offer library + manual.
      rs.log.Warn("external lookup degraded", "query", query, "error", err)
      result.Degraded = true
    } else {
      for _, summary := range external {
        result.Options = append(result.Options, fdcCandidate(summary))
      }
    }
  }

  result.Options = append(result.Options, types.Candidate{
    Type:  types.CandidateManual,
    Label: "Enter manually",
  })
  return result, nil
}

func (rs *ResolverService) scoreLibrary(query string, hints ResolveHints, foods []*types.LibraryFood) []types.Candidate {
  now := rs.now()
  candidates := make([]types.Candidate, 0, len(foods))
  for _, food := range foods {
    similarity := foodSimilarity(query, food)
    if hints.Brand != nil && food.Brand != nil && strings.EqualFold(*hints.Brand, *food.Brand) {
      similarity = math.Min(1, similarity+0.1)
    }
    if hints.Store != nil && food.Store != nil && strings.EqualFold(*hints.Store, *food.Store) {
      similarity = math.Min(1, similarity+0.05)
    }
    score := rs.policy.SimilarityWeight*similarity + rs.policy.AffinityWeight*rs.affinity(food, now)
    candidates = append(candidates, libraryCandidate(food, score))
  }

  sort.SliceStable(candidates, func(i, j int) bool {
    a, b := candidates[i], candidates[j]
    if a.Score != b.Score {
      return a.Score > b.Score
    }
    fa, fb := foodByID(foods, a.FoodID), foodByID(foods, b.FoodID)
    if fa != nil && fb != nil {
      if fa.UseCount != fb.UseCount {
        return fa.UseCount > fb.UseCount
      }
      at, bt := lastUsed(fa), lastUsed(fb)
      if !at.Equal(bt) {
        return at.After(bt)
      }
    }
    return a.Name < b.Name
  })
  return candidates
}

// affinity grows with use_count and decays with time since last use, so a
// food untouched for a long interval loses priority against equally-matched
// fresher foods.
func (rs *ResolverService) affinity(food *types.LibraryFood, now time.Time) float64 {
  usage := math.Log1p(float64(food.UseCount))
  if food.LastUsedAt == nil {
    return usage * 0.5
  }
  ageDays := now.Sub(*food.LastUsedAt).Hours() / 24
  if ageDays < 0 {
    ageDays = 0
  }
  return usage * math.Exp2(-ageDays/rs.policy.RecencyHalfLife)
}

// foodSimilarity is the best similarity between the query and the food name
// or any alias. Deterministic token overlap with exact and prefix boosts; no
// external fuzzy-matching behavior is assumed.
func foodSimilarity(query string, food *types.LibraryFood) float64 {
  best := textSimilarity(query, food.Name)
  for _, alias := range food.Aliases {
    if s := textSimilarity(query, alias.Alias); s > best {
      best = s
    }
  }
  return best
}

func textSimilarity(query, candidate string) float64 {
  q := normalizeTokens(query)
  c := normalizeTokens(candidate)
  if len(q) == 0 || len(c) == 0 {
    return 0
  }
  qJoined := strings.Join(q, " ")
  cJoined := strings.Join(c, " ")
  if qJoined == cJoined {
    return 1
  }

  qSet := map[string]bool{}
  for _, tok := range q {
    qSet[tok] = true
  }
  intersection := 0
  cSet := map[string]bool{}
  for _, tok := range c {
    if cSet[tok] {
      continue
    }
    cSet[tok] = true
    if qSet[tok] {
      intersection++
    }
  }
  union := len(qSet) + len(cSet) - intersection
  score := float64(intersection) / float64(union)

  if strings.HasPrefix(cJoined, qJoined) || strings.HasPrefix(qJoined, cJoined) {
    score = math.Min(1, score+0.2)
  }
  return score
}

func normalizeTokens(s string) []string {
  fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
  out := make([]string, 0, len(fields))
  for _, f := range fields {
    f = strings.Trim(f, ".,;:!?'\"()")
    if f != "" {
      out = append(out, f)
    }
  }
  sort.Strings(out)
  return out
}

func libraryCandidate(food *types.LibraryFood, score float64) types.Candidate {
  id := food.ID
  return types.Candidate{
    Type:         types.CandidateLibrary,
    Label:        formatLibraryLabel(food),
    Name:         food.Name,
    Brand:        food.Brand,
    Store:        food.Store,
    FoodID:       &id,
    SourceRef:    food.SourceRef,
    Basis:        food.Basis,
    ServingSizeG: food.ServingSizeG,
    Calories:     food.Calories,
    ProteinG:     food.ProteinG,
    FatG:         food.FatG,
    CarbsG:       food.CarbsG,
    Score:        score,
  }
}

func fdcCandidate(summary FoodSummary) types.Candidate {
  return types.Candidate{
    Type:  types.CandidateFDC,
    Label: formatFdcLabel(summary),
    Name:  summary.Description,
    Brand: summary.BrandOwner,
    FdcID: summary.FdcID,
  }
}

func formatLibraryLabel(food *types.LibraryFood) string {
  parts := []string{food.Name}
  if food.Brand != nil && *food.Brand != "" {
    parts = append(parts, *food.Brand)
  }
  if food.Store != nil && *food.Store != "" {
    parts = append(parts, *food.Store)
  }
  return strings.Join(parts, " · ")
}

func formatFdcLabel(summary FoodSummary) string {
  brand := ""
  if summary.BrandOwner != nil && *summary.BrandOwner != "" {
    brand = *summary.BrandOwner
  } else if summary.BrandName != nil && *summary.BrandName != "" {
    brand = *summary.BrandName
  }
  if brand != "" {
    return fmt.Sprintf("%s · %s", summary.Description, brand)
  }
  return summary.Description
}

func foodByID(foods []*types.LibraryFood, id *uuid.UUID) *types.LibraryFood {
  if id == nil {
    return nil
  }
  for _, food := range foods {
    if food.ID == *id {
      return food
    }
  }
  return nil
}

func lastUsed(food *types.LibraryFood) time.Time {
  if food.LastUsedAt == nil {
    return time.Time{}
  }
  return *food.LastUsedAt
}
