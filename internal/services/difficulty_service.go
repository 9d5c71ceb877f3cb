package services

import (
	"context"
	"math"
	"sort"
	"sync"

	"studyprogress/internal/config"
	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	"studyprogress/internal/serviceinterfaces"
	"studyprogress/internal/store"
	contextutils "studyprogress/internal/utils"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DifficultyServiceInterface defines the interface for difficulty recalibration
type DifficultyServiceInterface = serviceinterfaces.DifficultyService

// DifficultyService recalibrates stored item difficulties from review history
type DifficultyService struct {
	store   store.ProgressStore
	policy  DifficultyPolicy
	cfg     config.DifficultyConfig
	metrics *observability.EngineMetrics
	logger  *observability.Logger
}

var _ DifficultyServiceInterface = (*DifficultyService)(nil)

// NewDifficultyServiceWithLogger creates a DifficultyService. A nil policy uses HeuristicPolicy.
func NewDifficultyServiceWithLogger(progress store.ProgressStore, policy DifficultyPolicy, cfg config.DifficultyConfig, metrics *observability.EngineMetrics, logger *observability.Logger) *DifficultyService {
	if policy == nil {
		policy = HeuristicPolicy{}
	}
	if metrics == nil {
		metrics = &observability.EngineMetrics{}
	}
	return &DifficultyService{store: progress, policy: policy, cfg: cfg, metrics: metrics, logger: logger}
}

// Settings returns the configured recalibration settings
func (s *DifficultyService) Settings() models.DifficultySettings {
	return models.DifficultySettings{
		Aggressiveness:    models.Aggressiveness(s.cfg.Aggressiveness),
		AdaptationSpeed:   s.cfg.AdaptationSpeed,
		MinimumDataPoints: s.cfg.MinimumDataPoints,
	}
}

// CalculateOptimalDifficulty rejects out-of-range inputs, then evaluates the policy
func (s *DifficultyService) CalculateOptimalDifficulty(window models.PerformanceWindow, current float64, settings models.DifficultySettings) (*models.DifficultyProfile, error) {
	if err := contextutils.ValidateRange("current_difficulty", current, models.MinDifficulty, models.MaxDifficulty); err != nil {
		return nil, err
	}
	if err := contextutils.ValidateStruct(settings); err != nil {
		return nil, err
	}
	profile := s.policy.Recommend(window, current, settings)
	return &profile, nil
}

// AdjustItemSetDifficulty recalibrates every item in a set
func (s *DifficultyService) AdjustItemSetDifficulty(ctx context.Context, itemSetID int) (result *models.RecalibrationReport, err error) {
	ctx, span := observability.TraceDifficultyFunction(ctx, "AdjustItemSetDifficulty", observability.AttributeItemSetID(itemSetID))
	defer observability.FinishSpan(span, &err)

	itemIDs, err := s.store.ListSetItems(ctx, itemSetID)
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to list items of set %d", itemSetID)
	}
	result, err = s.AdjustItemsDifficulty(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	result.ItemSetID = itemSetID
	return result, nil
}

// AdjustItemsDifficulty recalibrates the given items concurrently. Each item succeeds or
// fails on its own; failures are reported, never returned.
func (s *DifficultyService) AdjustItemsDifficulty(ctx context.Context, itemIDs []int) (result *models.RecalibrationReport, err error) {
	ctx, span := observability.TraceDifficultyFunction(ctx, "AdjustItemsDifficulty", attribute.Int("items.requested", len(itemIDs)))
	defer observability.FinishSpan(span, &err)

	settings := s.Settings()
	if err := contextutils.ValidateStruct(settings); err != nil {
		return nil, err
	}

	ids := lo.Uniq(itemIDs)
	report := &models.RecalibrationReport{Evaluated: len(ids), Changes: []models.DifficultyChange{}}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(max(1, s.cfg.Concurrency))

	for _, id := range ids {
		g.Go(func() error {
			change, err := s.adjustItem(ctx, id, settings)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failures = append(report.Failures, models.ItemFailure{ItemID: id, Error: err.Error()})
			case change == nil:
				report.Skipped++
			default:
				report.Changes = append(report.Changes, *change)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Changes, func(i, j int) bool { return report.Changes[i].ItemID < report.Changes[j].ItemID })
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].ItemID < report.Failures[j].ItemID })

	observability.Add(ctx, s.metrics.DifficultyChanges, int64(len(report.Changes)))
	span.SetAttributes(
		attribute.Int("items.changed", len(report.Changes)),
		attribute.Int("items.failed", len(report.Failures)),
	)
	s.logger.Info(ctx, "Difficulty recalibration finished", map[string]interface{}{
		"evaluated": report.Evaluated,
		"changed":   len(report.Changes),
		"skipped":   report.Skipped,
		"failed":    len(report.Failures),
	})
	return report, nil
}

// adjustItem returns nil when the item needs no write
func (s *DifficultyService) adjustItem(ctx context.Context, itemID int, settings models.DifficultySettings) (*models.DifficultyChange, error) {
	current, err := s.store.GetItemDifficulty(ctx, itemID)
	if err != nil {
		return nil, err
	}
	reviews, err := s.store.GetRecentResponses(ctx, itemID, s.cfg.WindowSize)
	if err != nil {
		return nil, err
	}

	profile := s.policy.Recommend(windowFromReviews(reviews), current, settings)
	profile.ItemID = itemID

	if math.Abs(profile.RecommendedDifficulty-current) < s.cfg.MaterialityThreshold {
		return nil, nil
	}
	target := models.ClampDifficulty(math.Round(profile.RecommendedDifficulty))
	if target == current {
		return nil, nil
	}

	if err := s.store.SetItemDifficulty(ctx, itemID, target); err != nil {
		s.logger.Warn(ctx, "Failed to write item difficulty", map[string]interface{}{
			"item_id": itemID,
			"target":  target,
			"error":   err.Error(),
		})
		return nil, err
	}

	s.logger.Debug(ctx, "Adjusted item difficulty", map[string]interface{}{
		"item_id": itemID,
		"from":    current,
		"to":      target,
		"reason":  profile.AdjustmentReason,
	})
	return &models.DifficultyChange{ItemID: itemID, From: current, To: target, Profile: profile}, nil
}
