package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/composition"
	"github.com/ekaya-inc/ekaya-composites/pkg/metrics"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/repositories"
)

// Review results recorded in metrics.
const (
	reviewUnchanged = "unchanged"
	reviewPersisted = "persisted"
	reviewSkipped   = "skipped"
	reviewFailed    = "failed"
)

// ReviewOutcome reports what a periodic review of one material found.
type ReviewOutcome struct {
	MaterialID uuid.UUID                   `json:"material_id"`
	Comparison *models.CompositeComparison `json:"comparison,omitempty"`
	// Persisted is true when the recomputation differed significantly and was stored as a draft.
	Persisted   bool       `json:"persisted"`
	CompositeID *uuid.UUID `json:"composite_id,omitempty"`
	Submitted   bool       `json:"submitted"`
}

// ReviewSummary totals one ReviewDue run.
type ReviewSummary struct {
	Reviewed  int `json:"reviewed"`
	Persisted int `json:"persisted"`
	Failed    int `json:"failed"`
}

// ReviewService re-validates approved composites against the latest analyses
// and cleans up abandoned drafts.
type ReviewService interface {
	// ReviewMaterial recomputes a material's composite from all processed
	// analyses and compares it with the current approved version. A
	// significant difference is stored as a new DRAFT version.
	ReviewMaterial(ctx context.Context, materialID uuid.UUID) (*ReviewOutcome, error)

	// ReviewDue reviews every material whose current approval is older than
	// the review period. Failures of single materials are logged and counted.
	ReviewDue(ctx context.Context) (*ReviewSummary, error)

	// CleanupStaleDrafts deletes DRAFT composites not updated for retentionDays.
	CleanupStaleDrafts(ctx context.Context, retentionDays int) (int, error)

	// RunScheduler starts a background goroutine that runs ReviewDue and
	// CleanupStaleDrafts immediately and then every interval.
	// Cancel the context to stop the scheduler.
	RunScheduler(ctx context.Context, interval time.Duration)
}

// ReviewServiceDeps contains dependencies for ReviewService.
type ReviewServiceDeps struct {
	DB                 ScopeProvider
	Composites         repositories.CompositeRepository
	CompositeService   CompositeService
	WorkflowService    WorkflowService
	ThresholdPercent   float64
	ReviewPeriod       time.Duration
	Concurrency        int
	AutoSubmit         bool
	DraftRetentionDays int
	Metrics            *metrics.Metrics
	Logger             *zap.Logger
}

type reviewService struct {
	db            ScopeProvider
	composites    repositories.CompositeRepository
	compositeSvc  CompositeService
	workflowSvc   WorkflowService
	threshold     float64
	period        time.Duration
	concurrency   int
	autoSubmit    bool
	retentionDays int
	metrics       *metrics.Metrics
	now           func() time.Time
	logger        *zap.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(deps *ReviewServiceDeps) ReviewService {
	threshold := deps.ThresholdPercent
	if threshold <= 0 {
		threshold = composition.DefaultSignificanceThreshold
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	return &reviewService{
		db:            deps.DB,
		composites:    deps.Composites,
		compositeSvc:  deps.CompositeService,
		workflowSvc:   deps.WorkflowService,
		threshold:     threshold,
		period:        deps.ReviewPeriod,
		concurrency:   concurrency,
		autoSubmit:    deps.AutoSubmit,
		retentionDays: deps.DraftRetentionDays,
		metrics:       m,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        deps.Logger.Named("review-service"),
	}
}

var _ ReviewService = (*reviewService)(nil)

func (s *reviewService) ReviewMaterial(ctx context.Context, materialID uuid.UUID) (*ReviewOutcome, error) {
	ctx, release, err := ensureScope(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.compositeSvc.CurrentApproved(ctx, materialID)
	if err != nil {
		return nil, err
	}

	recomputed, err := s.compositeSvc.Preview(ctx, &CalculateRequest{MaterialID: materialID})
	if err != nil {
		return nil, err
	}

	comparison := composition.Compare(current, recomputed, s.threshold)
	outcome := &ReviewOutcome{MaterialID: materialID, Comparison: comparison}
	if !comparison.SignificantChange {
		s.metrics.Review(reviewUnchanged)
		s.logger.Debug("Review found no significant change",
			zap.String("material_id", materialID.String()),
			zap.Int("approved_version", current.Version),
			zap.Float64("change_score", comparison.TotalChangeScore))
		return outcome, nil
	}

	version := current.Version
	recomputed.Metadata.Source = models.MetadataSourceReview
	recomputed.Metadata.ComparedToVersion = &version
	if err := s.compositeSvc.Save(ctx, recomputed); err != nil {
		return nil, err
	}
	outcome.Persisted = true
	outcome.CompositeID = &recomputed.ID
	comparison.NewCompositeID = recomputed.ID
	comparison.NewVersion = recomputed.Version

	if s.autoSubmit && s.workflowSvc != nil {
		if _, err := s.workflowSvc.Submit(ctx, recomputed.ID, composition.Assignment{}); err != nil {
			return nil, fmt.Errorf("failed to submit reviewed composite: %w", err)
		}
		outcome.Submitted = true
	}

	s.metrics.Review(reviewPersisted)
	s.logger.Info("Review stored a significantly changed composite",
		zap.String("material_id", materialID.String()),
		zap.Int("approved_version", current.Version),
		zap.Int("new_version", recomputed.Version),
		zap.Float64("change_score", comparison.TotalChangeScore),
		zap.Bool("submitted", outcome.Submitted))
	return outcome, nil
}

func (s *reviewService) ReviewDue(ctx context.Context) (*ReviewSummary, error) {
	materialIDs, err := s.materialsDue(ctx)
	if err != nil {
		return nil, err
	}
	if len(materialIDs) == 0 {
		return &ReviewSummary{}, nil
	}

	s.logger.Debug("Reviewing materials", zap.Int("count", len(materialIDs)))

	var reviewed, persisted, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range materialIDs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcome, err := s.reviewScoped(gctx, id)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				failed.Add(1)
				if errors.Is(err, apperrors.ErrNoEligibleAnalyses) {
					s.metrics.Review(reviewSkipped)
				} else {
					s.metrics.Review(reviewFailed)
				}
				s.logger.Error("Review failed",
					zap.String("material_id", id.String()),
					zap.Error(err))
				return nil
			}
			reviewed.Add(1)
			if outcome.Persisted {
				persisted.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	summary := &ReviewSummary{
		Reviewed:  int(reviewed.Load()),
		Persisted: int(persisted.Load()),
		Failed:    int(failed.Load()),
	}
	if err != nil {
		return summary, err
	}

	s.logger.Info("Review run completed",
		zap.Int("reviewed", summary.Reviewed),
		zap.Int("persisted", summary.Persisted),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// reviewScoped runs ReviewMaterial on its own connection so concurrent
// reviews never share one.
func (s *reviewService) reviewScoped(ctx context.Context, materialID uuid.UUID) (*ReviewOutcome, error) {
	ctx, release, err := s.db.WithScope(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.ReviewMaterial(ctx, materialID)
}

func (s *reviewService) materialsDue(ctx context.Context) ([]uuid.UUID, error) {
	ctx, release, err := ensureScope(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer release()

	cutoff := s.now().Add(-s.period)
	ids, err := s.composites.ListMaterialsDueForReview(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials due for review: %w", err)
	}
	return ids, nil
}

func (s *reviewService) CleanupStaleDrafts(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, apperrors.NewValidationError("retention_days", "must be positive")
	}

	ctx, release, err := ensureScope(ctx, s.db)
	if err != nil {
		return 0, err
	}
	defer release()

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	drafts, err := s.composites.ListStaleDrafts(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale drafts: %w", err)
	}

	deleted := 0
	for _, c := range drafts {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		err := s.compositeSvc.Delete(ctx, c.ID)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrInvalidTransition):
			// Deleted or submitted since it was listed.
		default:
			return deleted, fmt.Errorf("failed to delete draft %s: %w", c.ID, err)
		}
	}

	s.metrics.DraftsCleaned.Add(float64(deleted))
	if deleted > 0 {
		s.logger.Info("Stale drafts deleted",
			zap.Int("deleted", deleted),
			zap.Int("retention_days", retentionDays))
	}
	return deleted, nil
}

func (s *reviewService) RunScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("Review scheduler started",
			zap.Duration("interval", interval),
			zap.Duration("review_period", s.period),
			zap.Int("draft_retention_days", s.retentionDays))

		s.runOnce(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Review scheduler stopped")
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

func (s *reviewService) runOnce(ctx context.Context) {
	if _, err := s.ReviewDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Review scheduler: review run failed", zap.Error(err))
	}
	if s.retentionDays <= 0 {
		return
	}
	if _, err := s.CleanupStaleDrafts(ctx, s.retentionDays); err != nil && ctx.Err() == nil {
		s.logger.Error("Review scheduler: draft cleanup failed", zap.Error(err))
	}
}
