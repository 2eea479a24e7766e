package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/composition"
	"github.com/ekaya-inc/ekaya-composites/pkg/metrics"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/retry"
)

type testEnv struct {
	db         *fakeDB
	materials  *memMaterialRepo
	analyses   *memAnalysisRepo
	composites *memCompositeRepo
	workflows  *memWorkflowRepo
	metrics    *metrics.Metrics

	compositeSvc CompositeService
	workflowSvc  WorkflowService
}

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		db:         &fakeDB{},
		materials:  newMemMaterialRepo(),
		analyses:   &memAnalysisRepo{},
		composites: newMemCompositeRepo(),
		workflows:  newMemWorkflowRepo(),
		metrics:    metrics.New(prometheus.NewRegistry()),
	}
	env.compositeSvc = NewCompositeService(&CompositeServiceDeps{
		DB:               env.db,
		Materials:        env.materials,
		Analyses:         env.analyses,
		Composites:       env.composites,
		ThresholdPercent: composition.DefaultSignificanceThreshold,
		Retry:            fastRetry(),
		Metrics:          env.metrics,
		Logger:           zap.NewNop(),
	})
	env.workflowSvc = NewWorkflowService(env.db, env.composites, env.workflows, env.metrics, zap.NewNop())
	return env
}

func reading(name, cas string, pct float64) models.Reading {
	var casPtr *string
	if cas != "" {
		casPtr = &cas
	}
	return models.Reading{
		IdentityKey: composition.IdentityKey(casPtr, name),
		DisplayName: name,
		CASNumber:   casPtr,
		Percentage:  pct,
		Category:    models.CategoryComponent,
	}
}

// addAnalysis stores a processed analysis with the given readings.
func (e *testEnv) addAnalysis(materialID uuid.UUID, weight float64, batch, supplier string, readings ...models.Reading) *models.Analysis {
	a := &models.Analysis{
		MaterialID: materialID,
		Filename:   batch + ".csv",
		Weight:     weight,
		Readings:   readings,
		Status:     models.AnalysisStatusProcessed,
	}
	if batch != "" {
		a.BatchNumber = &batch
	}
	if supplier != "" {
		a.Supplier = &supplier
	}
	_ = e.analyses.Create(context.Background(), a)
	return a
}

func component(name string, pct float64) *models.Component {
	return &models.Component{
		IdentityKey: composition.IdentityKey(nil, name),
		DisplayName: name,
		Percentage:  pct,
		Category:    models.CategoryComponent,
	}
}

// approvedComposite seeds an approved composite approved at approvedAt.
func (e *testEnv) approvedComposite(materialID uuid.UUID, version int, approvedAt time.Time, components ...*models.Component) *models.Composite {
	c := &models.Composite{
		MaterialID: materialID,
		Version:    version,
		Origin:     models.OriginLab,
		Status:     models.CompositeStatusApproved,
		Components: components,
		CreatedAt:  approvedAt,
		UpdatedAt:  approvedAt,
		ApprovedAt: &approvedAt,
	}
	e.composites.put(c)
	return c
}

func strPtr(s string) *string { return &s }
