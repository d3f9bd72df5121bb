package ledger

import (
	"context"
	"fmt"

	"donationledger/pkg/types"
)

// Projector derives read-side rollups from the catalog. It never writes.
type Projector struct {
	stores Stores
}

func NewProjector(stores Stores) *Projector {
	return &Projector{stores: stores}
}

// ComputeProgress rounds half up and clamps the display percent to 100.
// Raw over-fulfillment stays visible in Fulfilled.
func ComputeProgress(fulfilled, needed int) types.Progress {
	progress := types.Progress{Fulfilled: fulfilled, Needed: needed}
	if needed <= 0 || fulfilled <= 0 {
		return progress
	}

	percent := (fulfilled*200 + needed) / (needed * 2)
	progress.Percent = min(percent, 100)
	return progress
}

// NeedStatusBucket classifies a need by its fulfilled share. Each bucket
// includes its lower bound: exactly 25% is Low, exactly 75% is WellStocked.
func NeedStatusBucket(need *types.Need) types.StatusBucket {
	if need == nil || need.QuantityNeeded <= 0 {
		return types.BucketUrgent
	}

	scaled := need.QuantityFulfilled * 100
	switch {
	case scaled < 25*need.QuantityNeeded:
		return types.BucketUrgent
	case scaled < 50*need.QuantityNeeded:
		return types.BucketLow
	case scaled < 75*need.QuantityNeeded:
		return types.BucketModerate
	default:
		return types.BucketWellStocked
	}
}

func (p *Projector) ProjectProgress(ctx context.Context, projectID string) (types.Progress, error) {
	if _, err := p.stores.Projects.Project(ctx, projectID); err != nil {
		return types.Progress{}, fmt.Errorf("failed to load project %s: %w", projectID, err)
	}

	needs, err := p.stores.Needs.NeedsByProjects(ctx, []string{projectID})
	if err != nil {
		return types.Progress{}, fmt.Errorf("failed to load needs for project %s: %w", projectID, err)
	}

	var fulfilled, needed int
	for _, need := range needs {
		fulfilled += need.QuantityFulfilled
		needed += need.QuantityNeeded
	}

	return ComputeProgress(fulfilled, needed), nil
}

// CategoryProjectCount counts active projects only; drafts, paused and
// completed projects are not advertised under a category.
func (p *Projector) CategoryProjectCount(ctx context.Context, categoryID string) (int, error) {
	if _, err := p.stores.Categories.Category(ctx, categoryID); err != nil {
		return 0, fmt.Errorf("failed to load category %s: %w", categoryID, err)
	}

	count, err := p.stores.Projects.CountActiveByCategory(ctx, categoryID)
	if err != nil {
		return 0, fmt.Errorf("failed to count projects for category %s: %w", categoryID, err)
	}

	return count, nil
}

// rollup fills the derived project totals from its needs.
func rollup(project *types.Project, needs []*types.Need) {
	project.Needs = needs
	project.ItemsNeeded = 0
	project.ItemsFulfilled = 0
	for _, need := range needs {
		project.ItemsNeeded += need.QuantityNeeded
		project.ItemsFulfilled += need.QuantityFulfilled
	}
}
