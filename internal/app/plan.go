package app

import (
	"context"

	"github.com/dev-tams/deployprune/internal/storage/prunable"
)

// Plan is what a cleanup would do against the current listing.
type Plan struct {
	Retained []DeploymentGroup
	Delete   []DeploymentGroup
}

// PlanCleanup runs discovery and selection without deleting anything.
func PlanCleanup(ctx context.Context, st prunable.Prunable, policy RetentionPolicy) (Plan, error) {
	groups, err := DiscoverGroups(ctx, st)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{Retained: retained(RankGroups(groups), policy)}
	for g := range SelectForDeletion(groups, policy) {
		plan.Delete = append(plan.Delete, g)
	}
	return plan, nil
}
