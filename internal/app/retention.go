package app

import (
	"fmt"
	"iter"
	"slices"
)

type RetentionPolicy struct {
	RetainCount int
}

func NewRetentionPolicy(retain int) (RetentionPolicy, error) {
	if retain < 0 {
		return RetentionPolicy{}, fmt.Errorf("retain count must be >= 0, got %d", retain)
	}
	return RetentionPolicy{RetainCount: retain}, nil
}

// RankGroups returns a copy of groups ordered newest first. Equal timestamps keep listing order.
func RankGroups(groups []DeploymentGroup) []DeploymentGroup {
	ranked := slices.Clone(groups)
	slices.SortStableFunc(ranked, func(a, b DeploymentGroup) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return ranked
}

// SelectForDeletion yields every group outside the newest policy.RetainCount, next-newest first.
// The groups are ranked when SelectForDeletion is called, so later changes to the slice are not
// observed. RetainCount 0 selects everything; a negative count selects nothing.
func SelectForDeletion(groups []DeploymentGroup, policy RetentionPolicy) iter.Seq[DeploymentGroup] {
	ranked := RankGroups(groups)
	return func(yield func(DeploymentGroup) bool) {
		if policy.RetainCount < 0 {
			return
		}
		for i := policy.RetainCount; i < len(ranked); i++ {
			if !yield(ranked[i]) {
				return
			}
		}
	}
}

// retained is the newest policy.RetainCount groups of an already ranked slice.
func retained(ranked []DeploymentGroup, policy RetentionPolicy) []DeploymentGroup {
	if policy.RetainCount < 0 {
		return ranked
	}
	return ranked[:min(policy.RetainCount, len(ranked))]
}
