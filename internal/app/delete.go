package app

import (
	"context"

	"github.com/dev-tams/deployprune/internal/storage/prunable"
)

// DeleteGroup removes every object under group.Prefix. The prefix must be a single top-level
// segment as produced by DiscoverGroups; anything else is refused before storage is touched.
func DeleteGroup(ctx context.Context, st prunable.Prunable, group DeploymentGroup) (int, error) {
	if err := prunable.CheckPrefix(group.Prefix); err != nil {
		return 0, &DeletionFailedError{Prefix: group.Prefix, Cause: err}
	}

	n, err := st.DeletePrefix(ctx, group.Prefix)
	if err != nil {
		return n, &DeletionFailedError{Prefix: group.Prefix, Objects: n, Cause: err}
	}
	return n, nil
}
