package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dev-tams/deployprune/internal/storage/prunable"
)

// DeploymentGroup is one deployment: every object under Prefix. Its age is the ModTime of a single
// representative object, the first key the storage lists under the prefix. If that object is
// removed independently the group's age is undefined until the next listing.
type DeploymentGroup struct {
	Prefix            string
	RepresentativeKey string
	Timestamp         time.Time
}

// DiscoverGroups lists the top-level prefixes and dates each one by its representative object.
// Any listing failure returns ErrStorageUnavailable and no groups.
func DiscoverGroups(ctx context.Context, st prunable.Prunable) ([]DeploymentGroup, error) {
	prefixes, err := st.ListPrefixes(ctx)
	if err != nil {
		return nil, storageUnavailable("list prefixes", err)
	}

	groups := make([]DeploymentGroup, 0, len(prefixes))
	seen := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		objs, err := st.List(ctx, p, 1)
		if err != nil {
			return nil, storageUnavailable(fmt.Sprintf("list %s", p), err)
		}
		// the prefix emptied between the two listings
		if len(objs) == 0 {
			continue
		}
		rep := objs[0]
		if !strings.HasPrefix(rep.Key, p) {
			return nil, storageUnavailable(fmt.Sprintf("list %s", p), fmt.Errorf("listing returned foreign key %q", rep.Key))
		}

		groups = append(groups, DeploymentGroup{
			Prefix:            p,
			RepresentativeKey: rep.Key,
			Timestamp:         rep.ModTime,
		})
	}
	return groups, nil
}
