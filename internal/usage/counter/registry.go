package counter

import (
	"context"
	"fmt"

	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
)

// Registry dispatches Count to the counter registered for each kind.
type Registry struct {
	counters map[quotadomain.ResourceKind]quotadomain.UsageCounter
}

func NewRegistry() *Registry {
	return &Registry{counters: map[quotadomain.ResourceKind]quotadomain.UsageCounter{}}
}

// Register binds kind to c. A nil counter leaves the kind unconfigured.
func (r *Registry) Register(kind quotadomain.ResourceKind, c quotadomain.UsageCounter) *Registry {
	if c != nil {
		r.counters[kind] = c
	}
	return r
}

func (r *Registry) Count(ctx context.Context, projectID string, kind quotadomain.ResourceKind) (int64, error) {
	if _, ok := kind.Info(); !ok {
		return 0, quotadomain.ErrInvalidKind
	}
	c, ok := r.counters[kind]
	if !ok {
		return 0, fmt.Errorf("%w: no usage backend configured for %s", quotadomain.ErrBackendUnavailable, kind)
	}
	return c.Count(ctx, projectID, kind)
}

var (
	_ quotadomain.UsageCounter = (*Registry)(nil)
	_ quotadomain.UsageCounter = (*ImageCounter)(nil)
	_ quotadomain.UsageCounter = (*ObjectStoreCounter)(nil)
	_ quotadomain.UsageCounter = (*ComputeCounter)(nil)
)
