package repository

import (
	"context"

	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
)

// RoutedStore sends each resource kind to the backend that owns its limits.
type RoutedStore struct {
	fallback quotadomain.LimitStore
	routes   map[quotadomain.ResourceKind]quotadomain.LimitStore
}

func NewRoutedStore(fallback quotadomain.LimitStore, routes map[quotadomain.ResourceKind]quotadomain.LimitStore) *RoutedStore {
	copied := make(map[quotadomain.ResourceKind]quotadomain.LimitStore, len(routes))
	for kind, store := range routes {
		if store != nil {
			copied[kind] = store
		}
	}
	return &RoutedStore{fallback: fallback, routes: copied}
}

func (r *RoutedStore) For(kind quotadomain.ResourceKind) quotadomain.LimitStore {
	if store, ok := r.routes[kind]; ok {
		return store
	}
	return r.fallback
}

func (r *RoutedStore) GetLimit(ctx context.Context, projectID string, kind quotadomain.ResourceKind) (int64, bool, error) {
	if _, ok := kind.Info(); !ok {
		return 0, false, quotadomain.ErrInvalidKind
	}
	return r.For(kind).GetLimit(ctx, projectID, kind)
}

func (r *RoutedStore) SetLimit(ctx context.Context, projectID string, kind quotadomain.ResourceKind, limit int64) (quotadomain.LimitChange, error) {
	if _, ok := kind.Info(); !ok {
		return quotadomain.LimitChange{}, quotadomain.ErrInvalidKind
	}
	return r.For(kind).SetLimit(ctx, projectID, kind, limit)
}

var _ quotadomain.LimitStore = (*RoutedStore)(nil)
