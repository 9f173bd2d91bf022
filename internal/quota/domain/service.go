package domain

import "context"

// LimitStore is a durable record of per-project, per-kind limits.
// SetLimit must replace a single record atomically.
type LimitStore interface {
	GetLimit(ctx context.Context, projectID string, kind ResourceKind) (limit int64, found bool, err error)
	SetLimit(ctx context.Context, projectID string, kind ResourceKind, limit int64) (LimitChange, error)
}

// UsageCounter reads live consumption from the authoritative backend.
type UsageCounter interface {
	Count(ctx context.Context, projectID string, kind ResourceKind) (int64, error)
}

// ChangeLedger keeps the history of limit updates.
type ChangeLedger interface {
	Record(ctx context.Context, change *QuotaChange) error
	List(ctx context.Context, projectID string, kind ResourceKind, limit int) ([]QuotaChange, error)
}

type AdmissionRequest struct {
	ProjectID string       `json:"project_id"`
	Kind      ResourceKind `json:"kind"`
	Delta     int64        `json:"delta"`
}

type SetQuotaRequest struct {
	ProjectID string       `json:"project_id"`
	Kind      ResourceKind `json:"kind"`
	Limit     int64        `json:"limit"`
}

// Service is the quota enforcer and the admin surface built on it.
type Service interface {
	CheckAndAdmit(ctx context.Context, req AdmissionRequest) (Decision, error)

	GetQuota(ctx context.Context, projectID string, kind ResourceKind) (Quota, error)
	ListQuotas(ctx context.Context, projectID string) ([]Quota, error)
	SetQuota(ctx context.Context, req SetQuotaRequest) (Quota, error)
	QuotaHistory(ctx context.Context, projectID string, kind ResourceKind, limit int) ([]QuotaChange, error)

	GetUsage(ctx context.Context, projectID string, kind ResourceKind) (Usage, error)

	GetExpiration(ctx context.Context, projectID string) (Expiration, error)
	SetExpiration(ctx context.Context, projectID, date string) (Expiration, error)
	ListExpirations(ctx context.Context) ([]Expiration, error)
}
