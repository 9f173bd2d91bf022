package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/quotaledger/internal/clock"
	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const BackendDatabase = "database"

type limitRepo struct {
	db      *gorm.DB
	clock   clock.Clock
	metrics *obsmetrics.BackendMetrics
}

// NewLimitStore stores limits in the project_quotas table.
func NewLimitStore(db *gorm.DB, clk clock.Clock, metrics *obsmetrics.BackendMetrics) quotadomain.LimitStore {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &limitRepo{db: db, clock: clk, metrics: metrics}
}

func (r *limitRepo) GetLimit(ctx context.Context, projectID string, kind quotadomain.ResourceKind) (limit int64, found bool, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveCall(BackendDatabase, "quota_get", start, err) }()

	projectID, err = validateKey(projectID, kind)
	if err != nil {
		return 0, false, err
	}

	var rec quotadomain.QuotaRecord
	err = r.db.WithContext(ctx).
		Where("project_id = ? AND resource_kind = ?", projectID, kind).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable(err)
	}
	return rec.Limit, true, nil
}

// SetLimit replaces the record with a single upsert keyed on
// (project_id, resource_kind). The previous value is read in the same
// transaction for the change ledger.
func (r *limitRepo) SetLimit(ctx context.Context, projectID string, kind quotadomain.ResourceKind, limit int64) (change quotadomain.LimitChange, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveCall(BackendDatabase, "quota_set", start, err) }()

	change = quotadomain.LimitChange{Backend: BackendDatabase}
	projectID, err = validateKey(projectID, kind)
	if err != nil {
		return change, err
	}
	if limit < 0 {
		return change, quotadomain.ErrInvalidLimit
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("project_id = ? AND resource_kind = ?", projectID, kind)
		if tx.Dialector.Name() != "sqlite" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var prev quotadomain.QuotaRecord
		err := query.Take(&prev).Error
		switch {
		case err == nil:
			change.Previous = &prev.Limit
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		rec := quotadomain.QuotaRecord{
			ProjectID:    projectID,
			ResourceKind: kind,
			Limit:        limit,
			UpdatedAt:    r.clock.Now(),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "resource_kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"limit_value", "updated_at"}),
		}).Create(&rec).Error
	})
	if err != nil {
		change.Previous = nil
		return change, unavailable(err)
	}
	return change, nil
}

func validateKey(projectID string, kind quotadomain.ResourceKind) (string, error) {
	if _, ok := kind.Info(); !ok {
		return "", quotadomain.ErrInvalidKind
	}
	return quotadomain.NormalizeProjectID(projectID)
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", quotadomain.ErrBackendUnavailable, err)
	}
	return fmt.Errorf("%w: quota database: %v", quotadomain.ErrBackendUnavailable, err)
}
