package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaledger/internal/clock"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"github.com/smallbiznis/quotaledger/pkg/db"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// quota_changes.request_id is VARCHAR(128).
	maxRequestIDLength = 128
)

type ledgerRepo struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clock.Clock
}

func NewChangeLedger(conn *gorm.DB, node *snowflake.Node, clk clock.Clock) quotadomain.ChangeLedger {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &ledgerRepo{db: conn, node: node, clock: clk}
}

func (r *ledgerRepo) Record(ctx context.Context, change *quotadomain.QuotaChange) error {
	if change.ID == 0 {
		change.ID = r.node.Generate()
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = r.clock.Now()
	}
	if len(change.RequestID) > maxRequestIDLength {
		change.RequestID = change.RequestID[:maxRequestIDLength]
	}

	err := r.db.WithContext(ctx).Create(change).Error
	if db.IsDuplicateKeyErr(err) {
		// Replicas sharing a node id can collide; one fresh id is enough.
		change.ID = r.node.Generate()
		err = r.db.WithContext(ctx).Create(change).Error
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// List returns the most recent changes first.
func (r *ledgerRepo) List(ctx context.Context, projectID string, kind quotadomain.ResourceKind, limit int) ([]quotadomain.QuotaChange, error) {
	projectID, err := validateKey(projectID, kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var rows []quotadomain.QuotaChange
	err = r.db.WithContext(ctx).
		Where("project_id = ? AND resource_kind = ?", projectID, kind).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return rows, nil
}
