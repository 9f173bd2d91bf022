package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/quotaledger/internal/clock"
	expirationdomain "github.com/smallbiznis/quotaledger/internal/expiration/domain"
	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const BackendDatabase = "database"

type dbRegistry struct {
	db      *gorm.DB
	clock   clock.Clock
	metrics *obsmetrics.BackendMetrics
}

// NewDBRegistry stores expiration dates in project_expirations; Set is a
// single upsert on project_id.
func NewDBRegistry(db *gorm.DB, clk clock.Clock, metrics *obsmetrics.BackendMetrics) expirationdomain.Registry {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &dbRegistry{db: db, clock: clk, metrics: metrics}
}

func (r *dbRegistry) Get(ctx context.Context, projectID string) (date string, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveCall(BackendDatabase, "expiration_get", start, err) }()

	projectID, err = quotadomain.NormalizeProjectID(projectID)
	if err != nil {
		return "", err
	}

	var rec expirationdomain.ExpirationRecord
	err = r.db.WithContext(ctx).Where("project_id = ?", projectID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", quotadomain.ErrNotFound
	}
	if err != nil {
		return "", dbUnavailable(err)
	}
	return rec.ExpiresOn, nil
}

func (r *dbRegistry) GetAll(ctx context.Context) (records map[string]string, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveCall(BackendDatabase, "expiration_list", start, err) }()

	var rows []expirationdomain.ExpirationRecord
	if err := r.db.WithContext(ctx).Order("project_id ASC").Find(&rows).Error; err != nil {
		return nil, dbUnavailable(err)
	}
	records = make(map[string]string, len(rows))
	for _, row := range rows {
		records[row.ProjectID] = row.ExpiresOn
	}
	return records, nil
}

func (r *dbRegistry) Set(ctx context.Context, projectID, date string) (err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveCall(BackendDatabase, "expiration_set", start, err) }()

	projectID, err = quotadomain.NormalizeProjectID(projectID)
	if err != nil {
		return err
	}
	date, err = quotadomain.NormalizeDate(date)
	if err != nil {
		return err
	}

	rec := expirationdomain.ExpirationRecord{
		ProjectID: projectID,
		ExpiresOn: date,
		UpdatedAt: r.clock.Now(),
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_on", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return dbUnavailable(err)
	}
	return nil
}

func dbUnavailable(err error) error {
	return fmt.Errorf("%w: expiration database: %v", quotadomain.ErrBackendUnavailable, err)
}
