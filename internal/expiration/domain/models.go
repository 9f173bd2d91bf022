// Package domain defines the expiration registry contract and its
// database record.
package domain

import (
	"context"
	"time"
)

// Registry records at most one expiration date per project. Dates are
// YYYY-MM-DD strings. Get returns quota domain ErrNotFound for unknown
// projects.
type Registry interface {
	Get(ctx context.Context, projectID string) (string, error)
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, projectID, date string) error
}

// ExpirationRecord is the database form of one registry entry.
type ExpirationRecord struct {
	ProjectID string    `gorm:"primaryKey;type:varchar(255)"`
	ExpiresOn string    `gorm:"type:varchar(10);not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (ExpirationRecord) TableName() string { return "project_expirations" }
