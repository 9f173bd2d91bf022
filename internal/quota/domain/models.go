// Package domain contains quota records, admission types and the error
// taxonomy shared by every quota backend.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// QuotaRecord stores the configured limit for one (project, kind) pair.
type QuotaRecord struct {
	ProjectID    string       `gorm:"primaryKey;type:varchar(255)"`
	ResourceKind ResourceKind `gorm:"primaryKey;type:varchar(64)"`
	Limit        int64        `gorm:"column:limit_value;not null"`
	UpdatedAt    time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (QuotaRecord) TableName() string { return "project_quotas" }

// QuotaChange is an append-only ledger entry written after a limit update.
type QuotaChange struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID     string       `gorm:"type:varchar(255);not null;index:idx_quota_changes_project_kind" json:"project_id"`
	ResourceKind  ResourceKind `gorm:"type:varchar(64);not null;index:idx_quota_changes_project_kind" json:"kind"`
	PreviousLimit *int64       `json:"previous_limit"`
	NewLimit      int64        `gorm:"not null" json:"new_limit"`
	Backend       string       `gorm:"type:varchar(32);not null" json:"backend"`
	RequestID     string       `gorm:"type:varchar(128)" json:"request_id,omitempty"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (QuotaChange) TableName() string { return "quota_changes" }

// LimitSource tells whether a limit came from a stored record or a default.
type LimitSource string

const (
	LimitSourceStored  LimitSource = "stored"
	LimitSourceDefault LimitSource = "default"
)

type Quota struct {
	ProjectID string       `json:"project_id"`
	Kind      ResourceKind `json:"kind"`
	Unit      string       `json:"unit"`
	Limit     int64        `json:"limit"`
	Source    LimitSource  `json:"source"`
}

type Usage struct {
	ProjectID string       `json:"project_id"`
	Kind      ResourceKind `json:"kind"`
	Unit      string       `json:"unit"`
	Usage     int64        `json:"usage"`
}

type Expiration struct {
	ProjectID string `json:"project_id"`
	ExpiresOn string `json:"expires_on"`
}

// DenyReasonQuotaExceeded is the only deny reason produced by admission.
const DenyReasonQuotaExceeded = "quota exceeded"

// Decision is the outcome of an admission check. It is only produced when
// both the limit and the live usage were read successfully.
type Decision struct {
	ProjectID   string       `json:"project_id"`
	Kind        ResourceKind `json:"kind"`
	Admitted    bool         `json:"admitted"`
	Reason      string       `json:"reason,omitempty"`
	Usage       int64        `json:"usage"`
	Limit       int64        `json:"limit"`
	Requested   int64        `json:"requested"`
	LimitSource LimitSource  `json:"limit_source"`
}

// LimitChange reports what a SetLimit call replaced.
type LimitChange struct {
	Previous *int64
	Backend  string
}
