package review

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusDegraded  = "degraded"
	RunStatusFailed    = "failed"
	RunStatusCanceled  = "canceled"
)

// ReviewRun is the persisted record of one pipeline run.
type ReviewRun struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SourceURL   string         `gorm:"column:source_url;not null;index" json:"source_url"`
	Title       string         `gorm:"column:title" json:"title,omitempty"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Stage       string         `gorm:"column:stage;not null;index" json:"stage"`
	FailedStage string         `gorm:"column:failed_stage" json:"failed_stage,omitempty"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	Distinct    bool           `gorm:"column:distinct_duplicates;not null;default:false" json:"distinct_duplicates"`
	Result      datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt  *time.Time     `gorm:"column:finished_at;index" json:"finished_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ReviewRun) TableName() string { return "review_run" }

// Terminal reports whether the run can no longer change.
func (r *ReviewRun) Terminal() bool {
	if r == nil {
		return false
	}
	switch r.Status {
	case RunStatusSucceeded, RunStatusDegraded, RunStatusFailed, RunStatusCanceled:
		return true
	default:
		return false
	}
}
