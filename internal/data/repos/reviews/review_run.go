package reviews

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/platform/dbctx"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

var terminalStatuses = []string{
	review.RunStatusSucceeded,
	review.RunStatusDegraded,
	review.RunStatusFailed,
	review.RunStatusCanceled,
}

// Outcome is the final state written when a run stops.
type Outcome struct {
	Status      string
	Stage       string
	FailedStage string
	Error       string
	Title       string
	Result      datatypes.JSON
	FinishedAt  time.Time
}

type ReviewRunRepo interface {
	Create(dbc dbctx.Context, run *review.ReviewRun) (*review.ReviewRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*review.ReviewRun, error)
	ListRecent(dbc dbctx.Context, limit int) ([]*review.ReviewRun, error)
	MarkStarted(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	UpdateStage(dbc dbctx.Context, id uuid.UUID, stage string) (bool, error)
	Finish(dbc dbctx.Context, id uuid.UUID, out Outcome) (bool, error)
	FailInterrupted(dbc dbctx.Context, reason string) (int64, error)
}

type reviewRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewRunRepo(db *gorm.DB, baseLog *logger.Logger) ReviewRunRepo {
	return &reviewRunRepo{
		db:  db,
		log: baseLog.With("repo", "ReviewRunRepo"),
	}
}

func (r *reviewRunRepo) Create(dbc dbctx.Context, run *review.ReviewRun) (*review.ReviewRun, error) {
	if run == nil {
		return nil, errors.New("review run is nil")
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = review.RunStatusQueued
	}
	if run.Stage == "" {
		run.Stage = "idle"
	}
	if err := dbc.DB(r.db).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *reviewRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*review.ReviewRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run review.ReviewRun
	err := dbc.DB(r.db).
		Where("id = ?", id).
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *reviewRunRepo) ListRecent(dbc dbctx.Context, limit int) ([]*review.ReviewRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	out := []*review.ReviewRun{}
	if err := dbc.DB(r.db).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reviewRunRepo) MarkStarted(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	return dbc.DB(r.db).Model(&review.ReviewRun{}).
		Where("id = ? AND status = ?", id, review.RunStatusQueued).
		Updates(map[string]interface{}{
			"status":     review.RunStatusRunning,
			"started_at": at,
			"updated_at": time.Now(),
		}).Error
}

// UpdateStage records the current stage unless the run already finished.
func (r *reviewRunRepo) UpdateStage(dbc dbctx.Context, id uuid.UUID, stage string) (bool, error) {
	res := dbc.DB(r.db).Model(&review.ReviewRun{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(map[string]interface{}{
			"stage":      stage,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Finish writes the outcome once. A run that is already terminal is left alone.
func (r *reviewRunRepo) Finish(dbc dbctx.Context, id uuid.UUID, out Outcome) (bool, error) {
	finished := out.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	updates := map[string]interface{}{
		"status":       out.Status,
		"stage":        out.Stage,
		"failed_stage": out.FailedStage,
		"error":        out.Error,
		"finished_at":  finished,
		"updated_at":   time.Now(),
	}
	if out.Title != "" {
		updates["title"] = out.Title
	}
	if len(out.Result) > 0 {
		updates["result"] = out.Result
	}
	res := dbc.DB(r.db).Model(&review.ReviewRun{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FailInterrupted fails runs left queued or running by a previous process.
func (r *reviewRunRepo) FailInterrupted(dbc dbctx.Context, reason string) (int64, error) {
	now := time.Now()
	res := dbc.DB(r.db).Model(&review.ReviewRun{}).
		Where("status IN ?", []string{review.RunStatusQueued, review.RunStatusRunning}).
		Updates(map[string]interface{}{
			"status":      review.RunStatusFailed,
			"error":       reason,
			"finished_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Warn("failed interrupted review runs", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
