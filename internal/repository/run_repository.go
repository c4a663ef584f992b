package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"catalog-sync-service/internal/models"
)

// RunRepository handles database operations for sync runs
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun creates a new sync run
func (r *RunRepository) CreateRun(ctx context.Context, run *models.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetRunByID retrieves a sync run by ID
func (r *RunRepository) GetRunByID(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	var run models.SyncRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateRun updates an existing sync run
func (r *RunRepository) UpdateRun(ctx context.Context, run *models.SyncRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// UpdateRunStatus updates the run status, stamping completion time on
// terminal states
func (r *RunRepository) UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
		"updated_at":    time.Now(),
	}
	if status == models.RunStatusCompleted || status == models.RunStatusFailed || status == models.RunStatusCancelled {
		now := time.Now()
		updates["completed_at"] = &now
	}
	return r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateRunProgress updates the run progress
func (r *RunRepository) UpdateRunProgress(ctx context.Context, id uuid.UUID, progress *models.RunProgress) error {
	progressJSON := models.JSONB{
		"totalItems":     progress.TotalItems,
		"processedItems": progress.ProcessedItems,
		"updatedItems":   progress.UpdatedItems,
		"createdItems":   progress.CreatedItems,
		"failedItems":    progress.FailedItems,
		"fraction":       progress.Fraction,
	}
	return r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ?", id).
		Update("progress", progressJSON).Error
}

// UpdateRunCounts records the final apply counts
func (r *RunRepository) UpdateRunCounts(ctx context.Context, id uuid.UUID, result *models.ApplyResult) error {
	return r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"updated_count": result.UpdatedCount,
			"created_count": result.CreatedCount,
			"failed_count":  result.FailedCount,
			"updated_at":    time.Now(),
		}).Error
}

// RunListOptions controls run listing
type RunListOptions struct {
	Status models.RunStatus
	Limit  int
	Offset int
}

// ListRuns retrieves sync runs with pagination and filtering
func (r *RunRepository) ListRuns(ctx context.Context, opts RunListOptions) ([]models.SyncRun, int64, error) {
	var runs []models.SyncRun
	var total int64

	query := r.db.WithContext(ctx).Model(&models.SyncRun{})
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	if err := query.Order("created_at DESC").Find(&runs).Error; err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// CreateLog creates a run log entry
func (r *RunRepository) CreateLog(ctx context.Context, log *models.SyncRunLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// LogListOptions controls log listing
type LogListOptions struct {
	Level models.LogLevel
	Limit int
}

// GetRunLogs retrieves logs for a sync run
func (r *RunRepository) GetRunLogs(ctx context.Context, runID uuid.UUID, opts LogListOptions) ([]models.SyncRunLog, error) {
	var logs []models.SyncRunLog

	query := r.db.WithContext(ctx).Where("run_id = ?", runID)
	if opts.Level != "" {
		query = query.Where("level = ?", opts.Level)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	if err := query.Order("created_at ASC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
