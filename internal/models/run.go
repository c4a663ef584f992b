package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the status of a sync run
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// RunProgress tracks the progress of a sync run. Fraction is the clamped
// [0,1] value reported to the progress sink.
type RunProgress struct {
	TotalItems     int     `json:"totalItems"`
	ProcessedItems int     `json:"processedItems"`
	UpdatedItems   int     `json:"updatedItems"`
	CreatedItems   int     `json:"createdItems"`
	FailedItems    int     `json:"failedItems"`
	Fraction       float64 `json:"fraction"`
}

// SyncRun represents one catalog synchronization run
type SyncRun struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`

	// Input
	SourceFilename string `gorm:"type:varchar(500)" json:"sourceFilename,omitempty"`
	RecordCount    int    `gorm:"default:0" json:"recordCount"`

	// Plan summary
	MatchedCount   int `gorm:"default:0" json:"matchedCount"`
	UnmatchedCount int `gorm:"default:0" json:"unmatchedCount"`

	// Status
	Status RunStatus `gorm:"type:varchar(50);not null;default:'PENDING';index:idx_sync_runs_status" json:"status"`

	// Progress tracking
	Progress JSONB `gorm:"type:jsonb;default:'{\"totalItems\":0,\"processedItems\":0,\"updatedItems\":0,\"createdItems\":0,\"failedItems\":0,\"fraction\":0}'" json:"progress"`

	// Final counts
	UpdatedCount int `gorm:"default:0" json:"updatedCount"`
	CreatedCount int `gorm:"default:0" json:"createdCount"`
	FailedCount  int `gorm:"default:0" json:"failedCount"`

	// Error tracking
	ErrorMessage string `gorm:"type:text" json:"errorMessage,omitempty"`

	// Timing
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	// Relationships
	Logs []SyncRunLog `gorm:"foreignKey:RunID" json:"logs,omitempty"`
}

// TableName specifies the table name for SyncRun
func (SyncRun) TableName() string {
	return "catalog_sync_runs"
}

// GetProgress returns the run progress as a structured object
func (r *SyncRun) GetProgress() *RunProgress {
	progress := &RunProgress{}
	if r.Progress != nil {
		if v, ok := r.Progress["totalItems"].(float64); ok {
			progress.TotalItems = int(v)
		}
		if v, ok := r.Progress["processedItems"].(float64); ok {
			progress.ProcessedItems = int(v)
		}
		if v, ok := r.Progress["updatedItems"].(float64); ok {
			progress.UpdatedItems = int(v)
		}
		if v, ok := r.Progress["createdItems"].(float64); ok {
			progress.CreatedItems = int(v)
		}
		if v, ok := r.Progress["failedItems"].(float64); ok {
			progress.FailedItems = int(v)
		}
		if v, ok := r.Progress["fraction"].(float64); ok {
			progress.Fraction = v
		}
	}
	return progress
}

// SetProgress sets the run progress from a structured object
func (r *SyncRun) SetProgress(progress *RunProgress) {
	r.Progress = JSONB{
		"totalItems":     progress.TotalItems,
		"processedItems": progress.ProcessedItems,
		"updatedItems":   progress.UpdatedItems,
		"createdItems":   progress.CreatedItems,
		"failedItems":    progress.FailedItems,
		"fraction":       progress.Fraction,
	}
}

// LogLevel represents the severity level of a run log entry
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// SyncRunLog represents a log entry for a sync run. Per-record apply
// failures land here so the caller can surface "N failed, see log".
type SyncRunLog struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RunID uuid.UUID `gorm:"type:uuid;not null;index:idx_sync_run_logs_run" json:"runId"`

	Level   LogLevel `gorm:"type:varchar(20);not null;default:'info';index:idx_sync_run_logs_level" json:"level"`
	Message string   `gorm:"type:text;not null" json:"message"`
	Data    JSONB    `gorm:"type:jsonb;default:'{}'" json:"data,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName specifies the table name for SyncRunLog
func (SyncRunLog) TableName() string {
	return "catalog_sync_run_logs"
}
