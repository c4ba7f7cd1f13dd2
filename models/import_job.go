package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Import job statuses. pending -> processing -> completed | failed; terminal
// states are never left.
const (
	ImportStatusPending    = "pending"
	ImportStatusProcessing = "processing"
	ImportStatusCompleted  = "completed"
	ImportStatusFailed     = "failed"
)

// ImportJob tracks an asynchronous bulk-ingestion run over an uploaded file.
// Only the import worker mutates a job after creation.
type ImportJob struct {
	gorm.Model

	FileName string `gorm:"not null" json:"file_name"`
	FilePath string `gorm:"not null" json:"-"`
	Status   string `gorm:"default:'pending';index" json:"status"`

	// Progress counters. ProcessedRows is monotonically non-decreasing as
	// observed by any poller.
	TotalRows     int `gorm:"default:0" json:"total_rows"`
	ProcessedRows int `gorm:"default:0" json:"processed_rows"`
	SuccessCount  int `gorm:"default:0" json:"success_count"`
	ErrorCount    int `gorm:"default:0" json:"error_count"`
	SkippedCount  int `gorm:"default:0" json:"skipped_count"` // duplicate rows within the same file

	ErrorsLog     datatypes.JSON `json:"errors_log"`
	ColumnMapping datatypes.JSON `json:"column_mapping"` // file header -> canonical field

	// Applied to every contact the run creates or updates.
	AutoTags []Tag `gorm:"many2many:import_job_tags;" json:"auto_tags,omitempty"`

	// Sets whatsapp_opt_in on contacts created by this run.
	OptIn bool `gorm:"default:false" json:"opt_in"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedBy   uint       `gorm:"index" json:"created_by"`
}

// ImportRowError is one entry in the job's row-level error log.
type ImportRowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Progress returns the completion percentage.
func (j *ImportJob) Progress() float64 {
	if j.TotalRows == 0 {
		return 0
	}
	return float64(j.ProcessedRows) / float64(j.TotalRows) * 100
}

// IsTerminal reports whether the job reached a final state.
func (j *ImportJob) IsTerminal() bool {
	return j.Status == ImportStatusCompleted || j.Status == ImportStatusFailed
}

// DurationSeconds returns how long the run took, or -1 before it started.
func (j *ImportJob) DurationSeconds() int {
	if j.StartedAt == nil {
		return -1
	}
	end := time.Now()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return int(end.Sub(*j.StartedAt).Seconds())
}

// RowErrors decodes the stored error log.
func (j *ImportJob) RowErrors() []ImportRowError {
	var errs []ImportRowError
	if len(j.ErrorsLog) > 0 {
		_ = json.Unmarshal(j.ErrorsLog, &errs)
	}
	return errs
}

// MarkProcessing claims the job for the worker. Only pending jobs can be
// claimed; the row count in the result tells the caller whether it won.
func (j *ImportJob) MarkProcessing(db *gorm.DB) (bool, error) {
	now := time.Now()
	result := db.Model(&ImportJob{}).
		Where("id = ? AND status = ?", j.ID, ImportStatusPending).
		Updates(map[string]interface{}{
			"status":     ImportStatusProcessing,
			"started_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	j.Status = ImportStatusProcessing
	j.StartedAt = &now
	return true, nil
}

// MarkCompleted finishes the job. A high per-row error rate is still a
// completed run; only pipeline-level faults fail a job.
func (j *ImportJob) MarkCompleted(db *gorm.DB) error {
	now := time.Now()
	j.Status = ImportStatusCompleted
	j.CompletedAt = &now
	return db.Model(&ImportJob{}).Where("id = ?", j.ID).Updates(map[string]interface{}{
		"status":       ImportStatusCompleted,
		"completed_at": now,
	}).Error
}

// MarkFailed records a pipeline-level fault and stops the run.
func (j *ImportJob) MarkFailed(db *gorm.DB, message string) error {
	now := time.Now()
	log := j.RowErrors()
	log = append(log, ImportRowError{Row: 0, Field: "", Message: message})
	encoded, _ := json.Marshal(log)

	j.Status = ImportStatusFailed
	j.CompletedAt = &now
	j.ErrorsLog = encoded
	return db.Model(&ImportJob{}).Where("id = ?", j.ID).Updates(map[string]interface{}{
		"status":       ImportStatusFailed,
		"completed_at": now,
		"errors_log":   datatypes.JSON(encoded),
	}).Error
}
