package models

import (
	"time"

	"gorm.io/datatypes"
)

// PipelineRun protokolliert einen Lauf der Popularity-Pipeline. Die
// Periodendetails liegen als JSON vor, damit das Schema bei geänderten
// Lookback-Fenstern stabil bleibt.
type PipelineRun struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`

	TagsProcessed   int `json:"tags_processed"`
	SnapshotsPruned int `json:"snapshots_pruned"`

	Status      string         `json:"status" gorm:"index;default:'completed'"` // completed, failed
	ErrorDetail string         `json:"error_detail,omitempty" gorm:"type:text"`
	Periods     datatypes.JSON `json:"periods" gorm:"type:jsonb"`
}

// TableName gibt explizit den Tabellennamen an.
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}
