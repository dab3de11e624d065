package models

import (
	"time"

	"github.com/google/uuid"
)

type Version struct {
	ID             int64     `db:"id" json:"id"`
	RepositoryUUID uuid.UUID `db:"repository_uuid" json:"repository"`
	Name           string    `db:"name" json:"name"`
	IsDefault      bool      `db:"is_default" json:"is_default"`
	IsDeleted      bool      `db:"is_deleted" json:"is_deleted"`
	CreatedBy      *int64    `db:"created_by" json:"created_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastUpdate     time.Time `db:"last_update" json:"last_update"`
}

// VersionLanguage carries the training state of one language within a version.
type VersionLanguage struct {
	ID                  int64      `db:"id" json:"id"`
	VersionID           int64      `db:"repository_version_id" json:"repository_version"`
	Language            string     `db:"language" json:"language"`
	BotData             string     `db:"bot_data" json:"-"`
	RasaVersion         string     `db:"rasa_version" json:"rasa_version"`
	TrainingStartedAt   *time.Time `db:"training_started_at" json:"training_started_at"`
	TrainingEndAt       *time.Time `db:"training_end_at" json:"training_end_at"`
	FailedAt            *time.Time `db:"failed_at" json:"failed_at"`
	UseAnalyzeChar      bool       `db:"use_analyze_char" json:"use_analyze_char"`
	UseNameEntities     bool       `db:"use_name_entities" json:"use_name_entities"`
	UseCompetingIntents bool       `db:"use_competing_intents" json:"use_competing_intents"`
	Algorithm           string     `db:"algorithm" json:"algorithm"`
	TrainingLog         string     `db:"training_log" json:"training_log"`
	TotalTrainingEnd    int        `db:"total_training_end" json:"total_training_end"`
	LastUpdate          time.Time  `db:"last_update" json:"last_update"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

type CreateVersionInput struct {
	Repository uuid.UUID `json:"repository" binding:"required"`
	ID         int64     `json:"id" binding:"required"` // source version
	Name       string    `json:"name" binding:"required"`
}

type UpdateVersionInput struct {
	Name      *string `json:"name"`
	IsDefault *bool   `json:"is_default"`
}

// CloneJobStatus values of version_clone_jobs.status.
const (
	CloneJobPending = "pending"
	CloneJobRunning = "running"
	CloneJobDone    = "done"
	CloneJobFailed  = "failed"
)

// CloneJob is a queued request to copy a version's content into a new version.
type CloneJob struct {
	ID                   int64      `db:"id" json:"id"`
	DestinationVersionID int64      `db:"destination_version_id" json:"destination_version"`
	SourceVersionID      int64      `db:"source_version_id" json:"source_version"`
	RepositoryUUID       uuid.UUID  `db:"repository_uuid" json:"repository"`
	Status               string     `db:"status" json:"status"`
	Error                *string    `db:"error" json:"error,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	StartedAt            *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt           *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}
