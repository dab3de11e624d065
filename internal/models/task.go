package models

import (
	"encoding/json"
	"time"
)

// Queue task status values as reported by the NLP service.
const (
	TaskStatusPending  = 0
	TaskStatusSuccess  = 1
	TaskStatusFailed   = 2
	TaskStatusTraining = 3
)

// Queues a task may be tracked in.
const (
	QueueCelery     = 0
	QueueAIPlatform = 1
)

const (
	ProcessingTypeTraining   = 0
	ProcessingTypeEvaluating = 1
)

// QueueTask tracks an asynchronous NLP job for a version-language.
type QueueTask struct {
	ID                int64      `db:"id" json:"id"`
	VersionLanguageID int64      `db:"repository_version_language_id" json:"repository_version"`
	IDQueue           string     `db:"id_queue" json:"id_queue"`
	FromQueue         int        `db:"from_queue" json:"from_queue"`
	Status            int        `db:"status" json:"status"`
	MLUnits           float64    `db:"ml_units" json:"ml_units"`
	TypeProcessing    int        `db:"type_processing" json:"type_processing"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	EndTraining       *time.Time `db:"end_training" json:"end_training"`
}

type CreateQueueTaskInput struct {
	RepositoryVersionLanguage int64  `json:"repository_version" binding:"required"`
	IDQueue                   string `json:"task_id" binding:"required"`
	FromQueue                 int    `json:"from_queue"`
	TypeProcessing            int    `json:"type_processing"`
}

// NLPLog is one prediction served by the NLP service.
type NLPLog struct {
	ID                int64           `db:"id" json:"id"`
	VersionLanguageID int64           `db:"repository_version_language_id" json:"repository_version_language"`
	UserID            *int64          `db:"user_id" json:"user"`
	Text              string          `db:"text" json:"text"`
	UserAgent         string          `db:"user_agent" json:"user_agent"`
	FromBackend       bool            `db:"from_backend" json:"from_backend"`
	Log               json.RawMessage `db:"nlp_log" json:"nlp_log"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

type CreateNLPLogInput struct {
	RepositoryVersionLanguage int64           `json:"repository_version_language" binding:"required"`
	User                      *int64          `json:"user"`
	Text                      string          `json:"text" binding:"required"`
	UserAgent                 string          `json:"user_agent"`
	FromBackend               bool            `json:"from_backend"`
	Log                       json.RawMessage `json:"nlp_log"`
}

type TrainInput struct {
	Language string `json:"language"`
}

type AnalyzeInput struct {
	Language string `json:"language"`
	Text     string `json:"text" binding:"required"`
}

// TrainingResultInput is posted by the NLP service when a training ends.
type TrainingResultInput struct {
	Failed      bool   `json:"failed"`
	BotData     string `json:"bot_data"`
	RasaVersion string `json:"rasa_version"`
	TrainingLog string `json:"training_log"`
}
