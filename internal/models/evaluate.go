package models

import "time"

// Evaluate is a held-out phrase used to score a trained model.
type Evaluate struct {
	ID                int64            `db:"id" json:"id"`
	VersionLanguageID int64            `db:"repository_version_language_id" json:"-"`
	Language          string           `db:"language" json:"language"`
	Text              string           `db:"text" json:"text"`
	Intent            string           `db:"intent" json:"intent"`
	DeletedIn         DeletionState    `db:"deleted_in" json:"deleted_in"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	Entities          []EvaluateEntity `db:"-" json:"entities"`
}

type EvaluateEntity struct {
	ID         int64     `db:"id" json:"id"`
	EvaluateID int64     `db:"repository_evaluate_id" json:"-"`
	Start      int       `db:"start" json:"start"`
	End        int       `db:"end" json:"end"`
	EntityID   int64     `db:"entity_id" json:"-"`
	Entity     string    `db:"entity_value" json:"entity"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type CreateEvaluateInput struct {
	Repository string            `json:"repository"`
	Language   string            `json:"language"`
	Text       string            `json:"text"`
	Intent     string            `json:"intent"`
	Entities   []EntitySpanInput `json:"entities"`
}

type UpdateEvaluateInput struct {
	Text     *string            `json:"text"`
	Intent   *string            `json:"intent"`
	Entities *[]EntitySpanInput `json:"entities"`
}
