package models

import "time"

type Intent struct {
	ID        int64     `db:"id" json:"id"`
	VersionID int64     `db:"repository_version_id" json:"repository_version"`
	Text      string    `db:"text" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type EntityGroup struct {
	ID        int64  `db:"id" json:"id"`
	VersionID int64  `db:"repository_version_id" json:"repository_version"`
	Value     string `db:"value" json:"value"`
}

type EntityLabel struct {
	ID        int64  `db:"id" json:"id"`
	VersionID int64  `db:"repository_version_id" json:"repository_version"`
	Value     string `db:"value" json:"value"`
}

type Entity struct {
	ID         int64   `db:"id" json:"id"`
	VersionID  int64   `db:"repository_version_id" json:"repository_version"`
	Value      string  `db:"value" json:"value"`
	GroupID    *int64  `db:"group_id" json:"group_id"`
	GroupValue *string `db:"group_value" json:"group,omitempty"`
	LabelID    *int64  `db:"label_id" json:"label_id"`
	LabelValue *string `db:"label_value" json:"label,omitempty"`
}

// Example is a labeled training sentence in one version-language.
type Example struct {
	ID                int64           `db:"id" json:"id"`
	VersionLanguageID int64           `db:"repository_version_language_id" json:"repository_version_language"`
	VersionID         int64           `db:"repository_version_id" json:"repository_version"`
	Language          string          `db:"language" json:"language"`
	Text              string          `db:"text" json:"text"`
	IntentID          *int64          `db:"intent_id" json:"-"`
	Intent            *string         `db:"intent_text" json:"intent"`
	DeletedIn         DeletionState   `db:"deleted_in" json:"deleted_in"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	LastUpdate        time.Time       `db:"last_update" json:"last_update"`
	Entities          []ExampleEntity `db:"-" json:"entities"`
}

// ExampleEntity is an entity span [Start, End) inside an example's text.
type ExampleEntity struct {
	ID        int64     `db:"id" json:"id"`
	ExampleID int64     `db:"repository_example_id" json:"-"`
	Start     int       `db:"start" json:"start"`
	End       int       `db:"end" json:"end"`
	EntityID  int64     `db:"entity_id" json:"-"`
	Entity    string    `db:"entity_value" json:"entity"`
	Label     *string   `db:"label_value" json:"label,omitempty"`
	Group     *string   `db:"group_value" json:"group,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EntitySpanInput is an entity annotation as submitted by clients.
type EntitySpanInput struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Entity string `json:"entity"`
	Label  string `json:"label,omitempty"`
	Group  string `json:"group,omitempty"`
}

type CreateExampleInput struct {
	Repository        string            `json:"repository"`
	RepositoryVersion *int64            `json:"repository_version"`
	Text              string            `json:"text"`
	Language          string            `json:"language"`
	Intent            string            `json:"intent"`
	Entities          []EntitySpanInput `json:"entities"`
}

type UpdateExampleInput struct {
	Text     *string            `json:"text"`
	Intent   *string            `json:"intent"`
	Entities *[]EntitySpanInput `json:"entities"`
}

// UploadResult is the reply of the bulk example upload.
type UploadResult struct {
	Added          int                  `json:"added"`
	NotAdded       []CreateExampleInput `json:"not_added"`
	NotAddedErrors []UploadItemError    `json:"not_added_errors"`
}

type UploadItemError struct {
	Index  int                 `json:"index"`
	Errors map[string][]string `json:"errors"`
}
