package models

import "time"

// TranslatedExample is an example's text rendered in another language.
type TranslatedExample struct {
	ID                int64                     `db:"id" json:"id"`
	OriginalExampleID int64                     `db:"original_example_id" json:"original_example"`
	VersionLanguageID int64                     `db:"repository_version_language_id" json:"-"`
	FromLanguage      string                    `db:"from_language" json:"from_language"`
	Language          string                    `db:"language" json:"language"`
	Text              string                    `db:"text" json:"text"`
	CloneRepository   bool                      `db:"clone_repository" json:"-"`
	HasValidEntities  bool                      `db:"has_valid_entities" json:"has_valid_entities"`
	CreatedAt         time.Time                 `db:"created_at" json:"created_at"`
	Entities          []TranslatedExampleEntity `db:"-" json:"entities"`
}

type TranslatedExampleEntity struct {
	ID                  int64     `db:"id" json:"id"`
	TranslatedExampleID int64     `db:"repository_translated_example_id" json:"-"`
	Start               int       `db:"start" json:"start"`
	End                 int       `db:"end" json:"end"`
	EntityID            int64     `db:"entity_id" json:"-"`
	Entity              string    `db:"entity_value" json:"entity"`
	Label               *string   `db:"label_value" json:"label,omitempty"`
	Group               *string   `db:"group_value" json:"group,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

type CreateTranslationInput struct {
	OriginalExample int64             `json:"original_example"`
	Language        string            `json:"language"`
	Text            string            `json:"text"`
	Entities        []EntitySpanInput `json:"entities"`
}

type UpdateTranslationInput struct {
	Text     *string            `json:"text"`
	Entities *[]EntitySpanInput `json:"entities"`
}
