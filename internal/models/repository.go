package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AlgorithmNeuralNetworkInternal = "neural_network_internal"
	AlgorithmNeuralNetworkExternal = "neural_network_external"
	AlgorithmTransformerNetwork    = "transformer_network_diet"
	AlgorithmTransformerBert       = "transformer_network_diet_bert"
)

var Algorithms = []string{
	AlgorithmNeuralNetworkInternal,
	AlgorithmNeuralNetworkExternal,
	AlgorithmTransformerNetwork,
	AlgorithmTransformerBert,
}

// Repository is a user's NLU bot.
type Repository struct {
	UUID                uuid.UUID `db:"uuid" json:"uuid"`
	OwnerID             int64     `db:"owner_id" json:"owner"`
	OwnerNickname       string    `db:"owner_nickname" json:"owner__nickname"`
	Name                string    `db:"name" json:"name"`
	Slug                string    `db:"slug" json:"slug"`
	Description         string    `db:"description" json:"description"`
	Language            string    `db:"language" json:"language"`
	IsPrivate           bool      `db:"is_private" json:"is_private"`
	Algorithm           string    `db:"algorithm" json:"algorithm"`
	UseCompetingIntents bool      `db:"use_competing_intents" json:"use_competing_intents"`
	UseNameEntities     bool      `db:"use_name_entities" json:"use_name_entities"`
	UseAnalyzeChar      bool      `db:"use_analyze_char" json:"use_analyze_char"`
	CountAuthorizations int       `db:"count_authorizations" json:"count_authorizations"`
	NLPServer           *string   `db:"nlp_server" json:"nlp_server,omitempty"`
	VotesCount          int       `db:"votes_count" json:"votes_count"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Icon string `db:"icon" json:"icon"`
}

type Vote struct {
	UserID         int64     `db:"user_id" json:"user"`
	UserNickname   string    `db:"user_nickname" json:"user__nickname"`
	RepositoryUUID uuid.UUID `db:"repository_uuid" json:"repository"`
	CreatedAt      time.Time `db:"created_at" json:"created"`
}

type CreateRepositoryInput struct {
	Name                string  `json:"name" binding:"required"`
	Slug                string  `json:"slug"`
	Description         string  `json:"description"`
	Language            string  `json:"language" binding:"required"`
	IsPrivate           bool    `json:"is_private"`
	Algorithm           string  `json:"algorithm"`
	UseCompetingIntents bool    `json:"use_competing_intents"`
	UseNameEntities     bool    `json:"use_name_entities"`
	UseAnalyzeChar      bool    `json:"use_analyze_char"`
	Categories          []int64 `json:"categories"`
	NLPServer           *string `json:"nlp_server"`
}

type UpdateRepositoryInput struct {
	Name                *string  `json:"name"`
	Description         *string  `json:"description"`
	Language            *string  `json:"language"`
	IsPrivate           *bool    `json:"is_private"`
	Algorithm           *string  `json:"algorithm"`
	UseCompetingIntents *bool    `json:"use_competing_intents"`
	UseNameEntities     *bool    `json:"use_name_entities"`
	UseAnalyzeChar      *bool    `json:"use_analyze_char"`
	Categories          *[]int64 `json:"categories"`
	NLPServer           *string  `json:"nlp_server"`
}

type VoteInput struct {
	Repository uuid.UUID `json:"repository" binding:"required"`
}

// LanguageStatus summarizes one language of a repository's default version.
type LanguageStatus struct {
	Language          string     `db:"language" json:"language"`
	ExamplesCount     int        `db:"examples_count" json:"examples_count"`
	TranslationsCount int        `db:"translations_count" json:"translations_count"`
	EvaluationsCount  int        `db:"evaluations_count" json:"evaluations_count"`
	IntentsCount      int        `db:"intents_count" json:"intents_count"`
	IsBaseLanguage    bool       `db:"-" json:"is_base_language"`
	TrainingEndAt     *time.Time `db:"training_end_at" json:"training_end_at"`
	FailedAt          *time.Time `db:"failed_at" json:"failed_at"`
	ReadyForTrain     bool       `db:"-" json:"ready_for_train"`
}
