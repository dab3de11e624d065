package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"nluhub/internal/models"
)

// The get-or-create helpers below take sqlx.ExtContext so they run the same
// way on *sqlx.DB and inside a *sqlx.Tx. The no-op DO UPDATE makes RETURNING
// yield the existing row on conflict.

func getOrCreateIntent(ctx context.Context, q sqlx.ExtContext, versionID int64, text string) (int64, error) {
	var id int64
	query := `
		INSERT INTO repository_intents (repository_version_id, text)
		VALUES ($1, $2)
		ON CONFLICT (repository_version_id, text) DO UPDATE SET text = EXCLUDED.text
		RETURNING id
	`
	if err := sqlx.GetContext(ctx, q, &id, query, versionID, text); err != nil {
		return 0, fmt.Errorf("get or create intent %q: %w", text, err)
	}
	return id, nil
}

func getOrCreateGroup(ctx context.Context, q sqlx.ExtContext, versionID int64, value string) (int64, error) {
	var id int64
	query := `
		INSERT INTO repository_entity_groups (repository_version_id, value)
		VALUES ($1, $2)
		ON CONFLICT (repository_version_id, value) DO UPDATE SET value = EXCLUDED.value
		RETURNING id
	`
	if err := sqlx.GetContext(ctx, q, &id, query, versionID, value); err != nil {
		return 0, fmt.Errorf("get or create group %q: %w", value, err)
	}
	return id, nil
}

func getOrCreateLabel(ctx context.Context, q sqlx.ExtContext, versionID int64, value string) (int64, error) {
	var id int64
	query := `
		INSERT INTO repository_entity_labels (repository_version_id, value)
		VALUES ($1, $2)
		ON CONFLICT (repository_version_id, value) DO UPDATE SET value = EXCLUDED.value
		RETURNING id
	`
	if err := sqlx.GetContext(ctx, q, &id, query, versionID, value); err != nil {
		return 0, fmt.Errorf("get or create label %q: %w", value, err)
	}
	return id, nil
}

// getOrCreateEntity returns the entity id for value. A non-nil groupID or
// labelID is attached to the entity; nil leaves the stored one untouched.
func getOrCreateEntity(ctx context.Context, q sqlx.ExtContext, versionID int64, value string, groupID, labelID *int64) (int64, error) {
	var id int64
	query := `
		INSERT INTO repository_entities (repository_version_id, value, group_id, label_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (repository_version_id, value) DO UPDATE SET
			group_id = COALESCE(EXCLUDED.group_id, repository_entities.group_id),
			label_id = COALESCE(EXCLUDED.label_id, repository_entities.label_id)
		RETURNING id
	`
	if err := sqlx.GetContext(ctx, q, &id, query, versionID, value, groupID, labelID); err != nil {
		return 0, fmt.Errorf("get or create entity %q: %w", value, err)
	}
	return id, nil
}

// resolveSpanEntity interns the label, group and entity of a client span.
func resolveSpanEntity(ctx context.Context, q sqlx.ExtContext, versionID int64, span models.EntitySpanInput) (int64, error) {
	var groupID, labelID *int64
	if span.Group != "" {
		id, err := getOrCreateGroup(ctx, q, versionID, span.Group)
		if err != nil {
			return 0, err
		}
		groupID = &id
	}
	if span.Label != "" {
		id, err := getOrCreateLabel(ctx, q, versionID, span.Label)
		if err != nil {
			return 0, err
		}
		labelID = &id
	}
	return getOrCreateEntity(ctx, q, versionID, span.Entity, groupID, labelID)
}

// getOrCreateVersionLanguage returns the version-language row, creating it
// with the repository's training settings when missing.
func getOrCreateVersionLanguage(ctx context.Context, q sqlx.ExtContext, versionID int64, language string) (*models.VersionLanguage, error) {
	var vl models.VersionLanguage
	query := `
		INSERT INTO repository_version_languages
			(repository_version_id, language, algorithm, use_competing_intents, use_name_entities, use_analyze_char)
		SELECT v.id, $2, r.algorithm, r.use_competing_intents, r.use_name_entities, r.use_analyze_char
		FROM repository_versions v
		JOIN repositories r ON r.uuid = v.repository_uuid
		WHERE v.id = $1
		ON CONFLICT (repository_version_id, language) DO UPDATE SET language = EXCLUDED.language
		RETURNING ` + versionLanguageColumns
	if err := sqlx.GetContext(ctx, q, &vl, query, versionID, language); err != nil {
		return nil, fmt.Errorf("get or create version language %q: %w", language, err)
	}
	return &vl, nil
}
