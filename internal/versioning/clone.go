// Package versioning copies the content of a repository version into a new
// version.
package versioning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nluhub/internal/models"
)

// Store is the persistence the cloner walks and writes through.
type Store interface {
	ListVersionLanguages(ctx context.Context, versionID int64) ([]*models.VersionLanguage, error)
	// CreateVersionLanguage copies training metadata and the artifact
	// reference of src under the destination version.
	CreateVersionLanguage(ctx context.Context, destVersionID int64, src *models.VersionLanguage) (*models.VersionLanguage, error)
	GetOrCreateVersionLanguage(ctx context.Context, versionID int64, language string) (*models.VersionLanguage, error)

	// ListExamples returns every example of the version-language, deleted
	// ones included, with spans resolved to entity, label and group values.
	ListExamples(ctx context.Context, versionLanguageID int64) ([]*models.Example, error)
	ListTranslations(ctx context.Context, exampleID int64) ([]*models.TranslatedExample, error)
	ListEvaluates(ctx context.Context, versionLanguageID int64) ([]*models.Evaluate, error)

	InternIntent(ctx context.Context, versionID int64, text string) (int64, error)
	InternGroup(ctx context.Context, versionID int64, value string) (int64, error)
	InternLabel(ctx context.Context, versionID int64, value string) (int64, error)
	InternEntity(ctx context.Context, versionID int64, value string, groupID, labelID *int64) (int64, error)

	CreateExample(ctx context.Context, example *models.Example) error
	CreateExampleEntity(ctx context.Context, span *models.ExampleEntity) error
	CreateTranslation(ctx context.Context, translation *models.TranslatedExample) error
	CreateTranslationEntity(ctx context.Context, span *models.TranslatedExampleEntity) error
	CreateEvaluate(ctx context.Context, evaluate *models.Evaluate) error
	CreateEvaluateEntity(ctx context.Context, span *models.EvaluateEntity) error

	MarkVersionReady(ctx context.Context, versionID int64) error
}

// TxStore is a Store that can also run a function inside one transaction.
type TxStore interface {
	Store
	InTx(ctx context.Context, fn func(Store) error) error
}

// Cloner runs version clones. With atomic set the whole traversal commits
// or rolls back as a unit; otherwise every row is committed as it is written.
type Cloner struct {
	store  TxStore
	atomic bool
	logger *zap.Logger
}

func NewCloner(store TxStore, atomic bool, logger *zap.Logger) *Cloner {
	return &Cloner{store: store, atomic: atomic, logger: logger}
}

// Clone copies the source version into the destination version and marks
// the destination ready.
func (c *Cloner) Clone(ctx context.Context, sourceVersionID, destVersionID int64) error {
	c.logger.Info("Cloning version",
		zap.Int64("source_version_id", sourceVersionID),
		zap.Int64("destination_version_id", destVersionID),
		zap.Bool("atomic", c.atomic))

	run := func(s Store) error {
		r := newRun(s, destVersionID)
		if err := r.copyVersion(ctx, sourceVersionID); err != nil {
			return err
		}
		return s.MarkVersionReady(ctx, destVersionID)
	}

	var err error
	if c.atomic {
		err = c.store.InTx(ctx, run)
	} else {
		err = run(c.store)
	}
	if err != nil {
		return fmt.Errorf("clone version %d into %d: %w", sourceVersionID, destVersionID, err)
	}
	return nil
}

type internKey struct {
	versionID int64
	value     string
}

type internTable map[internKey]int64

// run holds the state of a single clone traversal.
type run struct {
	store    Store
	dest     int64
	intents  internTable
	groups   internTable
	labels   internTable
	entities internTable
	// destination version-language per language code
	languages map[string]*models.VersionLanguage
}

func newRun(store Store, dest int64) *run {
	return &run{
		store:     store,
		dest:      dest,
		intents:   internTable{},
		groups:    internTable{},
		labels:    internTable{},
		entities:  internTable{},
		languages: map[string]*models.VersionLanguage{},
	}
}

func (r *run) copyVersion(ctx context.Context, sourceVersionID int64) error {
	languages, err := r.store.ListVersionLanguages(ctx, sourceVersionID)
	if err != nil {
		return fmt.Errorf("list version languages: %w", err)
	}

	// Destination languages exist before any translation looks one up.
	for _, src := range languages {
		dst, err := r.store.CreateVersionLanguage(ctx, r.dest, src)
		if err != nil {
			return fmt.Errorf("create version language %s: %w", src.Language, err)
		}
		r.languages[dst.Language] = dst
	}

	for _, src := range languages {
		dst := r.languages[src.Language]
		if err := r.copyExamples(ctx, src, dst); err != nil {
			return err
		}
		if err := r.copyEvaluates(ctx, src, dst); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) copyExamples(ctx context.Context, src, dst *models.VersionLanguage) error {
	examples, err := r.store.ListExamples(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("list examples of %s: %w", src.Language, err)
	}

	for _, example := range examples {
		clone := &models.Example{
			VersionLanguageID: dst.ID,
			VersionID:         r.dest,
			Language:          dst.Language,
			Text:              example.Text,
			Intent:            example.Intent,
			CreatedAt:         example.CreatedAt,
			LastUpdate:        example.LastUpdate,
		}
		if example.DeletedIn.IsDeleted() {
			clone.DeletedIn = models.DeletedIn(r.dest)
		}
		if example.Intent != nil && *example.Intent != "" {
			id, err := r.intent(ctx, *example.Intent)
			if err != nil {
				return err
			}
			clone.IntentID = &id
		}
		if err := r.store.CreateExample(ctx, clone); err != nil {
			return fmt.Errorf("copy example %d: %w", example.ID, err)
		}

		for _, span := range example.Entities {
			entityID, err := r.spanEntity(ctx, span.Entity, span.Group, span.Label)
			if err != nil {
				return err
			}
			err = r.store.CreateExampleEntity(ctx, &models.ExampleEntity{
				ExampleID: clone.ID,
				Start:     span.Start,
				End:       span.End,
				EntityID:  entityID,
				Entity:    span.Entity,
				Label:     span.Label,
				Group:     span.Group,
				CreatedAt: span.CreatedAt,
			})
			if err != nil {
				return fmt.Errorf("copy span of example %d: %w", example.ID, err)
			}
		}

		if err := r.copyTranslations(ctx, example, clone); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) copyTranslations(ctx context.Context, original, clone *models.Example) error {
	translations, err := r.store.ListTranslations(ctx, original.ID)
	if err != nil {
		return fmt.Errorf("list translations of example %d: %w", original.ID, err)
	}

	for _, translation := range translations {
		vl, err := r.language(ctx, translation.Language)
		if err != nil {
			return err
		}
		copied := &models.TranslatedExample{
			OriginalExampleID: clone.ID,
			VersionLanguageID: vl.ID,
			FromLanguage:      clone.Language,
			Language:          translation.Language,
			Text:              translation.Text,
			CloneRepository:   true,
			HasValidEntities:  translation.HasValidEntities,
			CreatedAt:         translation.CreatedAt,
		}
		if err := r.store.CreateTranslation(ctx, copied); err != nil {
			return fmt.Errorf("copy translation %d: %w", translation.ID, err)
		}

		for _, span := range translation.Entities {
			entityID, err := r.spanEntity(ctx, span.Entity, span.Group, span.Label)
			if err != nil {
				return err
			}
			err = r.store.CreateTranslationEntity(ctx, &models.TranslatedExampleEntity{
				TranslatedExampleID: copied.ID,
				Start:               span.Start,
				End:                 span.End,
				EntityID:            entityID,
				Entity:              span.Entity,
				Label:               span.Label,
				Group:               span.Group,
				CreatedAt:           span.CreatedAt,
			})
			if err != nil {
				return fmt.Errorf("copy span of translation %d: %w", translation.ID, err)
			}
		}
	}
	return nil
}

func (r *run) copyEvaluates(ctx context.Context, src, dst *models.VersionLanguage) error {
	evaluates, err := r.store.ListEvaluates(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("list evaluates of %s: %w", src.Language, err)
	}

	for _, evaluate := range evaluates {
		clone := &models.Evaluate{
			VersionLanguageID: dst.ID,
			Language:          dst.Language,
			Text:              evaluate.Text,
			Intent:            evaluate.Intent,
			CreatedAt:         evaluate.CreatedAt,
		}
		if evaluate.DeletedIn.IsDeleted() {
			clone.DeletedIn = models.DeletedIn(r.dest)
		}
		if err := r.store.CreateEvaluate(ctx, clone); err != nil {
			return fmt.Errorf("copy evaluate %d: %w", evaluate.ID, err)
		}

		// evaluation spans carry no group or label
		for _, span := range evaluate.Entities {
			entityID, err := r.entity(ctx, span.Entity, nil, nil)
			if err != nil {
				return err
			}
			err = r.store.CreateEvaluateEntity(ctx, &models.EvaluateEntity{
				EvaluateID: clone.ID,
				Start:      span.Start,
				End:        span.End,
				EntityID:   entityID,
				Entity:     span.Entity,
				CreatedAt:  span.CreatedAt,
			})
			if err != nil {
				return fmt.Errorf("copy span of evaluate %d: %w", evaluate.ID, err)
			}
		}
	}
	return nil
}

// language returns the destination version-language for code, creating it
// when the source version had no such language.
func (r *run) language(ctx context.Context, code string) (*models.VersionLanguage, error) {
	if vl, ok := r.languages[code]; ok {
		return vl, nil
	}
	vl, err := r.store.GetOrCreateVersionLanguage(ctx, r.dest, code)
	if err != nil {
		return nil, fmt.Errorf("version language %s: %w", code, err)
	}
	r.languages[code] = vl
	return vl, nil
}

func (r *run) spanEntity(ctx context.Context, entity string, group, label *string) (int64, error) {
	var groupID, labelID *int64
	if group != nil && *group != "" {
		id, err := r.intern(ctx, r.groups, *group, r.store.InternGroup)
		if err != nil {
			return 0, fmt.Errorf("intern group %q: %w", *group, err)
		}
		groupID = &id
	}
	if label != nil && *label != "" {
		id, err := r.intern(ctx, r.labels, *label, r.store.InternLabel)
		if err != nil {
			return 0, fmt.Errorf("intern label %q: %w", *label, err)
		}
		labelID = &id
	}
	return r.entity(ctx, entity, groupID, labelID)
}

func (r *run) entity(ctx context.Context, value string, groupID, labelID *int64) (int64, error) {
	key := internKey{versionID: r.dest, value: value}
	// a cached entity still gets its group or label attached on first sight
	if id, ok := r.entities[key]; ok && groupID == nil && labelID == nil {
		return id, nil
	}
	id, err := r.store.InternEntity(ctx, r.dest, value, groupID, labelID)
	if err != nil {
		return 0, fmt.Errorf("intern entity %q: %w", value, err)
	}
	r.entities[key] = id
	return id, nil
}

func (r *run) intent(ctx context.Context, text string) (int64, error) {
	id, err := r.intern(ctx, r.intents, text, r.store.InternIntent)
	if err != nil {
		return 0, fmt.Errorf("intern intent %q: %w", text, err)
	}
	return id, nil
}

func (r *run) intern(ctx context.Context, table internTable, value string,
	create func(context.Context, int64, string) (int64, error)) (int64, error) {
	key := internKey{versionID: r.dest, value: value}
	if id, ok := table[key]; ok {
		return id, nil
	}
	id, err := create(ctx, r.dest, value)
	if err != nil {
		return 0, err
	}
	table[key] = id
	return id, nil
}
