package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/repository"
)

func newExampleService(w *world) ExampleService {
	return NewExampleService(fakeBots{w: w}, fakeAuths{w: w}, fakeExamples{w: w}, fakeVersions{w: w}, nil, zap.NewNop())
}

func TestExampleRepositoryUUIDRules(t *testing.T) {
	w := newWorld()
	svc := newExampleService(w)
	ctx := context.Background()

	_, err := svc.List(ctx, 0, ExampleQuery{}, repository.Page{})
	assert.Contains(t, fieldErrors(t, err), "repository_uuid")

	_, err = svc.List(ctx, 0, ExampleQuery{Repository: "not-a-uuid"}, repository.Page{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.List(ctx, 0, ExampleQuery{Repository: uuid.NewString()}, repository.Page{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExampleCreatePermissions(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	reader := w.addUser("bob")
	repo, _ := w.addRepo(owner, true)
	w.grant(reader, repo, models.RoleUser)
	svc := newExampleService(w)
	ctx := context.Background()
	input := models.CreateExampleInput{Repository: repo.UUID.String(), Text: "hello", Intent: "greet"}

	_, err := svc.Create(ctx, 0, input)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Create(ctx, reader.ID, input)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	e, err := svc.Create(ctx, owner.ID, input)
	require.NoError(t, err)
	assert.Equal(t, "en", e.Language)
	assert.Equal(t, "greet", *e.Intent)
}

func TestExampleValidation(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, _ := w.addRepo(owner, false)
	svc := newExampleService(w)
	ctx := context.Background()

	tests := []struct {
		name  string
		input models.CreateExampleInput
		field string
		msg   string
	}{
		{
			name:  "label equal to entity",
			input: models.CreateExampleInput{Text: "my name is John", Entities: []models.EntitySpanInput{{Start: 11, End: 15, Entity: "name", Label: "name"}}},
			field: "entities",
			msg:   "Label name can't be equal to entity name.",
		},
		{
			name:  "entity out of range",
			input: models.CreateExampleInput{Text: "hi", Intent: "greet", Entities: []models.EntitySpanInput{{Start: 0, End: 5, Entity: "x"}}},
			field: "entities",
			msg:   "Entity out of text range.",
		},
		{
			name: "overlapping entities",
			input: models.CreateExampleInput{Text: "new york city", Intent: "travel", Entities: []models.EntitySpanInput{
				{Start: 0, End: 8, Entity: "city"},
				{Start: 4, End: 13, Entity: "place"},
			}},
			field: "entities",
			msg:   "Entities can't overlap.",
		},
		{
			name:  "no intent nor entities",
			input: models.CreateExampleInput{Text: "hello"},
			field: NonFieldErrors,
			msg:   "Define an intent or one entity.",
		},
		{
			name:  "invalid intent",
			input: models.CreateExampleInput{Text: "hello", Intent: "Greet Me"},
			field: "intent",
			msg:   identifierMessage,
		},
		{
			name:  "blank text",
			input: models.CreateExampleInput{Text: "  ", Intent: "greet"},
			field: "text",
			msg:   "This field may not be blank.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.Repository = repo.UUID.String()
			_, err := svc.Create(ctx, owner.ID, tt.input)
			assert.Contains(t, fieldErrors(t, err)[tt.field], tt.msg)
		})
	}
}

func TestExampleEntityOffsetsCountCharacters(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, _ := w.addRepo(owner, false)
	svc := newExampleService(w)

	_, err := svc.Create(context.Background(), owner.ID, models.CreateExampleInput{
		Repository: repo.UUID.String(),
		Text:       "olá são paulo",
		Entities:   []models.EntitySpanInput{{Start: 4, End: 13, Entity: "city"}},
	})
	assert.NoError(t, err)

	_, err = svc.Create(context.Background(), owner.ID, models.CreateExampleInput{
		Repository: repo.UUID.String(),
		Text:       "olá são paulo",
		Intent:     "travel",
		Entities:   []models.EntitySpanInput{{Start: 4, End: 14, Entity: "city"}},
	})
	assert.Contains(t, fieldErrors(t, err)["entities"], "Entity out of text range.")
}

func TestExampleDuplicate(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, _ := w.addRepo(owner, false)
	svc := newExampleService(w)
	ctx := context.Background()
	input := models.CreateExampleInput{Repository: repo.UUID.String(), Text: "hello", Intent: "greet"}

	_, err := svc.Create(ctx, owner.ID, input)
	require.NoError(t, err)

	_, err = svc.Create(ctx, owner.ID, input)
	assert.Equal(t, []string{"Intention and Sentence already exists."}, fieldErrors(t, err)[NonFieldErrors])

	input.Language = "es"
	_, err = svc.Create(ctx, owner.ID, input)
	assert.NoError(t, err)
}

func TestExampleDeleteTwice(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, _ := w.addRepo(owner, false)
	svc := newExampleService(w)
	ctx := context.Background()

	e, err := svc.Create(ctx, owner.ID, models.CreateExampleInput{Repository: repo.UUID.String(), Text: "hello", Intent: "greet"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, owner.ID, e.ID))
	assert.True(t, w.examples[e.ID].DeletedIn.IsDeleted())

	err = svc.Delete(ctx, owner.ID, e.ID)
	assert.Contains(t, fieldErrors(t, err), NonFieldErrors)

	text := "changed"
	_, err = svc.Update(ctx, owner.ID, e.ID, models.UpdateExampleInput{Text: &text})
	assert.Contains(t, fieldErrors(t, err), NonFieldErrors)

	assert.ErrorIs(t, svc.Delete(ctx, owner.ID, 9999), ErrNotFound)
}

func TestExampleUploadPartial(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, _ := w.addRepo(owner, false)
	svc := newExampleService(w)

	payload := []byte(`[
		{"text": "hello", "intent": "greet"},
		{"text": "bye", "intent": "Not Valid"},
		{"text": "see you", "intent": "goodbye", "language": "en"}
	]`)
	result, err := svc.Upload(context.Background(), owner.ID, repo.UUID.String(), payload)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Added)
	require.Len(t, result.NotAdded, 1)
	assert.Equal(t, "bye", result.NotAdded[0].Text)
	require.Len(t, result.NotAddedErrors, 1)
	assert.Equal(t, 1, result.NotAddedErrors[0].Index)
	assert.Contains(t, result.NotAddedErrors[0].Errors, "intent")
	assert.Len(t, w.examples, 2)
}

func TestExampleUploadRejectsNonArray(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, _ := w.addRepo(owner, false)
	svc := newExampleService(w)

	_, err := svc.Upload(context.Background(), owner.ID, repo.UUID.String(), []byte(`{"text": "hello"}`))
	assert.ErrorIs(t, err, ErrUnsupportedMedia)

	_, err = svc.Upload(context.Background(), 0, repo.UUID.String(), []byte(`[]`))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestExampleListRejectsDeletedVersion(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, _ := w.addRepo(owner, false)
	pending := w.addVersion(repo)
	pending.IsDeleted = true
	svc := newExampleService(w)

	_, err := svc.List(context.Background(), owner.ID, ExampleQuery{
		Repository:        repo.UUID.String(),
		RepositoryVersion: &pending.ID,
	}, repository.Page{})
	assert.Contains(t, fieldErrors(t, err), "repository_version")
}
