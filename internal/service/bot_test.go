package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/repository"
)

func newBotService(w *world) BotService {
	return NewBotService(fakeBots{w: w}, fakeAuths{w: w}, fakeCategories{w: w}, fakeVersions{w: w}, fakeUsers{w: w}, 2, time.Minute, zap.NewNop())
}

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Fields
}

func TestBotCreate(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	svc := newBotService(w)
	ctx := context.Background()

	detail, err := svc.Create(ctx, owner.ID, models.CreateRepositoryInput{
		Name:       "Café Bot",
		Language:   "EN",
		Categories: []int64{1},
	})
	require.NoError(t, err)
	assert.Equal(t, "cafe-bot", detail.Slug)
	assert.Equal(t, "en", detail.Language)
	assert.Equal(t, models.AlgorithmNeuralNetworkInternal, detail.Algorithm)
	assert.True(t, detail.Authorization.IsOwner)
	assert.True(t, detail.Authorization.IsAdmin)
	assert.Equal(t, []string{"en"}, detail.Languages)

	_, err = svc.Create(ctx, owner.ID, models.CreateRepositoryInput{Name: "Cafe bot", Language: "en", Categories: []int64{1}})
	assert.Contains(t, fieldErrors(t, err), "slug")

	_, err = svc.Create(ctx, owner.ID, models.CreateRepositoryInput{Name: "Other", Language: "en", Categories: []int64{7}})
	assert.Contains(t, fieldErrors(t, err), "categories")
}

func TestBotCreateValidation(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	svc := newBotService(w)

	_, err := svc.Create(context.Background(), 0, models.CreateRepositoryInput{Name: "x", Language: "en"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Create(context.Background(), owner.ID, models.CreateRepositoryInput{
		Name:      "",
		Language:  "klingon",
		Algorithm: "magic",
	})
	fields := fieldErrors(t, err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "language")
	assert.Contains(t, fields, "algorithm")
	assert.Contains(t, fields, "categories")
}

func TestBotPrivateRepositoryAccess(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	stranger := w.addUser("bob")
	reader := w.addUser("carol")
	contributor := w.addUser("dave")
	repo, _ := w.addRepo(owner, true)
	w.grant(reader, repo, models.RoleUser)
	w.grant(contributor, repo, models.RoleContributor)
	svc := newBotService(w)
	ctx := context.Background()

	_, err := svc.Get(ctx, 0, repo.UUID)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Get(ctx, stranger.ID, repo.UUID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	d, err := svc.Get(ctx, reader.ID, repo.UUID)
	require.NoError(t, err)
	assert.False(t, d.Authorization.CanWrite)

	d, err = svc.Get(ctx, contributor.ID, repo.UUID)
	require.NoError(t, err)
	assert.True(t, d.Authorization.CanWrite)
	assert.False(t, d.Authorization.IsAdmin)

	name := "Renamed"
	_, err = svc.Update(ctx, contributor.ID, repo.UUID, models.UpdateRepositoryInput{Name: &name})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.Get(ctx, owner.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	caps, err := svc.Authorization(ctx, stranger.ID, repo.UUID)
	require.NoError(t, err)
	assert.False(t, caps.CanRead)
}

func TestBotDeleteOwnerOnly(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	admin := w.addUser("bob")
	repo, _ := w.addRepo(owner, false)
	w.grant(admin, repo, models.RoleAdmin)
	svc := newBotService(w)

	assert.ErrorIs(t, svc.Delete(context.Background(), admin.ID, repo.UUID), ErrPermissionDenied)
	require.NoError(t, svc.Delete(context.Background(), owner.ID, repo.UUID))
	assert.NotContains(t, w.repos, repo.UUID)
}

func TestBotUpdateLanguageCreatesVersionLanguage(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, version := w.addRepo(owner, false)
	svc := newBotService(w)

	lang := "pt-BR"
	d, err := svc.Update(context.Background(), owner.ID, repo.UUID, models.UpdateRepositoryInput{Language: &lang})
	require.NoError(t, err)
	assert.Equal(t, "pt_br", d.Language)

	vl, err := fakeVersions{w: w}.GetLanguage(context.Background(), version.ID, "pt_br")
	require.NoError(t, err)
	assert.NotNil(t, vl)
}

func TestBotLanguagesStatus(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, version := w.addRepo(owner, false)
	examples := fakeExamples{w: w}
	ctx := context.Background()
	_, err := examples.Create(ctx, version.ID, "en", "hello", "greet", nil)
	require.NoError(t, err)
	_, err = examples.Create(ctx, version.ID, "en", "bye", "goodbye", nil)
	require.NoError(t, err)
	_, err = examples.Create(ctx, version.ID, "es", "hola", "greet", nil)
	require.NoError(t, err)

	statuses, err := newBotService(w).LanguagesStatus(ctx, 0, repo.UUID)
	require.NoError(t, err)

	byLang := map[string]models.LanguageStatus{}
	for _, st := range statuses {
		byLang[st.Language] = st
	}
	assert.True(t, byLang["en"].IsBaseLanguage)
	assert.True(t, byLang["en"].ReadyForTrain)
	assert.False(t, byLang["es"].IsBaseLanguage)
	assert.False(t, byLang["es"].ReadyForTrain)
}

func TestBotCategoriesCached(t *testing.T) {
	w := newWorld()
	svc := newBotService(w)

	for range 3 {
		categories, err := svc.Categories(context.Background())
		require.NoError(t, err)
		assert.Len(t, categories, 1)
	}
	assert.Equal(t, 1, w.categoryLists)
}

func TestBotContributionsHidePrivate(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	contributor := w.addUser("bob")
	viewer := w.addUser("carol")
	public, _ := w.addRepo(owner, false)
	private, _ := w.addRepo(owner, true)
	w.grant(contributor, public, models.RoleContributor)
	w.grant(contributor, private, models.RoleContributor)
	svc := newBotService(w)
	ctx := context.Background()

	own, err := svc.Contributions(ctx, contributor.ID, "", repository.Page{})
	require.NoError(t, err)
	assert.Len(t, own, 2)

	seen, err := svc.Contributions(ctx, viewer.ID, "bob", repository.Page{})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, public.UUID, seen[0].UUID)

	_, err = svc.Contributions(ctx, 0, "", repository.Page{})
	assert.Contains(t, fieldErrors(t, err), "nickname")

	_, err = svc.Contributions(ctx, 0, "nobody", repository.Page{})
	assert.ErrorIs(t, err, ErrNotFound)
}
