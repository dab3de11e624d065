package service

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"nluhub/internal/models"
	"nluhub/internal/nlp_client"
	"nluhub/internal/repository"
)

// world is the shared in-memory state behind the repository fakes.
type world struct {
	repos        map[uuid.UUID]*models.Repository
	roles        map[authKey]*models.Authorization
	users        map[int64]*models.User
	versions     map[int64]*models.Version
	languages    map[int64]*models.VersionLanguage
	examples     map[int64]*models.Example
	translations map[int64]*models.TranslatedExample
	evaluations  map[int64]int
	evaluates    map[int64]*models.Evaluate
	requests     map[int64]*models.AuthorizationRequest
	votes        map[authKey]*models.Vote
	categories   []models.Category
	nextID       int64

	categoryLists int
	trainingStart []int64
}

type authKey struct {
	userID int64
	repo   uuid.UUID
}

func newWorld() *world {
	return &world{
		repos:        map[uuid.UUID]*models.Repository{},
		roles:        map[authKey]*models.Authorization{},
		users:        map[int64]*models.User{},
		versions:     map[int64]*models.Version{},
		languages:    map[int64]*models.VersionLanguage{},
		examples:     map[int64]*models.Example{},
		translations: map[int64]*models.TranslatedExample{},
		evaluations:  map[int64]int{},
		evaluates:    map[int64]*models.Evaluate{},
		requests:     map[int64]*models.AuthorizationRequest{},
		votes:        map[authKey]*models.Vote{},
		categories:   []models.Category{{ID: 1, Name: "business", Icon: "briefcase"}},
		nextID:       100,
	}
}

func (w *world) id() int64 {
	w.nextID++
	return w.nextID
}

func (w *world) addUser(nickname string) *models.User {
	u := &models.User{ID: w.id(), Nickname: nickname, Name: nickname, Email: nickname + "@example.com"}
	w.users[u.ID] = u
	return u
}

// addRepo creates a repository with a default version holding its language.
func (w *world) addRepo(owner *models.User, private bool) (*models.Repository, *models.Version) {
	repo := &models.Repository{
		UUID:          uuid.New(),
		OwnerID:       owner.ID,
		OwnerNickname: owner.Nickname,
		Name:          "Weather",
		Slug:          "weather",
		Language:      "en",
		IsPrivate:     private,
		Algorithm:     models.AlgorithmNeuralNetworkInternal,
	}
	w.repos[repo.UUID] = repo
	v := w.addVersion(repo)
	w.language(v.ID, repo.Language)
	return repo, v
}

func (w *world) addVersion(repo *models.Repository) *models.Version {
	isDefault := true
	for _, v := range w.versions {
		if v.RepositoryUUID == repo.UUID && v.IsDefault {
			isDefault = false
		}
	}
	v := &models.Version{ID: w.id(), RepositoryUUID: repo.UUID, Name: "master", IsDefault: isDefault}
	w.versions[v.ID] = v
	return v
}

func (w *world) language(versionID int64, lang string) *models.VersionLanguage {
	for _, vl := range w.languages {
		if vl.VersionID == versionID && vl.Language == lang {
			return vl
		}
	}
	vl := &models.VersionLanguage{ID: w.id(), VersionID: versionID, Language: lang}
	w.languages[vl.ID] = vl
	return vl
}

func (w *world) grant(user *models.User, repo *models.Repository, role models.Role) {
	w.roles[authKey{user.ID, repo.UUID}] = &models.Authorization{
		UUID: uuid.New(), UserID: user.ID, UserNickname: user.Nickname, RepositoryUUID: repo.UUID, Role: role,
	}
}

type fakeBots struct {
	repository.BotRepository
	w *world
}

func (f fakeBots) GetByUUID(ctx context.Context, id uuid.UUID) (*models.Repository, error) {
	r, ok := f.w.repos[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f fakeBots) Create(ctx context.Context, repo *models.Repository, categories []int64) (*models.Version, error) {
	for _, c := range categories {
		if c != 1 {
			return nil, repository.ErrInvalidReference
		}
	}
	for _, r := range f.w.repos {
		if r.OwnerID == repo.OwnerID && r.Slug == repo.Slug {
			return nil, repository.ErrConflict
		}
	}
	repo.UUID = uuid.New()
	if u := f.w.users[repo.OwnerID]; u != nil {
		repo.OwnerNickname = u.Nickname
	}
	cp := *repo
	f.w.repos[repo.UUID] = &cp
	v := f.w.addVersion(&cp)
	f.w.language(v.ID, repo.Language)
	return v, nil
}

func (f fakeBots) Update(ctx context.Context, repo *models.Repository, categories *[]int64) error {
	cp := *repo
	f.w.repos[repo.UUID] = &cp
	return nil
}

func (f fakeBots) Delete(ctx context.Context, id uuid.UUID) error {
	delete(f.w.repos, id)
	return nil
}

func (f fakeBots) Categories(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	return f.w.categories, nil
}

func (f fakeBots) LanguagesStatus(ctx context.Context, versionID int64) ([]models.LanguageStatus, error) {
	out := []models.LanguageStatus{}
	for _, vl := range f.w.languages {
		if vl.VersionID != versionID {
			continue
		}
		st := models.LanguageStatus{Language: vl.Language}
		intents := map[string]bool{}
		for _, e := range f.w.examples {
			if e.VersionLanguageID == vl.ID && !e.DeletedIn.IsDeleted() {
				st.ExamplesCount++
				if e.Intent != nil {
					intents[*e.Intent] = true
				}
			}
		}
		st.IntentsCount = len(intents)
		out = append(out, st)
	}
	return out, nil
}

func (f fakeBots) ListContributions(ctx context.Context, userID int64, page repository.Page) ([]*models.Repository, error) {
	var out []*models.Repository
	for k, a := range f.w.roles {
		if k.userID == userID && a.Role != models.RoleNotSet {
			out = append(out, f.w.repos[k.repo])
		}
	}
	return out, nil
}

type fakeCategories struct {
	repository.CategoryRepository
	w *world
}

func (f fakeCategories) List(ctx context.Context) ([]models.Category, error) {
	f.w.categoryLists++
	return f.w.categories, nil
}

type fakeAuths struct {
	repository.AuthorizationRepository
	w *world
}

func (f fakeAuths) Get(ctx context.Context, userID int64, repo uuid.UUID) (*models.Authorization, error) {
	a, ok := f.w.roles[authKey{userID, repo}]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f fakeAuths) SetRole(ctx context.Context, userID int64, repo uuid.UUID, role models.Role) (*models.Authorization, error) {
	key := authKey{userID, repo}
	a, ok := f.w.roles[key]
	if !ok {
		a = &models.Authorization{UUID: uuid.New(), UserID: userID, RepositoryUUID: repo}
		f.w.roles[key] = a
	}
	a.Role = role
	cp := *a
	return &cp, nil
}

func (f fakeAuths) ListAdmins(ctx context.Context, repo uuid.UUID) ([]*models.User, error) {
	admins := []*models.User{f.w.users[f.w.repos[repo].OwnerID]}
	for k, a := range f.w.roles {
		if k.repo == repo && a.Role == models.RoleAdmin {
			admins = append(admins, f.w.users[k.userID])
		}
	}
	return admins, nil
}

type fakeUsers struct {
	repository.UserRepository
	w *world
}

func (f fakeUsers) Create(ctx context.Context, user *models.User) error {
	for _, u := range f.w.users {
		if u.Nickname == user.Nickname || u.Email == user.Email {
			return repository.ErrConflict
		}
	}
	user.ID = f.w.id()
	cp := *user
	f.w.users[user.ID] = &cp
	return nil
}

func (f fakeUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := f.w.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.w.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeUsers) GetByNickname(ctx context.Context, nickname string) (*models.User, error) {
	for _, u := range f.w.users {
		if u.Nickname == nickname {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeUsers) Update(ctx context.Context, user *models.User) error {
	cp := *user
	f.w.users[user.ID] = &cp
	return nil
}

type fakeVersions struct {
	repository.VersionRepository
	w *world
}

func (f fakeVersions) GetByID(ctx context.Context, id int64) (*models.Version, error) {
	v, ok := f.w.versions[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (f fakeVersions) GetDefault(ctx context.Context, repo uuid.UUID) (*models.Version, error) {
	for _, v := range f.w.versions {
		if v.RepositoryUUID == repo && v.IsDefault {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeVersions) GetLanguage(ctx context.Context, versionID int64, lang string) (*models.VersionLanguage, error) {
	for _, vl := range f.w.languages {
		if vl.VersionID == versionID && vl.Language == lang {
			cp := *vl
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeVersions) GetLanguageByID(ctx context.Context, id int64) (*models.VersionLanguage, error) {
	vl, ok := f.w.languages[id]
	if !ok {
		return nil, nil
	}
	cp := *vl
	return &cp, nil
}

func (f fakeVersions) GetOrCreateLanguage(ctx context.Context, versionID int64, lang string) (*models.VersionLanguage, error) {
	return f.w.language(versionID, lang), nil
}

func (f fakeVersions) StartTraining(ctx context.Context, id int64) error {
	f.w.trainingStart = append(f.w.trainingStart, id)
	return nil
}

func (f fakeVersions) FinishTraining(ctx context.Context, id int64, botData, rasaVersion, trainingLog string) error {
	vl := f.w.languages[id]
	vl.BotData = botData
	vl.RasaVersion = rasaVersion
	vl.TrainingLog = trainingLog
	return nil
}

func (f fakeVersions) CreateClone(ctx context.Context, version *models.Version, sourceID int64) (*models.CloneJob, error) {
	version.ID = f.w.id()
	version.IsDeleted = true
	cp := *version
	f.w.versions[version.ID] = &cp
	return &models.CloneJob{ID: f.w.id(), DestinationVersionID: version.ID, SourceVersionID: sourceID,
		RepositoryUUID: version.RepositoryUUID, Status: models.CloneJobPending}, nil
}

func (f fakeVersions) Delete(ctx context.Context, id int64) error {
	if f.w.versions[id].IsDefault {
		return sql.ErrNoRows
	}
	delete(f.w.versions, id)
	return nil
}

type fakeExamples struct {
	repository.ExampleRepository
	w *world
}

func (f fakeExamples) Create(ctx context.Context, versionID int64, lang, text, intent string, spans []models.EntitySpanInput) (*models.Example, error) {
	vl := f.w.language(versionID, lang)
	e := &models.Example{ID: f.w.id(), VersionLanguageID: vl.ID, VersionID: versionID, Language: lang, Text: text}
	if intent != "" {
		e.Intent = &intent
	}
	for _, s := range spans {
		e.Entities = append(e.Entities, models.ExampleEntity{Start: s.Start, End: s.End, Entity: s.Entity})
	}
	f.w.examples[e.ID] = e
	return f.GetByID(ctx, e.ID)
}

func (f fakeExamples) GetByID(ctx context.Context, id int64) (*models.Example, error) {
	e, ok := f.w.examples[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f fakeExamples) GetRepositoryUUID(ctx context.Context, id int64) (uuid.UUID, error) {
	e, ok := f.w.examples[id]
	if !ok {
		return uuid.Nil, nil
	}
	return f.w.versions[e.VersionID].RepositoryUUID, nil
}

func (f fakeExamples) Update(ctx context.Context, e *models.Example, text, intent string, spans *[]models.EntitySpanInput) error {
	stored := f.w.examples[e.ID]
	if stored.DeletedIn.IsDeleted() {
		return sql.ErrNoRows
	}
	stored.Text = text
	stored.Intent = &intent
	return nil
}

func (f fakeExamples) MarkDeleted(ctx context.Context, id, versionID int64) error {
	e := f.w.examples[id]
	if e.DeletedIn.IsDeleted() {
		return sql.ErrNoRows
	}
	e.DeletedIn = models.DeletedIn(versionID)
	return nil
}

func (f fakeExamples) DuplicateExists(ctx context.Context, versionID int64, lang, text, intent string, excludeID int64) (bool, error) {
	for _, e := range f.w.examples {
		if e.VersionID != versionID || e.Language != lang || e.ID == excludeID || e.DeletedIn.IsDeleted() {
			continue
		}
		stored := ""
		if e.Intent != nil {
			stored = *e.Intent
		}
		if e.Text == text && stored == intent {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeExamples) CountIntents(ctx context.Context, vlID int64) (int, error) {
	intents := map[string]bool{}
	for _, e := range f.w.examples {
		if e.VersionLanguageID == vlID && !e.DeletedIn.IsDeleted() && e.Intent != nil {
			intents[*e.Intent] = true
		}
	}
	return len(intents), nil
}

type fakeTranslations struct {
	repository.TranslationRepository
	w *world
}

func (f fakeTranslations) Create(ctx context.Context, original *models.Example, lang, text string, spans []models.EntitySpanInput, valid bool) (*models.TranslatedExample, error) {
	for _, t := range f.w.translations {
		if t.OriginalExampleID == original.ID && t.Language == lang {
			return nil, repository.ErrConflict
		}
	}
	vl := f.w.language(original.VersionID, lang)
	t := &models.TranslatedExample{
		ID: f.w.id(), OriginalExampleID: original.ID, VersionLanguageID: vl.ID,
		FromLanguage: original.Language, Language: lang, Text: text, HasValidEntities: valid,
	}
	for _, s := range spans {
		t.Entities = append(t.Entities, models.TranslatedExampleEntity{Start: s.Start, End: s.End, Entity: s.Entity})
	}
	f.w.translations[t.ID] = t
	return f.GetByID(ctx, t.ID)
}

func (f fakeTranslations) GetByID(ctx context.Context, id int64) (*models.TranslatedExample, error) {
	t, ok := f.w.translations[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f fakeTranslations) Exists(ctx context.Context, originalID int64, lang string) (bool, error) {
	for _, t := range f.w.translations {
		if t.OriginalExampleID == originalID && t.Language == lang {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeTranslations) Update(ctx context.Context, t *models.TranslatedExample, text string, spans *[]models.EntitySpanInput, valid bool) error {
	stored := f.w.translations[t.ID]
	stored.Text = text
	stored.HasValidEntities = valid
	return nil
}

func (f fakeTranslations) Delete(ctx context.Context, id int64) error {
	if _, ok := f.w.translations[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.w.translations, id)
	return nil
}

func (f fakeTranslations) List(ctx context.Context, filter repository.TranslationFilter, page repository.Page) ([]*models.TranslatedExample, error) {
	out := []*models.TranslatedExample{}
	for _, t := range f.w.translations {
		if f.w.examples[t.OriginalExampleID].VersionID != filter.VersionID {
			continue
		}
		if filter.ToLanguage != "" && t.Language != filter.ToLanguage {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

type fakeEvaluates struct {
	repository.EvaluateRepository
	w *world
}

func (f fakeEvaluates) Count(ctx context.Context, vlID int64) (int, error) {
	return f.w.evaluations[vlID], nil
}

func (f fakeEvaluates) Create(ctx context.Context, versionID int64, lang, text, intent string, spans []models.EntitySpanInput) (*models.Evaluate, error) {
	vl := f.w.language(versionID, lang)
	e := &models.Evaluate{ID: f.w.id(), VersionLanguageID: vl.ID, Language: lang, Text: text, Intent: intent}
	for _, s := range spans {
		e.Entities = append(e.Entities, models.EvaluateEntity{Start: s.Start, End: s.End, Entity: s.Entity})
	}
	f.w.evaluates[e.ID] = e
	return f.GetByID(ctx, e.ID)
}

func (f fakeEvaluates) GetByID(ctx context.Context, id int64) (*models.Evaluate, error) {
	e, ok := f.w.evaluates[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f fakeEvaluates) GetRepositoryUUID(ctx context.Context, id int64) (uuid.UUID, error) {
	e, ok := f.w.evaluates[id]
	if !ok {
		return uuid.Nil, nil
	}
	vl := f.w.languages[e.VersionLanguageID]
	return f.w.versions[vl.VersionID].RepositoryUUID, nil
}

func (f fakeEvaluates) Update(ctx context.Context, e *models.Evaluate, text, intent string, spans *[]models.EntitySpanInput) error {
	stored := f.w.evaluates[e.ID]
	if stored.DeletedIn.IsDeleted() {
		return sql.ErrNoRows
	}
	stored.Text, stored.Intent = text, intent
	return nil
}

func (f fakeEvaluates) MarkDeleted(ctx context.Context, id, versionID int64) error {
	e := f.w.evaluates[id]
	if e.DeletedIn.IsDeleted() {
		return sql.ErrNoRows
	}
	e.DeletedIn = models.DeletedIn(versionID)
	return nil
}

type fakeRequests struct {
	repository.AuthorizationRequestRepository
	w *world
}

func (f fakeRequests) Create(ctx context.Context, req *models.AuthorizationRequest) error {
	req.ID = f.w.id()
	cp := *req
	f.w.requests[req.ID] = &cp
	return nil
}

func (f fakeRequests) GetByID(ctx context.Context, id int64) (*models.AuthorizationRequest, error) {
	r, ok := f.w.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f fakeRequests) HasPending(ctx context.Context, userID int64, repo uuid.UUID) (bool, error) {
	for _, r := range f.w.requests {
		if r.UserID == userID && r.RepositoryUUID == repo && r.ApprovedBy == nil {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeRequests) Approve(ctx context.Context, id, approvedBy int64) error {
	r := f.w.requests[id]
	if r.ApprovedBy != nil {
		return sql.ErrNoRows
	}
	r.ApprovedBy = &approvedBy
	key := authKey{r.UserID, r.RepositoryUUID}
	if a, ok := f.w.roles[key]; !ok || a.Role == models.RoleNotSet {
		f.w.roles[key] = &models.Authorization{UUID: uuid.New(), UserID: r.UserID, RepositoryUUID: r.RepositoryUUID, Role: models.RoleUser}
	}
	return nil
}

func (f fakeRequests) Delete(ctx context.Context, id int64) error {
	if _, ok := f.w.requests[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.w.requests, id)
	return nil
}

type fakeVotes struct {
	repository.VoteRepository
	w *world
}

func (f fakeVotes) Create(ctx context.Context, userID int64, repo uuid.UUID) (*models.Vote, error) {
	key := authKey{userID, repo}
	if v, ok := f.w.votes[key]; ok {
		return v, nil
	}
	v := &models.Vote{UserID: userID, RepositoryUUID: repo}
	f.w.votes[key] = v
	return v, nil
}

func (f fakeVotes) List(ctx context.Context, filter repository.VoteFilter, page repository.Page) ([]*models.Vote, error) {
	out := []*models.Vote{}
	for k, v := range f.w.votes {
		if filter.Repository != nil && k.repo != *filter.Repository {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

type roleChange struct {
	userID int64
	role   models.Role
}

type recordingNotifier struct {
	requested []int64
	admins    int
	changes   []roleChange
}

func (n *recordingNotifier) AuthorizationRequested(ctx context.Context, repo *models.Repository, req *models.AuthorizationRequest, admins []*models.User) {
	n.requested = append(n.requested, req.ID)
	n.admins = len(admins)
}

func (n *recordingNotifier) RoleChanged(ctx context.Context, repo *models.Repository, user *models.User, role models.Role) {
	n.changes = append(n.changes, roleChange{user.ID, role})
}

type fakeNLP struct {
	trains  []nlp_client.TrainRequest
	parses  []nlp_client.ParseRequest
	servers []string
	body    json.RawMessage
	err     error
}

func (f *fakeNLP) Train(ctx context.Context, server string, req nlp_client.TrainRequest) (json.RawMessage, error) {
	f.trains = append(f.trains, req)
	f.servers = append(f.servers, server)
	return f.body, f.err
}

func (f *fakeNLP) Evaluate(ctx context.Context, server string, req nlp_client.EvaluateRequest) (json.RawMessage, error) {
	f.servers = append(f.servers, server)
	return f.body, f.err
}

func (f *fakeNLP) Parse(ctx context.Context, server string, req nlp_client.ParseRequest) (json.RawMessage, error) {
	f.parses = append(f.parses, req)
	f.servers = append(f.servers, server)
	return f.body, f.err
}
