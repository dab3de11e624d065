package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nluhub/internal/artifact"
	"nluhub/internal/models"
	"nluhub/internal/nlp_client"
)

func newTrainingService(w *world, nlp *fakeNLP) TrainingService {
	return NewTrainingService(
		fakeBots{w: w}, fakeAuths{w: w}, fakeVersions{w: w}, fakeExamples{w: w}, fakeEvaluates{w: w},
		nil, nil, nlp, artifact.NewInline(nil),
		TrainingRequirements{MinIntents: 2, MinEvaluations: 1},
		zap.NewNop(),
	)
}

func addExamples(t *testing.T, w *world, versionID int64, intents ...string) {
	t.Helper()
	for _, intent := range intents {
		_, err := fakeExamples{w: w}.Create(context.Background(), versionID, "en", "text for "+intent, intent, nil)
		require.NoError(t, err)
	}
}

func TestTrainRequiresMinimumIntents(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, version := w.addRepo(owner, false)
	nlp := &fakeNLP{body: json.RawMessage(`{"ok":true}`)}
	svc := newTrainingService(w, nlp)
	ctx := context.Background()

	addExamples(t, w, version.ID, "greet")
	_, err := svc.Train(ctx, owner.ID, repo.UUID, models.TrainInput{})
	assert.Equal(t, []string{"You need to have at least 2 intents."}, fieldErrors(t, err)[NonFieldErrors])
	assert.Empty(t, nlp.trains)

	addExamples(t, w, version.ID, "goodbye")
	body, err := svc.Train(ctx, owner.ID, repo.UUID, models.TrainInput{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	require.Len(t, nlp.trains, 1)
	sent := nlp.trains[0]
	assert.Equal(t, version.ID, sent.RepositoryVersion)
	assert.Equal(t, "en", sent.Language)
	assert.Equal(t, owner.ID, sent.ByUser)
	auth := w.roles[authKey{owner.ID, repo.UUID}]
	require.NotNil(t, auth)
	assert.Equal(t, auth.UUID.String(), sent.RepositoryAuthorization)
	assert.Len(t, w.trainingStart, 1)
}

func TestTrainRelaysUpstreamStatus(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, version := w.addRepo(owner, false)
	upstream := &nlp_client.StatusError{StatusCode: http.StatusBadRequest, Body: []byte(`{"detail":"busy"}`)}
	nlp := &fakeNLP{err: upstream}
	svc := newTrainingService(w, nlp)

	addExamples(t, w, version.ID, "greet", "goodbye")
	_, err := svc.Train(context.Background(), owner.ID, repo.UUID, models.TrainInput{Language: "en"})

	var statusErr *nlp_client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Empty(t, w.trainingStart)
}

func TestTrainPermissions(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	reader := w.addUser("bob")
	repo, _ := w.addRepo(owner, false)
	svc := newTrainingService(w, &fakeNLP{})

	_, err := svc.Train(context.Background(), 0, repo.UUID, models.TrainInput{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Train(context.Background(), reader.ID, repo.UUID, models.TrainInput{})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.Train(context.Background(), owner.ID, repo.UUID, models.TrainInput{Language: "fr"})
	assert.Contains(t, fieldErrors(t, err), "language")
}

func TestEvaluateRequiresTestPhrases(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, version := w.addRepo(owner, false)
	nlp := &fakeNLP{body: json.RawMessage(`{}`)}
	svc := newTrainingService(w, nlp)
	ctx := context.Background()
	addExamples(t, w, version.ID, "greet", "goodbye")

	_, err := svc.Evaluate(ctx, owner.ID, repo.UUID, models.TrainInput{})
	assert.Contains(t, fieldErrors(t, err), "language")

	_, err = svc.Evaluate(ctx, owner.ID, repo.UUID, models.TrainInput{Language: "en"})
	assert.Contains(t, fieldErrors(t, err), NonFieldErrors)

	vl := w.language(version.ID, "en")
	w.evaluations[vl.ID] = 3
	_, err = svc.Evaluate(ctx, owner.ID, repo.UUID, models.TrainInput{Language: "en"})
	require.NoError(t, err)
}

func TestAnalyzeUsesRepositoryServer(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	repo, _ := w.addRepo(owner, false)
	custom := "https://nlp.internal.example"
	w.repos[repo.UUID].NLPServer = &custom
	nlp := &fakeNLP{body: json.RawMessage(`{"intent":{"name":"greet"}}`)}
	svc := newTrainingService(w, nlp)

	_, err := svc.Analyze(context.Background(), 0, repo.UUID, models.AnalyzeInput{Text: " "})
	assert.Contains(t, fieldErrors(t, err), "text")

	body, err := svc.Analyze(context.Background(), 0, repo.UUID, models.AnalyzeInput{Text: "hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"intent":{"name":"greet"}}`, string(body))
	require.Len(t, nlp.parses, 1)
	assert.Empty(t, nlp.parses[0].RepositoryAuthorization)
	assert.Equal(t, []string{custom}, nlp.servers)
}

func TestTrainingResultStoresBotData(t *testing.T) {
	w := newWorld()
	owner := w.addUser("alice")
	_, version := w.addRepo(owner, false)
	vl := w.language(version.ID, "en")
	svc := newTrainingService(w, &fakeNLP{})
	ctx := context.Background()

	_, err := svc.BotData(ctx, vl.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = svc.TrainingResult(ctx, vl.ID, models.TrainingResultInput{})
	assert.Contains(t, fieldErrors(t, err), "bot_data")

	require.NoError(t, svc.TrainingResult(ctx, vl.ID, models.TrainingResultInput{BotData: "YWJj", RasaVersion: "3.6.0"}))
	assert.Equal(t, "3.6.0", w.languages[vl.ID].RasaVersion)

	data, err := svc.BotData(ctx, vl.ID)
	require.NoError(t, err)
	assert.Equal(t, "YWJj", data)

	_, err = svc.BotData(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterQueueTaskValidation(t *testing.T) {
	svc := newTrainingService(newWorld(), &fakeNLP{})

	_, err := svc.RegisterQueueTask(context.Background(), models.CreateQueueTaskInput{RepositoryVersionLanguage: 1, IDQueue: "abc", FromQueue: 7})
	assert.Contains(t, fieldErrors(t, err), "from_queue")

	_, err = svc.RegisterQueueTask(context.Background(), models.CreateQueueTaskInput{RepositoryVersionLanguage: 1, IDQueue: "abc", TypeProcessing: 5})
	assert.Contains(t, fieldErrors(t, err), "type_processing")

	_, err = svc.LogPrediction(context.Background(), models.CreateNLPLogInput{RepositoryVersionLanguage: 1, Text: "hi", Log: json.RawMessage(`{broken`)})
	assert.Contains(t, fieldErrors(t, err), "nlp_log")
}
