package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/nlp_client"
	"nluhub/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCloneJobs struct {
	repository.CloneJobRepository
	mu      sync.Mutex
	pending []*models.CloneJob
	done    []int64
	failed  map[int64]string
}

func (f *fakeCloneJobs) ClaimNext(ctx context.Context) (*models.CloneJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, nil
	}
	job := f.pending[0]
	f.pending = f.pending[1:]
	return job, nil
}

func (f *fakeCloneJobs) MarkDone(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = append(f.done, id)
	return nil
}

func (f *fakeCloneJobs) MarkFailed(ctx context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = map[int64]string{}
	}
	f.failed[id] = reason
	return nil
}

type clonerFunc func(ctx context.Context, src, dst int64) error

func (f clonerFunc) Clone(ctx context.Context, src, dst int64) error { return f(ctx, src, dst) }

func TestCloneWorkerRunOnce(t *testing.T) {
	jobs := &fakeCloneJobs{pending: []*models.CloneJob{
		{ID: 1, SourceVersionID: 10, DestinationVersionID: 11, RepositoryUUID: uuid.New()},
		{ID: 2, SourceVersionID: 10, DestinationVersionID: 12, RepositoryUUID: uuid.New()},
	}}
	var cloned [][2]int64
	cloner := clonerFunc(func(ctx context.Context, src, dst int64) error {
		cloned = append(cloned, [2]int64{src, dst})
		if dst == 12 {
			return errors.New("insert example: connection reset")
		}
		return nil
	})
	w := NewCloneWorker(jobs, cloner, nil, time.Hour, zap.NewNop())
	ctx := context.Background()

	ok, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, [][2]int64{{10, 11}, {10, 12}}, cloned)
	assert.Equal(t, []int64{1}, jobs.done)
	assert.Equal(t, map[int64]string{2: "insert example: connection reset"}, jobs.failed)
}

func TestCloneWorkerDrainsAndStops(t *testing.T) {
	jobs := &fakeCloneJobs{pending: []*models.CloneJob{{ID: 1}, {ID: 2}, {ID: 3}}}
	var calls atomic.Int32
	w := NewCloneWorker(jobs, clonerFunc(func(ctx context.Context, src, dst int64) error {
		calls.Add(1)
		return nil
	}), nil, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("clone worker did not stop")
	}
}

type fakeTasks struct {
	repository.QueueTaskRepository
	tasks   []*models.QueueTask
	updates []taskUpdate
}

type taskUpdate struct {
	id     int64
	status int
	units  float64
	ended  bool
}

func (f *fakeTasks) ListInProgress(ctx context.Context) ([]*models.QueueTask, error) {
	return f.tasks, nil
}

func (f *fakeTasks) UpdateStatus(ctx context.Context, id int64, status int, mlUnits float64, end *time.Time) error {
	f.updates = append(f.updates, taskUpdate{id: id, status: status, units: mlUnits, ended: end != nil})
	return nil
}

type fakeTaskStatus map[string]*nlp_client.TaskStatus

func (f fakeTaskStatus) TaskStatus(ctx context.Context, idTask string, fromQueue int) (*nlp_client.TaskStatus, error) {
	st, ok := f[idTask]
	if !ok {
		return nil, errors.New("nlp unreachable")
	}
	return st, nil
}

func TestTrainingChecker(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	tasks := &fakeTasks{tasks: []*models.QueueTask{
		{ID: 1, IDQueue: "done", Status: models.TaskStatusTraining, CreatedAt: now.Add(-time.Hour)},
		{ID: 2, IDQueue: "still", Status: models.TaskStatusTraining, CreatedAt: now.Add(-time.Hour)},
		{ID: 3, IDQueue: "stuck", Status: models.TaskStatusPending, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: 4, IDQueue: "unknown", Status: models.TaskStatusPending, CreatedAt: now.Add(-time.Minute)},
		{ID: 5, IDQueue: "lost", Status: models.TaskStatusPending, CreatedAt: now.Add(-2 * time.Hour)},
	}}
	nlp := fakeTaskStatus{
		"done":  {Status: models.TaskStatusSuccess, MLUnits: 1.5},
		"still": {Status: models.TaskStatusTraining},
		"stuck": {Status: models.TaskStatusPending},
	}
	c := NewTrainingChecker(tasks, nlp, 2*time.Hour, zap.NewNop())
	c.now = func() time.Time { return now }

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []taskUpdate{
		{id: 1, status: models.TaskStatusSuccess, units: 1.5, ended: true},
		{id: 3, status: models.TaskStatusFailed, ended: true},
		{id: 5, status: models.TaskStatusFailed, ended: true},
	}, tasks.updates)
}

type fakeLogs struct {
	repository.NLPLogRepository
	ids     []int64
	cutoffs []time.Time
	calls   int
	// stolen maps a call number to rows removed by someone else first
	stolen  map[int]int
}

func (f *fakeLogs) DeleteBatchBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) (int64, int, error) {
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	var batch []int64
	rest := f.ids[:0:0]
	for _, id := range f.ids {
		if id > afterID && len(batch) < limit {
			batch = append(batch, id)
			continue
		}
		rest = append(rest, id)
	}
	f.ids = rest
	if len(batch) == 0 {
		return afterID, 0, nil
	}
	return batch[len(batch)-1], len(batch) - f.stolen[f.calls], nil
}

func TestLogPrunerBatches(t *testing.T) {
	logs := &fakeLogs{}
	for id := int64(1); id <= 12; id++ {
		logs.ids = append(logs.ids, id)
	}
	p := NewLogPruner(logs, 90, 5, nil, zap.NewNop())
	p.now = func() time.Time { return time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC) }

	require.NoError(t, p.Run(context.Background()))
	assert.Empty(t, logs.ids)
	// 5 + 5 + 2, then an empty batch ends the run
	assert.Equal(t, 4, logs.calls)
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), logs.cutoffs[0])
}

func TestLogPrunerContinuesPastShortBatch(t *testing.T) {
	logs := &fakeLogs{stolen: map[int]int{1: 2}}
	for id := int64(1); id <= 12; id++ {
		logs.ids = append(logs.ids, id)
	}
	p := NewLogPruner(logs, 90, 5, nil, zap.NewNop())

	require.NoError(t, p.Run(context.Background()))
	assert.Empty(t, logs.ids)
	assert.Equal(t, 4, logs.calls)
}

func TestLogPrunerExactMultiple(t *testing.T) {
	logs := &fakeLogs{ids: []int64{3, 7, 9, 11}}
	p := NewLogPruner(logs, 90, 2, nil, zap.NewNop())

	require.NoError(t, p.Run(context.Background()))
	assert.Empty(t, logs.ids)
	assert.Equal(t, 3, logs.calls)
}

type fakeBots struct {
	repository.BotRepository
	ids    []uuid.UUID
	counts map[uuid.UUID]int
}

func (f *fakeBots) ListUUIDs(ctx context.Context) ([]uuid.UUID, error) { return f.ids, nil }

func (f *fakeBots) SetCountAuthorizations(ctx context.Context, id uuid.UUID, count int) error {
	f.counts[id] = count
	return nil
}

type fakeAuths struct {
	repository.AuthorizationRepository
	active map[uuid.UUID]int
}

func (f fakeAuths) CountActiveUsers(ctx context.Context, id uuid.UUID) (int, error) {
	n, ok := f.active[id]
	if !ok {
		return 0, errors.New("query failed")
	}
	return n, nil
}

func TestAuthorizationCounter(t *testing.T) {
	a, b, broken := uuid.New(), uuid.New(), uuid.New()
	bots := &fakeBots{ids: []uuid.UUID{a, b, broken}, counts: map[uuid.UUID]int{}}
	auths := fakeAuths{active: map[uuid.UUID]int{a: 3, b: 0}}
	counter := NewAuthorizationCounter(bots, auths, zap.NewNop())

	err := counter.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, map[uuid.UUID]int{a: 3, b: 0}, bots.counts)
}

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	s := NewScheduler(nil, zap.NewNop())
	job := &countingJob{}
	disabled := &countingJob{}
	s.Every(5*time.Millisecond, job)
	s.Every(0, disabled)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return job.runs.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Zero(t, disabled.runs.Load())
}

func TestSchedulerRunOnceReturnsError(t *testing.T) {
	s := NewScheduler(nil, zap.NewNop())
	job := &countingJob{err: errors.New("boom")}

	assert.EqualError(t, s.RunOnce(context.Background(), job), "boom")
	assert.EqualValues(t, 1, job.runs.Load())
}
