package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/agentq/internal/store"
	"github.com/me/agentq/pkg/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *store.SQLStore {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:", discardLogger())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

// countingNotifier records queue-changed notifications and can be told to fail.
type countingNotifier struct {
	calls atomic.Int32
	err   error
}

func (n *countingNotifier) NotifyQueueChanged(context.Context) error {
	n.calls.Add(1)
	return n.err
}

// fakeAgent answers HasResults from a fixed set of uploads.
type fakeAgent struct {
	name string
	deps []string
	done map[int64]bool
	err  error
}

func (a *fakeAgent) Name() string           { return a.name }
func (a *fakeAgent) Dependencies() []string { return a.deps }
func (a *fakeAgent) HasResults(_ context.Context, uploadID int64) (bool, error) {
	return a.done[uploadID], a.err
}

type fixture struct {
	st       *store.SQLStore
	reg      *Registry
	notifier *countingNotifier
	mgr      *Manager
}

func newFixture(t *testing.T, agents ...Agent) *fixture {
	t.Helper()
	st := testStore(t)
	reg := NewRegistry(discardLogger())
	for _, a := range agents {
		require.NoError(t, reg.Register(a))
	}
	n := &countingNotifier{}
	return &fixture{st: st, reg: reg, notifier: n, mgr: NewManager(st, reg, n, discardLogger())}
}

func (f *fixture) upload(t *testing.T, name string) *model.Upload {
	t.Helper()
	u, err := f.mgr.AddUpload(context.Background(), AddUploadRequest{
		UserID: 2, Name: name, Origin: "/srv/" + name, Mode: model.UploadModeFile, FolderID: 1,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) job(t *testing.T, u *model.Upload) *model.Job {
	t.Helper()
	job, err := f.mgr.CreateJob(context.Background(), 2, u.Filename, &u.ID, 0)
	require.NoError(t, err)
	return job
}

func TestCreateJobZeroUploadIsNull(t *testing.T) {
	f := newFixture(t)
	zero := int64(0)
	job, err := f.mgr.CreateJob(context.Background(), 3, "maintenance", &zero, 5)
	require.NoError(t, err)
	assert.Nil(t, job.UploadID)

	got, err := f.st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Nil(t, got.UploadID)
	assert.Equal(t, 5, got.Priority)
}

func TestEnqueueTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.job(t, f.upload(t, "a.tar"))

	first, err := f.mgr.EnqueueTask(ctx, EnqueueRequest{JobID: job.ID, AgentType: "unpack", Args: "1"})
	require.NoError(t, err)
	second, err := f.mgr.EnqueueTask(ctx, EnqueueRequest{JobID: job.ID, AgentType: "nomos", Args: "1", DependsOn: []int64{first}})
	require.NoError(t, err)

	task, err := f.st.GetTask(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, job.ID, task.JobID)
	assert.Equal(t, []int64{first}, task.DependsOn)

	_, err = f.mgr.EnqueueTask(ctx, EnqueueRequest{JobID: job.ID, AgentType: "monk", DependsOn: []int64{first, 999}})
	assert.ErrorIs(t, err, model.ErrDependencyNotFound)

	tasks, err := f.st.ListTasksByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	_, err = f.mgr.EnqueueTask(ctx, EnqueueRequest{JobID: 0, AgentType: "monk"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = f.mgr.EnqueueTask(ctx, EnqueueRequest{JobID: job.ID, AgentType: "Bad Name"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestIsAlreadyScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.job(t, f.upload(t, "a.tar"))

	id, err := f.mgr.IsAlreadyScheduled(ctx, job.ID, "nomos")
	require.NoError(t, err)
	assert.Zero(t, id)

	want, err := f.mgr.EnqueueTask(ctx, EnqueueRequest{JobID: job.ID, AgentType: "nomos"})
	require.NoError(t, err)
	id, err = f.mgr.IsAlreadyScheduled(ctx, job.ID, "nomos")
	require.NoError(t, err)
	assert.Equal(t, want, id)
}

func TestAddAgentAlreadyDoneWritesNothing(t *testing.T) {
	u := int64(1)
	nomos := &fakeAgent{name: "nomos", done: map[int64]bool{u: true}}
	f := newFixture(t, nomos)
	ctx := context.Background()
	job := f.job(t, f.upload(t, "a.tar"))

	res, err := f.mgr.AddAgent(ctx, job.ID, u, "nomos")
	require.NoError(t, err)
	assert.True(t, res.AlreadyDone)
	assert.Zero(t, res.TaskID)

	tasks, err := f.st.ListTasksByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Zero(t, f.notifier.calls.Load())
}

func TestAddAgentIdempotent(t *testing.T) {
	f := newFixture(t, &fakeAgent{name: "nomos"})
	ctx := context.Background()
	up := f.upload(t, "a.tar")
	job := f.job(t, up)

	first, err := f.mgr.AddAgent(ctx, job.ID, up.ID, "nomos")
	require.NoError(t, err)
	second, err := f.mgr.AddAgent(ctx, job.ID, up.ID, "nomos")
	require.NoError(t, err)

	assert.NotZero(t, first.TaskID)
	assert.Equal(t, first.TaskID, second.TaskID)
	assert.EqualValues(t, 1, f.notifier.calls.Load())

	task, err := f.st.GetTask(ctx, first.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "nomos", task.AgentType)
	assert.Equal(t, "1", task.Args)
}

func TestAddAgentConcurrentCallersConverge(t *testing.T) {
	f := newFixture(t, &fakeAgent{name: "unpack"}, &fakeAgent{name: "nomos", deps: []string{"unpack"}})
	ctx := context.Background()
	up := f.upload(t, "a.tar")
	job := f.job(t, up)

	const n = 8
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.mgr.AddAgent(ctx, job.ID, up.ID, "nomos")
			assert.NoError(t, err)
			ids[i] = res.TaskID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	tasks, err := f.st.ListTasksByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestAddAgentResolvesDependencies(t *testing.T) {
	f := newFixture(t,
		&fakeAgent{name: "unpack"},
		&fakeAgent{name: "adj2nest", deps: []string{"unpack"}},
		&fakeAgent{name: "nomos", deps: []string{"unpack", "adj2nest"}},
	)
	ctx := context.Background()
	up := f.upload(t, "a.tar")
	job := f.job(t, up)

	res, err := f.mgr.AddAgent(ctx, job.ID, up.ID, "nomos")
	require.NoError(t, err)

	unpack, err := f.mgr.IsAlreadyScheduled(ctx, job.ID, "unpack")
	require.NoError(t, err)
	adj, err := f.mgr.IsAlreadyScheduled(ctx, job.ID, "adj2nest")
	require.NoError(t, err)

	nomos, err := f.st.GetTask(ctx, res.TaskID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{unpack, adj}, nomos.DependsOn)

	adjTask, err := f.st.GetTask(ctx, adj)
	require.NoError(t, err)
	assert.Equal(t, []int64{unpack}, adjTask.DependsOn)
}

func TestAddAgentSkipsDoneDependencies(t *testing.T) {
	up := int64(1)
	f := newFixture(t,
		&fakeAgent{name: "unpack", done: map[int64]bool{up: true}},
		&fakeAgent{name: "nomos", deps: []string{"unpack"}},
	)
	ctx := context.Background()
	job := f.job(t, f.upload(t, "a.tar"))

	res, err := f.mgr.AddAgent(ctx, job.ID, up, "nomos")
	require.NoError(t, err)

	task, err := f.st.GetTask(ctx, res.TaskID)
	require.NoError(t, err)
	assert.Empty(t, task.DependsOn)

	id, err := f.mgr.IsAlreadyScheduled(ctx, job.ID, "unpack")
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestAddAgentUnknownAgent(t *testing.T) {
	f := newFixture(t, &fakeAgent{name: "nomos", deps: []string{"unpack"}})
	ctx := context.Background()
	up := f.upload(t, "a.tar")
	job := f.job(t, up)

	_, err := f.mgr.AddAgent(ctx, job.ID, up.ID, "monk")
	assert.ErrorIs(t, err, model.ErrUnknownAgent)

	// An unregistered dependency aborts the whole call.
	_, err = f.mgr.AddAgent(ctx, job.ID, up.ID, "nomos")
	assert.ErrorIs(t, err, model.ErrDependencyNotFound)
	tasks, err := f.st.ListTasksByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestAddAgentCycle(t *testing.T) {
	f := newFixture(t,
		&fakeAgent{name: "a", deps: []string{"b"}},
		&fakeAgent{name: "b", deps: []string{"a"}},
	)
	ctx := context.Background()
	up := f.upload(t, "a.tar")
	job := f.job(t, up)

	_, err := f.mgr.AddAgent(ctx, job.ID, up.ID, "a")
	assert.ErrorIs(t, err, model.ErrDependencyCycle)
	assert.ErrorIs(t, f.reg.Validate(), model.ErrDependencyCycle)
}

func TestAddAgentCycleConcurrentCallers(t *testing.T) {
	f := newFixture(t,
		&fakeAgent{name: "a", deps: []string{"b"}},
		&fakeAgent{name: "b", deps: []string{"a"}},
	)
	ctx := context.Background()
	up := f.upload(t, "a.tar")
	job := f.job(t, up)

	errs := make(chan error, 20)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, name := range []string{"a", "b"} {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				_, err := f.mgr.AddAgent(ctx, job.ID, up.ID, name)
				errs <- err
			}(name)
		}
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("AddAgent calls entering a cycle from both ends did not return")
	}
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, model.ErrDependencyCycle)
	}
	tasks, err := f.st.ListTasksByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestFindUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.upload(t, "linux.tar.gz")
	f.upload(t, "busybox.tar")
	latest := f.upload(t, "linux.tar.gz")

	u, err := f.mgr.FindUpload(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "busybox.tar", u.Filename)

	u, err = f.mgr.FindUpload(ctx, "linux.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, latest.ID, u.ID)
	assert.NotEqual(t, first.ID, u.ID)

	_, err = f.mgr.FindUpload(ctx, "99")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
	_, err = f.mgr.FindUpload(ctx, "missing.zip")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
	_, err = f.mgr.FindUpload(ctx, "0")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = f.mgr.FindUpload(ctx, " ")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestRecordTaskProgress(t *testing.T) {
	f := newFixture(t, &fakeAgent{name: "nomos"})
	ctx := context.Background()
	up := f.upload(t, "a.tar")
	job := f.job(t, up)
	res, err := f.mgr.AddAgent(ctx, job.ID, up.ID, "nomos")
	require.NoError(t, err)

	start := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	end := start.Add(30 * time.Second)
	require.NoError(t, f.mgr.RecordTaskProgress(ctx, res.TaskID, model.TaskProgress{
		StartTime: &start, EndTime: &end, EndBits: 1, EndText: "Completed",
	}))

	status, err := f.mgr.JobStatus(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, status.Tasks, 1)
	assert.Equal(t, model.TaskStateFinished, status.Tasks[0].State())

	ids, err := f.mgr.TasksWithStatus(ctx, "Completed")
	require.NoError(t, err)
	assert.Equal(t, []int64{res.TaskID}, ids)

	err = f.mgr.RecordTaskProgress(ctx, res.TaskID+50, model.TaskProgress{EndText: "Completed"})
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
	err = f.mgr.RecordTaskProgress(ctx, 0, model.TaskProgress{})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	err = f.mgr.RecordTaskProgress(ctx, res.TaskID, model.TaskProgress{StartTime: &end, EndTime: &start})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestAddAgentHasResultsError(t *testing.T) {
	f := newFixture(t, &fakeAgent{name: "nomos", err: &model.PersistenceError{Op: "select", Err: errors.New("db gone")}})
	ctx := context.Background()
	up := f.upload(t, "a.tar")
	job := f.job(t, up)

	_, err := f.mgr.AddAgent(ctx, job.ID, up.ID, "nomos")
	assert.ErrorIs(t, err, model.ErrPersistence)
}

func TestAddAgentNotifyFailureKeepsTask(t *testing.T) {
	f := newFixture(t, &fakeAgent{name: "nomos"})
	f.notifier.err = &model.TransportError{Addr: "127.0.0.1:5555", Err: errors.New("connection refused")}
	ctx := context.Background()
	up := f.upload(t, "a.tar")
	job := f.job(t, up)

	res, err := f.mgr.AddAgent(ctx, job.ID, up.ID, "nomos")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransport)
	require.NotZero(t, res.TaskID)

	exists, err := f.st.TaskExists(ctx, res.TaskID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStoreAgentHasResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "a.tar")
	agent := NewStoreAgent(f.st, "nomos", "unpack")
	assert.Equal(t, []string{"unpack"}, agent.Dependencies())

	done, err := agent.HasResults(ctx, up.ID)
	require.NoError(t, err)
	assert.False(t, done, "never registered")

	v1 := &model.Agent{Name: "nomos", Version: "1", Revision: "1.a"}
	require.NoError(t, f.st.RegisterAgent(ctx, v1))
	require.NoError(t, f.st.EnsureAuditTable(ctx, "nomos"))
	rec, err := f.st.InsertAuditRecord(ctx, "nomos", v1.ID, up.ID)
	require.NoError(t, err)
	require.NoError(t, f.st.FinalizeAuditRecord(ctx, "nomos", rec, true, ""))

	done, err = agent.HasResults(ctx, up.ID)
	require.NoError(t, err)
	assert.True(t, done)

	v2 := &model.Agent{Name: "nomos", Version: "2", Revision: "2.b"}
	require.NoError(t, f.st.RegisterAgent(ctx, v2))
	done, err = agent.HasResults(ctx, up.ID)
	require.NoError(t, err)
	assert.False(t, done, "a new revision has to run again")
}

func TestAddUploadValidation(t *testing.T) {
	f := newFixture(t)
	valid := AddUploadRequest{UserID: 1, Name: "a.tar", Origin: "/tmp/a.tar", Mode: model.UploadModeFile, FolderID: 1}

	tests := []struct {
		name  string
		mod   func(r *AddUploadRequest)
		field string
	}{
		{"user", func(r *AddUploadRequest) { r.UserID = 0 }, "user_id"},
		{"name", func(r *AddUploadRequest) { r.Name = " " }, "name"},
		{"origin", func(r *AddUploadRequest) { r.Origin = "" }, "origin"},
		{"mode", func(r *AddUploadRequest) { r.Mode = 0 }, "mode"},
		{"folder", func(r *AddUploadRequest) { r.FolderID = 0 }, "folder_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mod(&req)
			_, err := f.mgr.AddUpload(context.Background(), req)
			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	u, err := f.mgr.AddUpload(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.tar", u.Origin)
}

func TestJobStatusAndTasksWithStatus(t *testing.T) {
	f := newFixture(t, &fakeAgent{name: "nomos"})
	ctx := context.Background()
	up := f.upload(t, "a.tar")
	job := f.job(t, up)

	res, err := f.mgr.AddAgent(ctx, job.ID, up.ID, "nomos")
	require.NoError(t, err)

	status, err := f.mgr.JobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, status.Job.ID)
	require.Len(t, status.Tasks, 1)
	assert.Equal(t, model.TaskStateQueued, status.Tasks[0].State())

	_, err = f.mgr.JobStatus(ctx, 9999)
	assert.ErrorIs(t, err, model.ErrRecordNotFound)

	require.NoError(t, f.st.UpdateTaskProgress(ctx, res.TaskID, model.TaskProgress{EndText: "Failed"}))
	ids, err := f.mgr.TasksWithStatus(ctx, "Failed")
	require.NoError(t, err)
	assert.Equal(t, []int64{res.TaskID}, ids)

	_, err = f.mgr.TasksWithStatus(ctx, "")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
